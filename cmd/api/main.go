package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/telecheck/telecheck-api/internal/api/http"
	"github.com/telecheck/telecheck-api/internal/api/http/handlers"
	"github.com/telecheck/telecheck-api/internal/auth"
	"github.com/telecheck/telecheck-api/internal/config"
	"github.com/telecheck/telecheck-api/internal/events"
	"github.com/telecheck/telecheck-api/internal/observability"
	"github.com/telecheck/telecheck-api/internal/persistence"
	"github.com/telecheck/telecheck-api/internal/repository"
	"github.com/telecheck/telecheck-api/internal/service"
	"github.com/telecheck/telecheck-api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger, cfg.Audit))

	var (
		userRepo  repository.UserRepository
		userStore auth.UserStore
	)
	if pg.Enabled() {
		cached := repository.NewCachedUserRepository(
			repository.NewUserRepository(pg.PoolHandle()),
			redis.ClientHandle(),
			cfg.Redis.UserCacheTTL(),
			logger,
			metrics,
		)
		userRepo = cached
		userStore = cached
	} else {
		logger.Warn("no user store configured; identities resolve from token claims only")
		userRepo = repository.NewUnavailableUserRepository()
	}

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:   userRepo,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	userService := service.NewUserService(userRepo, dispatcher, logger)

	validators := auth.DefaultValidatorChain(cfg.Auth, authService.TokenManager())
	policy := auth.NewDemoPolicy(cfg.Auth)
	authMiddleware := auth.NewMiddleware(auth.MiddlewareDependencies{
		Validators: validators,
		Resolver:   auth.NewIdentityResolver(userStore, cfg.Auth),
		Policy:     policy,
		Logger:     logger,
		Metrics:    metrics,
		Dispatcher: dispatcher,
	})
	logger.Info("auth configured",
		zap.Strings("validators", validators.Names()),
		zap.Bool("strict_production", cfg.Auth.StrictProduction),
		zap.Bool("demo_marker_present", policy.DemoMarkerPresent),
		zap.Bool("demo_on_missing_token", policy.OnMissingToken),
		zap.Bool("demo_on_invalid_token", policy.OnInvalidToken))

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		ErrorHandler:          httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(handlers.HealthInfo{
			Service:          cfg.App.Name,
			Version:          cfg.App.Version,
			StrictProduction: cfg.Auth.StrictProduction,
			Validators:       validators.Names(),
		}, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Users:          handlers.NewUsersHandler(userService),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
