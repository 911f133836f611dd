package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DevJWTSecret is the fallback signing secret used outside production.
const DevJWTSecret = "dev-secret"

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Audit    AuditConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Enabled         bool
	Addr            string
	Password        string
	DB              int
	UserCacheTTLSec int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters. The demo fallback and mock
// token switches are all explicit; StrictProduction overrides every one of them.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	UserLookupTimeoutMS   int

	ProductionEnv     bool
	StrictProduction  bool
	MockTokensEnabled bool

	DemoMarkers        []string
	DemoMarkerPresent  bool
	DemoPathPrefixes   []string
	DemoOnMissingToken bool
	DemoOnInvalidToken bool
	DemoUserID         string
	DemoEmail          string

	DefaultUserID string
	DefaultEmail  string
	DefaultRole   string
}

// AuditConfig holds the optional audit sink endpoint.
type AuditConfig struct {
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	env := getEnv("APP_ENV", "development")
	demoMarkers := getEnvAsList("AUTH_DEMO_MARKERS", []string{"TELECHECK_DEMO"})

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "telecheck-api"),
			Env:                   env,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Enabled:         getEnvAsBool("REDIS_ENABLED", true),
			Addr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:        os.Getenv("REDIS_PASSWORD"),
			DB:              redisDB,
			UserCacheTTLSec: getEnvAsInt("REDIS_USER_CACHE_TTL_SECONDS", 60),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", DevJWTSecret),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			UserLookupTimeoutMS:   getEnvAsInt("AUTH_USER_LOOKUP_TIMEOUT_MS", 3000),
			ProductionEnv:         strings.EqualFold(env, "production"),
			StrictProduction:      getEnvAsBool("AUTH_STRICT_PRODUCTION", strings.EqualFold(env, "production")),
			MockTokensEnabled:     getEnvAsBool("AUTH_MOCK_TOKENS_ENABLED", true),
			DemoMarkers:           demoMarkers,
			DemoMarkerPresent:     anyEnvSet(demoMarkers),
			DemoPathPrefixes:      getEnvAsList("AUTH_DEMO_PATH_PREFIXES", []string{"/api/demo"}),
			DemoOnMissingToken:    getEnvAsBool("AUTH_DEMO_ON_MISSING_TOKEN", true),
			DemoOnInvalidToken:    getEnvAsBool("AUTH_DEMO_ON_INVALID_TOKEN", false),
			DemoUserID:            getEnv("AUTH_DEMO_USER_ID", "demo-admin"),
			DemoEmail:             getEnv("AUTH_DEMO_EMAIL", "demo@telecheck.local"),
			DefaultUserID:         getEnv("AUTH_DEFAULT_USER_ID", "anonymous"),
			DefaultEmail:          getEnv("AUTH_DEFAULT_EMAIL", "unknown@telecheck.local"),
			DefaultRole:           getEnv("AUTH_DEFAULT_ROLE", "patient"),
		},
		Audit: AuditConfig{
			WebhookURL: getEnv("AUDIT_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Validate rejects configurations that are unsafe to serve with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must not be empty"))
	}
	if c.Auth.StrictProduction && c.Auth.JWTSecret == DevJWTSecret {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must be set in strict production mode"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("AUTH_BCRYPT_COST out of range: %d", c.Auth.BcryptCost))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// UserCacheTTL returns how long cached user records live.
func (r RedisConfig) UserCacheTTL() time.Duration {
	if r.UserCacheTTLSec <= 0 {
		return time.Minute
	}
	return time.Duration(r.UserCacheTTLSec) * time.Second
}

// UserLookupTimeout bounds a single store lookup during authentication.
func (a AuthConfig) UserLookupTimeout() time.Duration {
	if a.UserLookupTimeoutMS <= 0 {
		return 3 * time.Second
	}
	return time.Duration(a.UserLookupTimeoutMS) * time.Millisecond
}

// AccessTokenTTL returns the lifetime of issued signed tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	if a.AccessTokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func anyEnvSet(keys []string) bool {
	for _, key := range keys {
		if strings.TrimSpace(os.Getenv(key)) != "" {
			return true
		}
	}
	return false
}
