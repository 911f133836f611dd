package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/telecheck/telecheck-api/internal/config"
	"github.com/telecheck/telecheck-api/internal/domain"
	"github.com/telecheck/telecheck-api/internal/repository"
	apperrors "github.com/telecheck/telecheck-api/pkg/util/errorutil"
)

const testSecret = "test-secret"

var fixedNow = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:           testSecret,
		BcryptCost:          4,
		UserLookupTimeoutMS: 200,
		ProductionEnv:       true,
		StrictProduction:    true,
		MockTokensEnabled:   true,
		DemoPathPrefixes:    []string{"/api/demo"},
		DemoOnMissingToken:  true,
		DemoUserID:          "demo-admin",
		DemoEmail:           "demo@telecheck.local",
		DefaultUserID:       "anonymous",
		DefaultEmail:        "unknown@telecheck.local",
		DefaultRole:         "patient",
	}
}

type stubStore struct {
	users map[string]*domain.User
	err   error
	block bool
	panic bool
	calls atomic.Int32
}

func (s *stubStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	s.calls.Add(1)
	if s.panic {
		panic("store exploded")
	}
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func activeUser(id, email string, role domain.Role) *domain.User {
	return &domain.User{ID: id, Email: email, Role: role, Active: true}
}

func newTestTokens() *TokenManager {
	return NewTokenManager(testSecret, time.Hour).WithClock(clock)
}

func signToken(t *testing.T, tokens *TokenManager, sub, email string, role domain.Role) string {
	t.Helper()
	token, _, err := tokens.GenerateToken(sub, email, role)
	require.NoError(t, err)
	return token
}

func mockToken(t *testing.T, env MockEnvelope) string {
	t.Helper()
	token, err := EncodeMockEnvelope(env)
	require.NoError(t, err)
	return token
}

// newTestApp mounts the middleware in front of a protected route, a demo
// route and an open identity echo route.
func newTestApp(cfg config.AuthConfig, store UserStore) *fiber.App {
	tokens := newTestTokens()
	mw := NewMiddleware(MiddlewareDependencies{
		Validators: DefaultValidatorChain(cfg, tokens),
		Resolver:   NewIdentityResolver(store, cfg),
		Policy:     NewDemoPolicy(cfg),
	})

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			domainErr := apperrors.ToDomainError(err)
			return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{
				"error": fiber.Map{"code": domainErr.Code},
			})
		},
	})
	echo := func(c *fiber.Ctx) error {
		identity, _ := IdentityFromContext(c)
		return c.JSON(identity)
	}
	app.Get("/api/records", mw.Handle, mw.RequireRole(domain.RoleDoctor, domain.RoleAdmin), echo)
	app.Get("/api/profile", mw.Handle, echo)
	app.Get("/api/demo/whoami", mw.Handle, echo)
	return app
}

type response struct {
	status int
	body   map[string]any
}

func (r response) code() string {
	errBody, ok := r.body["error"].(map[string]any)
	if !ok {
		return ""
	}
	code, _ := errBody["code"].(string)
	return code
}

func doGet(t *testing.T, app *fiber.App, path, authHeader string) response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return response{status: resp.StatusCode, body: body}
}
