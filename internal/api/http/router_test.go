package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httptransport "github.com/telecheck/telecheck-api/internal/api/http"
	"github.com/telecheck/telecheck-api/internal/api/http/handlers"
	"github.com/telecheck/telecheck-api/internal/auth"
	"github.com/telecheck/telecheck-api/internal/config"
	"github.com/telecheck/telecheck-api/internal/domain"
	"github.com/telecheck/telecheck-api/internal/events"
	"github.com/telecheck/telecheck-api/internal/observability"
	"github.com/telecheck/telecheck-api/internal/persistence"
	"github.com/telecheck/telecheck-api/internal/repository"
	"github.com/telecheck/telecheck-api/internal/service"
)

type memRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func (r *memRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrEmailTaken
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()
	r.users[user.ID] = *user
	return nil
}

func (r *memRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.users[user.ID]
	if !ok {
		return repository.ErrUserNotFound
	}
	updated := *user
	if updated.PasswordHash == "" {
		updated.PasswordHash = existing.PasswordHash
	}
	r.users[user.ID] = updated
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &user, nil
}

func (r *memRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *memRepo) List(context.Context, int, int) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.User, 0, len(r.users))
	for _, user := range r.users {
		out = append(out, user)
	}
	return out, nil
}

type testServer struct {
	app    *fiber.App
	repo   *memRepo
	tokens *auth.TokenManager
}

const adminID = "11111111-2222-3333-4444-555555555555"

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Config{
		App: config.AppConfig{Name: "telecheck-api", Version: "test"},
		Auth: config.AuthConfig{
			JWTSecret:             "router-secret",
			AccessTokenTTLMinutes: 60,
			BcryptCost:            4,
			UserLookupTimeoutMS:   500,
			ProductionEnv:         true,
			MockTokensEnabled:     true,
			DemoPathPrefixes:      []string{"/api/demo"},
			DemoOnMissingToken:    true,
			DemoUserID:            "demo-admin",
			DemoEmail:             "demo@telecheck.local",
			DefaultUserID:         "anonymous",
			DefaultEmail:          "unknown@telecheck.local",
			DefaultRole:           "patient",
		},
	}

	repo := &memRepo{users: map[string]domain.User{
		adminID: {ID: adminID, Name: "Root", Email: "root@telecheck.local", Role: domain.RoleAdmin, Active: true},
	}}
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	authService := service.NewAuthService(cfg, service.AuthDependencies{UserRepo: repo, Dispatcher: dispatcher, Logger: logger})
	userService := service.NewUserService(repo, dispatcher, logger)
	middleware := auth.NewMiddleware(auth.MiddlewareDependencies{
		Validators: auth.DefaultValidatorChain(cfg.Auth, authService.TokenManager()),
		Resolver:   auth.NewIdentityResolver(repo, cfg.Auth),
		Policy:     auth.NewDemoPolicy(cfg.Auth),
		Logger:     logger,
		Metrics:    metrics,
		Dispatcher: dispatcher,
	})

	app := fiber.New(fiber.Config{ErrorHandler: httptransport.ErrorHandler(logger, metrics)})
	httptransport.RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(handlers.HealthInfo{
			Service:    cfg.App.Name,
			Version:    cfg.App.Version,
			Validators: []string{auth.SourceSigned, auth.SourceMock},
		}, &persistence.Postgres{}, &persistence.Redis{}),
		Auth:           handlers.NewAuthHandler(authService),
		Users:          handlers.NewUsersHandler(userService),
		AuthMiddleware: middleware,
		Metrics:        metrics,
	})

	return &testServer{app: app, repo: repo, tokens: authService.TokenManager()}
}

func (s *testServer) tokenFor(t *testing.T, id string, role domain.Role) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(id, "", role)
	require.NoError(t, err)
	return token
}

type result struct {
	status  int
	headers http.Header
	body    map[string]any
	raw     string
}

func (r result) errorField(name string) any {
	errBody, _ := r.body["error"].(map[string]any)
	return errBody[name]
}

func (r result) data() map[string]any {
	data, _ := r.body["data"].(map[string]any)
	return data
}

func (s *testServer) do(t *testing.T, method, path, token, body string) result {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := result{status: resp.StatusCode, headers: resp.Header, raw: string(raw)}
	_ = json.Unmarshal(raw, &out.body)
	return out
}

func TestRegisterThenMe(t *testing.T) {
	srv := newTestServer(t)

	reg := srv.do(t, http.MethodPost, "/api/auth/register", "", `{"name":"Ada","email":"ada@telecheck.local","password":"correct-horse"}`)
	require.Equal(t, http.StatusCreated, reg.status, reg.raw)

	authData, _ := reg.data()["auth"].(map[string]any)
	token, _ := authData["token"].(string)
	require.NotEmpty(t, token)

	me := srv.do(t, http.MethodGet, "/api/auth/me", token, "")
	require.Equal(t, http.StatusOK, me.status, me.raw)
	assert.Equal(t, "ada@telecheck.local", me.data()["email"])
	assert.Equal(t, "patient", me.data()["role"])
	assert.Equal(t, false, me.data()["synthetic"])

	login := srv.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ada@telecheck.local","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, login.status)
	assert.Equal(t, "INVALID_CREDENTIALS", login.errorField("code"))
}

func TestValidationErrorsCarryFieldDetails(t *testing.T) {
	srv := newTestServer(t)

	res := srv.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"not-an-email"}`)

	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "VALIDATION_FAILED", res.errorField("code"))
	details, _ := res.errorField("details").(map[string]any)
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")
}

func TestRoleGateOnUserRoutes(t *testing.T) {
	srv := newTestServer(t)
	patientID := "99999999-8888-7777-6666-555555555555"
	srv.repo.users[patientID] = domain.User{ID: patientID, Email: "pat@telecheck.local", Role: domain.RolePatient, Active: true}

	patientToken := srv.tokenFor(t, patientID, domain.RoleAdmin)
	adminToken := srv.tokenFor(t, adminID, domain.RoleAdmin)

	denied := srv.do(t, http.MethodGet, "/api/users", patientToken, "")
	assert.Equal(t, http.StatusForbidden, denied.status)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", denied.errorField("code"))
	assert.NotEmpty(t, denied.errorField("request_id"))
	assert.NotEmpty(t, denied.headers.Get(observability.HeaderRequestID))

	missing := srv.do(t, http.MethodGet, "/api/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, missing.status)
	assert.Equal(t, "TOKEN_MISSING", missing.errorField("code"))

	listed := srv.do(t, http.MethodGet, "/api/users", adminToken, "")
	assert.Equal(t, http.StatusOK, listed.status, listed.raw)

	promoted := srv.do(t, http.MethodPatch, "/api/users/"+patientID+"/role", adminToken, `{"role":"doctor"}`)
	require.Equal(t, http.StatusOK, promoted.status, promoted.raw)
	assert.Equal(t, "doctor", promoted.data()["role"])

	// The stored role is authoritative, so the same token now passes the doctor gate.
	fetched := srv.do(t, http.MethodGet, "/api/users/"+adminID, patientToken, "")
	assert.Equal(t, http.StatusOK, fetched.status, fetched.raw)
	assert.Nil(t, fetched.data()["password_hash"])
}

func TestDeactivatedUserIsRejected(t *testing.T) {
	srv := newTestServer(t)
	nurseID := "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
	srv.repo.users[nurseID] = domain.User{ID: nurseID, Email: "nurse@telecheck.local", Role: domain.RoleNurse, Active: true}
	nurseToken := srv.tokenFor(t, nurseID, domain.RoleNurse)

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/auth/me", nurseToken, "").status)

	res := srv.do(t, http.MethodPatch, "/api/users/"+nurseID+"/status", srv.tokenFor(t, adminID, domain.RoleAdmin), `{"active":false}`)
	require.Equal(t, http.StatusOK, res.status, res.raw)

	me := srv.do(t, http.MethodGet, "/api/auth/me", nurseToken, "")
	assert.Equal(t, http.StatusUnauthorized, me.status)
	assert.Equal(t, "USER_NOT_FOUND", me.errorField("code"))

	invalid := srv.do(t, http.MethodPatch, "/api/users/"+nurseID+"/status", srv.tokenFor(t, adminID, domain.RoleAdmin), `{}`)
	assert.Equal(t, http.StatusBadRequest, invalid.status)
}

func TestDemoRouteFallsBackOutsideStrictMode(t *testing.T) {
	srv := newTestServer(t)

	res := srv.do(t, http.MethodGet, "/api/demo/whoami", "", "")

	require.Equal(t, http.StatusOK, res.status, res.raw)
	assert.Equal(t, "demo-admin", res.data()["id"])
	assert.Equal(t, "admin", res.data()["role"])
	assert.Equal(t, true, res.data()["synthetic"])
}

func TestHealthMetricsAndNotFound(t *testing.T) {
	srv := newTestServer(t)

	live := srv.do(t, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, live.status)
	assert.Equal(t, "alive", live.body["status"])
	authMode, _ := live.body["auth"].(map[string]any)
	assert.Equal(t, false, authMode["strict_production"])

	ready := srv.do(t, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, ready.status)
	deps, _ := ready.body["dependencies"].(map[string]any)
	assert.Equal(t, "disabled", deps["postgres"])
	assert.Equal(t, "disabled", deps["redis"])

	missing := srv.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, missing.status)
	assert.Equal(t, "NOT_FOUND", missing.errorField("code"))

	metrics := srv.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, metrics.status)
	assert.Contains(t, metrics.raw, "telecheck_http_requests_total")
	assert.Contains(t, metrics.raw, "telecheck_http_errors_total")
}

func TestMetricsSurviveManyUnknownPaths(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 50; i++ {
		res := srv.do(t, http.MethodGet, fmt.Sprintf("/missing/%03d", i), "", "")
		require.Equal(t, http.StatusNotFound, res.status)
	}

	metrics := srv.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, metrics.status)
	assert.Contains(t, metrics.raw, "telecheck_http_errors_total")
	assert.NotContains(t, metrics.raw, "/missing/")
}

func TestListUsersReportsAppliedPage(t *testing.T) {
	srv := newTestServer(t)
	token := srv.tokenFor(t, adminID, domain.RoleAdmin)

	res := srv.do(t, http.MethodGet, "/api/users?limit=500&offset=-2", token, "")
	require.Equal(t, http.StatusOK, res.status)
	meta, _ := res.body["meta"].(map[string]any)
	assert.Equal(t, float64(50), meta["limit"])
	assert.Equal(t, float64(0), meta["offset"])

	res = srv.do(t, http.MethodGet, "/api/users?limit=20", token, "")
	require.Equal(t, http.StatusOK, res.status)
	meta, _ = res.body["meta"].(map[string]any)
	assert.Equal(t, float64(20), meta["limit"])
}
