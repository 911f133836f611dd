package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telecheck/telecheck-api/internal/domain"
	"github.com/telecheck/telecheck-api/internal/events"
	"github.com/telecheck/telecheck-api/internal/observability"
	apperrors "github.com/telecheck/telecheck-api/pkg/util/errorutil"
)

const identityKey = "auth_identity"

// outcomeOK labels successful authentications in metrics.
const outcomeOK = "OK"

// MiddlewareDependencies bundles collaborators for the auth middleware.
type MiddlewareDependencies struct {
	Validators *ValidatorChain
	Resolver   *IdentityResolver
	Policy     DemoPolicy
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Dispatcher events.Dispatcher
}

// Middleware validates bearer tokens and attaches request identities.
type Middleware struct {
	validators *ValidatorChain
	resolver   *IdentityResolver
	policy     DemoPolicy
	logger     *zap.Logger
	metrics    *observability.Metrics
	dispatcher events.Dispatcher
}

// NewMiddleware constructs middleware.
func NewMiddleware(deps MiddlewareDependencies) *Middleware {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{
		validators: deps.Validators,
		resolver:   deps.Resolver,
		policy:     deps.Policy,
		logger:     logger,
		metrics:    deps.Metrics,
		dispatcher: deps.Dispatcher,
	}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	identity, err := m.authenticate(c)
	if err != nil {
		domainErr := apperrors.ToDomainError(err)
		m.metrics.RecordAuthOutcome(domainErr.Code)
		// 5xx outcomes are logged once, by the error writer.
		m.logger.Debug("authentication rejected", zap.String("code", domainErr.Code), zap.String("path", c.Path()))
		return domainErr
	}

	m.metrics.RecordAuthOutcome(outcomeOK)
	c.Locals(identityKey, identity)
	return c.Next()
}

// authenticate runs resolver, validators and identity lookup. Panics raised
// here are reported as AUTH_ERROR; handlers further down the chain are not
// covered.
func (m *Middleware) authenticate(c *fiber.Ctx) (identity *domain.Identity, err error) {
	defer func() {
		if r := recover(); r != nil {
			identity = nil
			err = apperrors.NewAuthError(fmt.Errorf("panic: %v", r))
		}
	}()

	token, ok := ExtractBearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		if m.policy.Decide(c.Path(), ReasonMissingToken) {
			return m.grantDemo(c, ReasonMissingToken), nil
		}
		return nil, apperrors.NewTokenMissing()
	}

	envelope, err := m.validators.Validate(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, apperrors.NewTokenExpired()
		}
		if m.policy.Decide(c.Path(), ReasonInvalidToken) {
			return m.grantDemo(c, ReasonInvalidToken), nil
		}
		return nil, apperrors.NewTokenInvalid()
	}

	identity, err = m.resolver.Resolve(c.UserContext(), envelope)
	switch {
	case err == nil:
		return identity, nil
	case errors.Is(err, ErrUserNotFound):
		return nil, apperrors.NewUserNotFound()
	case errors.Is(err, ErrUserLookup):
		return nil, apperrors.NewDBError(err)
	default:
		return nil, apperrors.NewAuthError(err)
	}
}

func (m *Middleware) grantDemo(c *fiber.Ctx, reason FallbackReason) *domain.Identity {
	identity := m.policy.SyntheticIdentity()
	m.logger.Warn("demo fallback identity granted",
		zap.String("path", c.Path()),
		zap.String("reason", string(reason)),
		zap.String("identity", identity.ID))
	m.metrics.RecordDemoFallback(string(reason))
	m.publish(c, events.EventDemoFallbackGranted, identity, events.DemoFallbackPayload{
		Path:   utils.CopyString(c.Path()),
		Reason: string(reason),
	})
	return identity
}

func (m *Middleware) publish(c *fiber.Ctx, eventType events.EventType, identity *domain.Identity, payload interface{}) {
	if m.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Actor:     events.ActorFromIdentity(identity),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if err := m.dispatcher.Publish(c.UserContext(), event); err != nil {
		m.logger.Warn("publish auth event", zap.String("type", string(eventType)), zap.Error(err))
	}
}

// IdentityFromContext retrieves the authenticated identity.
func IdentityFromContext(c *fiber.Ctx) (*domain.Identity, bool) {
	val := c.Locals(identityKey)
	if val == nil {
		return nil, false
	}
	identity, ok := val.(*domain.Identity)
	return identity, ok && identity != nil
}

// WithIdentity attaches an identity to the request.
func WithIdentity(c *fiber.Ctx, identity *domain.Identity) {
	c.Locals(identityKey, identity)
}
