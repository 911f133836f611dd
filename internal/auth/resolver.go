package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telecheck/telecheck-api/internal/config"
	"github.com/telecheck/telecheck-api/internal/domain"
	"github.com/telecheck/telecheck-api/internal/repository"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserLookup   = errors.New("user lookup failed")
)

// UserStore is the read side of the user repository used during authentication.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// IdentityResolver turns a credential envelope into a request identity,
// confirming the subject against the user store when one is configured.
type IdentityResolver struct {
	store    UserStore
	timeout  time.Duration
	defaults domain.Identity
}

// NewIdentityResolver builds a resolver. A nil store resolves from claims only.
func NewIdentityResolver(store UserStore, cfg config.AuthConfig) *IdentityResolver {
	return &IdentityResolver{
		store:   store,
		timeout: cfg.UserLookupTimeout(),
		defaults: domain.Identity{
			ID:    cfg.DefaultUserID,
			Email: cfg.DefaultEmail,
			Role:  domain.Role(cfg.DefaultRole),
		},
	}
}

// Resolve prefers stored id, email and role over token claims. The lookup is
// bounded by the resolver timeout and abandoned if ctx is cancelled.
func (r *IdentityResolver) Resolve(ctx context.Context, envelope *domain.CredentialEnvelope) (*domain.Identity, error) {
	if envelope == nil {
		return nil, ErrTokenInvalid
	}

	if r.store == nil || envelope.SubjectID == "" {
		return r.fromClaims(envelope), nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	user, err := r.store.GetByID(lookupCtx, envelope.SubjectID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrUserLookup, err)
	}
	if user == nil || !user.Active {
		return nil, ErrUserNotFound
	}

	return &domain.Identity{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
	}, nil
}

func (r *IdentityResolver) fromClaims(envelope *domain.CredentialEnvelope) *domain.Identity {
	identity := &domain.Identity{
		ID:    envelope.SubjectID,
		Email: envelope.Email,
		Role:  envelope.Role,
	}
	if identity.ID == "" {
		identity.ID = r.defaults.ID
	}
	if identity.Email == "" {
		identity.Email = r.defaults.Email
	}
	if identity.Role == "" {
		identity.Role = r.defaults.Role
	}
	return identity
}
