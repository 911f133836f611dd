package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telecheck/telecheck-api/internal/domain"
	"github.com/telecheck/telecheck-api/internal/events"
	"github.com/telecheck/telecheck-api/internal/repository"
	apperrors "github.com/telecheck/telecheck-api/pkg/util/errorutil"
)

// UserService backs the administrative user endpoints.
type UserService struct {
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewUserService creates the service.
func NewUserService(users repository.UserRepository, dispatcher events.Dispatcher, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, dispatcher: dispatcher, logger: logger}
}

// UserPage is one page of users with the bounds that were applied.
type UserPage struct {
	Users  []domain.User
	Limit  int
	Offset int
}

// List returns a page of users.
func (s *UserService) List(ctx context.Context, limit, offset int) (*UserPage, error) {
	limit, offset = repository.PageBounds(limit, offset)
	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &UserPage{Users: users, Limit: limit, Offset: offset}, nil
}

// Get returns a single user.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapUserErr(id, err)
	}
	return user, nil
}

// ChangeRole assigns a new role. The cached record is evicted by the
// repository so the next authentication sees the new role.
func (s *UserService) ChangeRole(ctx context.Context, actor *domain.Identity, id string, role domain.Role) (*domain.User, error) {
	role = role.Normalize()
	if role == "" {
		return nil, apperrors.NewValidationError("role required", nil)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapUserErr(id, err)
	}
	oldRole := user.Role
	if oldRole == role {
		return user, nil
	}

	user.Role = role
	user.PasswordHash = ""
	if err := s.users.Update(ctx, user); err != nil {
		return nil, mapUserErr(id, err)
	}

	s.publish(ctx, events.EventUserRoleChanged, actor, events.UserRoleChangedPayload{
		UserID:  user.ID,
		OldRole: oldRole,
		NewRole: role,
	})
	return user, nil
}

// SetActive enables or disables an account. Disabled accounts fail
// authentication with USER_NOT_FOUND.
func (s *UserService) SetActive(ctx context.Context, actor *domain.Identity, id string, active bool) (*domain.User, error) {
	if actor != nil && strings.EqualFold(actor.ID, id) && !active {
		return nil, apperrors.NewValidationError("cannot deactivate own account", nil)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapUserErr(id, err)
	}
	if user.Active == active {
		return user, nil
	}

	user.Active = active
	user.PasswordHash = ""
	if err := s.users.Update(ctx, user); err != nil {
		return nil, mapUserErr(id, err)
	}

	s.publish(ctx, events.EventUserStatusChanged, actor, events.UserStatusChangedPayload{
		UserID: user.ID,
		Active: active,
	})
	return user, nil
}

func (s *UserService) publish(ctx context.Context, eventType events.EventType, actor *domain.Identity, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Actor:     events.ActorFromIdentity(actor),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		s.logger.Warn("publish user event", zap.String("type", string(eventType)), zap.Error(err))
	}
}

func mapUserErr(id string, err error) error {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return apperrors.NewNotFound("user", map[string]any{"id": id})
	case errors.Is(err, repository.ErrEmailTaken):
		return apperrors.NewConflict("email already registered", nil)
	default:
		return apperrors.NewInternalError(err)
	}
}
