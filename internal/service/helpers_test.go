package service

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/telecheck/telecheck-api/internal/domain"
	"github.com/telecheck/telecheck-api/internal/events"
	"github.com/telecheck/telecheck-api/internal/repository"
)

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
	err   error
}

func newMemUserRepo(users ...domain.User) *memUserRepo {
	repo := &memUserRepo{users: map[string]domain.User{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrEmailTaken
		}
	}
	user.ID = uuid.NewString()
	r.users[user.ID] = *user
	return nil
}

func (r *memUserRepo) Update(_ context.Context, user *domain.User) error {
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

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &user, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *memUserRepo) List(_ context.Context, _, _ int) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make([]domain.User, 0, len(r.users))
	for _, user := range r.users {
		out = append(out, user)
	}
	return out, nil
}

type capturedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func captureAll(dispatcher events.Dispatcher) *capturedEvents {
	captured := &capturedEvents{}
	for _, eventType := range []events.EventType{
		events.EventLoginSucceeded,
		events.EventLoginFailed,
		events.EventUserRoleChanged,
		events.EventUserStatusChanged,
	} {
		dispatcher.Subscribe(eventType, func(_ context.Context, e events.Event) error {
			captured.mu.Lock()
			defer captured.mu.Unlock()
			captured.events = append(captured.events, e)
			return nil
		})
	}
	return captured
}

func (c *capturedEvents) last() events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return events.Event{}
	}
	return c.events[len(c.events)-1]
}

func (c *capturedEvents) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
