package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/telecheck/telecheck-api/internal/domain"
	"github.com/telecheck/telecheck-api/internal/observability"
)

const userCachePrefix = "telecheck:user:"

// cachedUser is the Redis representation; password hashes are never cached.
type cachedUser struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// CachedUserRepository is a read-through Redis cache in front of a
// UserRepository. Users returned from GetByID carry no PasswordHash; flows
// that verify passwords go through GetByEmail, which is not cached.
type CachedUserRepository struct {
	UserRepository
	client  *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewCachedUserRepository wraps inner. A nil client disables caching.
func NewCachedUserRepository(inner UserRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger, metrics *observability.Metrics) *CachedUserRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedUserRepository{
		UserRepository: inner,
		client:         client,
		ttl:            ttl,
		logger:         logger,
		metrics:        metrics,
	}
}

// GetByID serves from Redis when possible. Redis failures degrade to the
// underlying store; only store errors are returned.
func (r *CachedUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if r.client == nil {
		return r.UserRepository.GetByID(ctx, id)
	}

	key := userCachePrefix + id
	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedUser
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			r.metrics.RecordUserCache("hit")
			return cached.toDomain(), nil
		}
		r.logger.Warn("discarding corrupt user cache entry", zap.String("key", key))
		r.metrics.RecordUserCache("error")
	case errors.Is(err, redis.Nil):
		r.metrics.RecordUserCache("miss")
	default:
		r.logger.Warn("user cache read failed", zap.String("key", key), zap.Error(err))
		r.metrics.RecordUserCache("error")
	}

	user, err := r.UserRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, user)
	return user, nil
}

// Update writes through and evicts the cached record.
func (r *CachedUserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := r.UserRepository.Update(ctx, user); err != nil {
		return err
	}
	r.Invalidate(ctx, user.ID)
	return nil
}

// Invalidate removes a user from the cache.
func (r *CachedUserRepository) Invalidate(ctx context.Context, id string) {
	if r.client == nil {
		return
	}
	if err := r.client.Del(ctx, userCachePrefix+id).Err(); err != nil {
		r.logger.Warn("user cache invalidate failed", zap.String("user_id", id), zap.Error(err))
	}
}

func (r *CachedUserRepository) store(ctx context.Context, user *domain.User) {
	payload, err := json.Marshal(fromDomain(user))
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, userCachePrefix+user.ID, payload, r.ttl).Err(); err != nil {
		r.logger.Warn("user cache write failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

func fromDomain(user *domain.User) cachedUser {
	return cachedUser{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		Active:    user.Active,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func (c cachedUser) toDomain() *domain.User {
	return &domain.User{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Role:      c.Role,
		Active:    c.Active,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
