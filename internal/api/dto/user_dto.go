package dto

import (
	"time"

	"github.com/telecheck/telecheck-api/internal/domain"
)

// RegisterRequest payload for new patient accounts.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ChangeRoleRequest payload for PATCH /api/users/:id/role.
type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,max=40"`
}

// ChangeStatusRequest payload for PATCH /api/users/:id/status.
type ChangeStatusRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewUserResponse strips credentials from a user.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		Active:    user.Active,
		CreatedAt: user.CreatedAt,
	}
}

// IdentityResponse describes the caller as resolved by the auth middleware.
type IdentityResponse struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	Synthetic bool        `json:"synthetic"`
}
