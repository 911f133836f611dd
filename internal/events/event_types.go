package events

import (
	"time"

	"github.com/telecheck/telecheck-api/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventLoginSucceeded      EventType = "login_succeeded"
	EventLoginFailed         EventType = "login_failed"
	EventDemoFallbackGranted EventType = "demo_fallback_granted"
	EventAccessDenied        EventType = "access_denied"
	EventUserRoleChanged     EventType = "user_role_changed"
	EventUserStatusChanged   EventType = "user_status_changed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID    string      `json:"user_id,omitempty"`
	Email     string      `json:"email,omitempty"`
	Role      domain.Role `json:"role,omitempty"`
	Synthetic bool        `json:"synthetic,omitempty"`
}

// ActorFromIdentity copies the identity fields relevant for auditing.
func ActorFromIdentity(identity *domain.Identity) Actor {
	if identity == nil {
		return Actor{}
	}
	return Actor{
		UserID:    identity.ID,
		Email:     identity.Email,
		Role:      identity.Role,
		Synthetic: identity.Synthetic,
	}
}

// Event represents an authentication or account event.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// LoginPayload payload.
type LoginPayload struct {
	Email  string `json:"email"`
	Reason string `json:"reason,omitempty"`
}

// DemoFallbackPayload payload.
type DemoFallbackPayload struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// AccessDeniedPayload payload.
type AccessDeniedPayload struct {
	Path          string   `json:"path"`
	Method        string   `json:"method"`
	RequiredRoles []string `json:"required_roles"`
	Code          string   `json:"code"`
}

// UserRoleChangedPayload payload.
type UserRoleChangedPayload struct {
	UserID  string      `json:"user_id"`
	OldRole domain.Role `json:"old_role"`
	NewRole domain.Role `json:"new_role"`
}

// UserStatusChangedPayload payload.
type UserStatusChangedPayload struct {
	UserID string `json:"user_id"`
	Active bool   `json:"active"`
}
