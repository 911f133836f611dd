package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/telecheck/telecheck-api/internal/domain"
	"github.com/telecheck/telecheck-api/internal/events"
	apperrors "github.com/telecheck/telecheck-api/pkg/util/errorutil"
)

// Authorize checks an identity against a role allow-list. An empty list
// admits any authenticated identity.
func Authorize(identity *domain.Identity, allowed []domain.Role) error {
	if identity == nil {
		return apperrors.NewAuthRequired()
	}
	if len(allowed) == 0 {
		return nil
	}
	role := identity.Role.Normalize()
	for _, candidate := range allowed {
		if candidate.Normalize() == role {
			return nil
		}
	}
	return apperrors.NewInsufficientPermissions(roleNames(allowed))
}

// RequireRole ensures the caller holds one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, _ := IdentityFromContext(c)
		if err := Authorize(identity, allowed); err != nil {
			return err
		}
		return c.Next()
	}
}

// RequireAuthenticated ensures some identity is attached.
func RequireAuthenticated() fiber.Handler {
	return RequireRole()
}

// RequireRole is the role gate with denial auditing.
func (m *Middleware) RequireRole(allowed ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, _ := IdentityFromContext(c)
		if err := Authorize(identity, allowed); err != nil {
			code := apperrors.ToDomainError(err).Code
			m.metrics.RecordAuthOutcome(code)
			m.publish(c, events.EventAccessDenied, identity, events.AccessDeniedPayload{
				Path:          utils.CopyString(c.Path()),
				Method:        utils.CopyString(c.Method()),
				RequiredRoles: roleNames(allowed),
				Code:          code,
			})
			return err
		}
		return c.Next()
	}
}

func roleNames(roles []domain.Role) []string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	return names
}
