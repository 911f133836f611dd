package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/telecheck/telecheck-api/internal/api/dto"
	"github.com/telecheck/telecheck-api/internal/auth"
	"github.com/telecheck/telecheck-api/internal/domain"
	"github.com/telecheck/telecheck-api/internal/service"
	apperrors "github.com/telecheck/telecheck-api/pkg/util/errorutil"
)

// UsersHandler exposes administrative user endpoints.
type UsersHandler struct {
	users *service.UserService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(users *service.UserService) *UsersHandler {
	return &UsersHandler{users: users}
}

// List handles GET /api/users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	page, err := h.users.List(c.UserContext(), c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}

	out := make([]dto.UserResponse, 0, len(page.Users))
	for i := range page.Users {
		out = append(out, dto.NewUserResponse(&page.Users[i]))
	}
	return c.JSON(fiber.Map{
		"data": out,
		"meta": fiber.Map{"limit": page.Limit, "offset": page.Offset, "count": len(out)},
	})
}

// Get handles GET /api/users/:id.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	user, err := h.users.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// ChangeRole handles PATCH /api/users/:id/role.
func (h *UsersHandler) ChangeRole(c *fiber.Ctx) error {
	var req dto.ChangeRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	actor, _ := auth.IdentityFromContext(c)
	user, err := h.users.ChangeRole(c.UserContext(), actor, c.Params("id"), domain.Role(req.Role))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// ChangeStatus handles PATCH /api/users/:id/status.
func (h *UsersHandler) ChangeStatus(c *fiber.Ctx) error {
	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	actor, _ := auth.IdentityFromContext(c)
	user, err := h.users.SetActive(c.UserContext(), actor, c.Params("id"), *req.Active)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}
