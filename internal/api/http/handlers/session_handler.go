package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/freight-session/internal/api/dto"
	"github.com/spec-kit/freight-session/internal/service"
	apperrors "github.com/spec-kit/freight-session/pkg/util/errorutil"
)

// SessionHandler exposes the session primitives to the local UI.
type SessionHandler struct {
	auth *service.AuthService
}

// NewSessionHandler constructs handler.
func NewSessionHandler(authService *service.AuthService) *SessionHandler {
	return &SessionHandler{auth: authService}
}

// Login handles POST /session/:audience/login.
func (h *SessionHandler) Login(c *fiber.Ctx) error {
	audience, err := audienceParam(c)
	if err != nil {
		return err
	}
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	status, err := h.auth.Login(c.UserContext(), audience, req.Email, req.Password, req.RememberMe)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": status})
}

// Status handles GET /session/:audience.
func (h *SessionHandler) Status(c *fiber.Ctx) error {
	audience, err := audienceParam(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.auth.Status(c.UserContext(), audience)})
}

// Header handles GET /session/:audience/header. The body is the header map
// verbatim: {"Authorization": "Bearer ..."} or {}.
func (h *SessionHandler) Header(c *fiber.Ctx) error {
	audience, err := audienceParam(c)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(h.auth.Sessions().AuthHeader(c.UserContext(), audience))
}

// Refresh handles POST /session/:audience/refresh.
func (h *SessionHandler) Refresh(c *fiber.Ctx) error {
	audience, err := audienceParam(c)
	if err != nil {
		return err
	}
	status, err := h.auth.Refresh(c.UserContext(), audience)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": status})
}

// Logout handles POST /session/:audience/logout.
func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	audience, err := audienceParam(c)
	if err != nil {
		return err
	}
	status := h.auth.Logout(c.UserContext(), audience)
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"session":  status,
			"redirect": status.LoginRoute,
		},
	})
}
