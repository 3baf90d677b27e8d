package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/freight-session/internal/domain"
	apperrors "github.com/spec-kit/freight-session/pkg/util/errorutil"
)

func audienceParam(c *fiber.Ctx) (domain.Audience, error) {
	raw := c.Params("audience")
	audience, ok := domain.ParseAudience(raw)
	if !ok {
		return "", apperrors.NewNotFound("audience", map[string]any{"audience": raw})
	}
	return audience, nil
}
