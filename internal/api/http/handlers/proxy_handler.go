package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/proxy"
	"go.uber.org/zap"

	"github.com/spec-kit/freight-session/internal/session"
	apperrors "github.com/spec-kit/freight-session/pkg/util/errorutil"
)

// ProxyHandler forwards API calls upstream with the audience's bearer header.
type ProxyHandler struct {
	sessions *session.Manager
	upstream string
	logger   *zap.Logger
}

// NewProxyHandler constructs handler.
func NewProxyHandler(sessions *session.Manager, upstream string, logger *zap.Logger) *ProxyHandler {
	return &ProxyHandler{sessions: sessions, upstream: strings.TrimSuffix(upstream, "/"), logger: logger}
}

// Forward handles ALL /api/:audience/*.
func (h *ProxyHandler) Forward(c *fiber.Ctx) error {
	audience, err := audienceParam(c)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	header := h.sessions.AuthHeader(ctx, audience)
	if len(header) == 0 {
		return apperrors.NewDomainError("UNAUTHORIZED", "session expired or missing", http.StatusUnauthorized,
			map[string]any{"login_route": h.sessions.LoginRoute(audience)})
	}

	target := h.upstream + "/" + strings.TrimPrefix(c.Params("*"), "/")
	if query := c.Request().URI().QueryString(); len(query) > 0 {
		target += "?" + string(query)
	}

	c.Request().Header.Del(fiber.HeaderCookie)
	if requestID := c.GetRespHeader(fiber.HeaderXRequestID); requestID != "" {
		c.Request().Header.Set(fiber.HeaderXRequestID, requestID)
	}
	for k, v := range header {
		c.Request().Header.Set(k, v)
	}

	if err := proxy.Do(c, target); err != nil {
		h.logger.Warn("upstream request failed", zap.String("audience", string(audience)), zap.Error(err))
		return apperrors.NewBadGateway("upstream unavailable", nil)
	}

	// The API is the authority: a rejected token is dropped locally too.
	if c.Response().StatusCode() == http.StatusUnauthorized {
		h.sessions.ClearAuth(ctx, audience)
	}
	c.Response().Header.Del(fiber.HeaderServer)
	return nil
}
