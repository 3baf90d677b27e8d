package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/freight-session/internal/api/client"
	"github.com/spec-kit/freight-session/internal/api/http/handlers"
	"github.com/spec-kit/freight-session/internal/config"
	"github.com/spec-kit/freight-session/internal/observability"
	"github.com/spec-kit/freight-session/internal/service"
	"github.com/spec-kit/freight-session/internal/session"
)

type upstream struct {
	srv        *httptest.Server
	lastAuth   chan string
	rejectNext atomic.Bool
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{lastAuth: make(chan string, 8)}
	u.srv = httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.URL.Path {
		case "/auth/users/login", "/auth/staff/login":
			token := upstreamToken("u-1")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"user": map[string]any{"id": "u-1", "userType": "shipper", "role": "ops"},
					"auth": map[string]any{"token": token},
				},
			})
		case "/auth/users/refresh", "/auth/staff/refresh":
			_ = json.NewEncoder(w).Encode(map[string]any{"token": upstreamToken("u-1-refreshed")})
		case "/auth/users/logout", "/auth/staff/logout":
			w.WriteHeader(nethttp.StatusNoContent)
		case "/loads":
			u.lastAuth <- r.Header.Get("Authorization")
			if u.rejectNext.Load() {
				w.WriteHeader(nethttp.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":[{"id":"load-1","status":"` + r.URL.Query().Get("status") + `"}]}`))
		default:
			w.WriteHeader(nethttp.StatusNotFound)
		}
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func upstreamToken(sub string) string {
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("upstream"))
	return token
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestApp(t *testing.T, up *upstream, deps map[string]handlers.Pinger) *fiber.App {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	api := client.New(up.srv.URL, 2*time.Second)

	mgr := session.NewManager(config.SessionConfig{
		KeyPrefix:       "freight:",
		LoginRoute:      "/login",
		AdminLoginRoute: "/admin/login",
	}, session.Dependencies{Remote: api, Logger: logger})
	t.Cleanup(mgr.Close)

	authService := service.NewAuthService(service.AuthDependencies{API: api, Sessions: mgr})

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:  handlers.NewHealthHandler("freight-session-gateway", "test", deps, metrics),
		Session: handlers.NewSessionHandler(authService),
		Proxy:   handlers.NewProxyHandler(mgr, up.srv.URL, logger),
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, target, err, raw)
		}
	}
	return resp.StatusCode, out
}

func login(t *testing.T, app *fiber.App, audience string) {
	t.Helper()
	status, body := do(t, app, fiber.MethodPost, "/session/"+audience+"/login",
		`{"email":"ops@freight.example","password":"pw","remember_me":true}`)
	if status != fiber.StatusOK {
		t.Fatalf("login status = %d body=%v", status, body)
	}
}

func TestSessionStatusBeforeLogin(t *testing.T) {
	app := newTestApp(t, newUpstream(t), nil)

	status, body := do(t, app, fiber.MethodGet, "/session/regular", "")
	if status != fiber.StatusOK {
		t.Fatalf("status = %d", status)
	}
	data := body["data"].(map[string]any)
	if data["authenticated"] != false || data["login_route"] != "/login" || data["expiring_soon"] != true {
		t.Fatalf("data = %v", data)
	}
}

func TestLoginThenHeader(t *testing.T) {
	app := newTestApp(t, newUpstream(t), nil)

	_, empty := do(t, app, fiber.MethodGet, "/session/admin/header", "")
	if len(empty) != 0 {
		t.Fatalf("expected empty header map, got %v", empty)
	}

	login(t, app, "admin")

	_, header := do(t, app, fiber.MethodGet, "/session/admin/header", "")
	auth, _ := header["Authorization"].(string)
	if len(header) != 1 || !strings.HasPrefix(auth, "Bearer ") {
		t.Fatalf("header = %v", header)
	}

	_, body := do(t, app, fiber.MethodGet, "/session/admin", "")
	data := body["data"].(map[string]any)
	if data["authenticated"] != true || data["user_type"] != "ops" || data["scope"] != "durable" {
		t.Fatalf("data = %v", data)
	}
}

func TestProxyAttachesBearer(t *testing.T) {
	up := newUpstream(t)
	app := newTestApp(t, up, nil)
	login(t, app, "regular")

	status, body := do(t, app, fiber.MethodGet, "/api/regular/loads?status=open", "")
	if status != fiber.StatusOK {
		t.Fatalf("status = %d body=%v", status, body)
	}
	if got := <-up.lastAuth; !strings.HasPrefix(got, "Bearer ") {
		t.Fatalf("upstream Authorization = %q", got)
	}
	loads := body["data"].([]any)
	if loads[0].(map[string]any)["status"] != "open" {
		t.Fatalf("query not forwarded: %v", body)
	}
}

func TestProxyRejectsWithoutSession(t *testing.T) {
	up := newUpstream(t)
	app := newTestApp(t, up, nil)

	status, body := do(t, app, fiber.MethodGet, "/api/admin/loads", "")
	if status != fiber.StatusUnauthorized {
		t.Fatalf("status = %d", status)
	}
	errBody := body["error"].(map[string]any)
	if errBody["code"] != "UNAUTHORIZED" {
		t.Fatalf("error = %v", errBody)
	}
	if errBody["details"].(map[string]any)["login_route"] != "/admin/login" {
		t.Fatalf("details = %v", errBody["details"])
	}
	select {
	case <-up.lastAuth:
		t.Fatal("request must not reach upstream without a session")
	default:
	}
}

func TestUpstreamRejectionClearsSession(t *testing.T) {
	up := newUpstream(t)
	app := newTestApp(t, up, nil)
	login(t, app, "regular")
	up.rejectNext.Store(true)

	status, _ := do(t, app, fiber.MethodGet, "/api/regular/loads", "")
	if status != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want upstream 401 passed through", status)
	}
	<-up.lastAuth

	_, body := do(t, app, fiber.MethodGet, "/session/regular", "")
	if body["data"].(map[string]any)["authenticated"] != false {
		t.Fatal("expected session cleared after upstream 401")
	}
}

func TestLogoutEndpoint(t *testing.T) {
	app := newTestApp(t, newUpstream(t), nil)
	login(t, app, "regular")

	status, body := do(t, app, fiber.MethodPost, "/session/regular/logout", "")
	if status != fiber.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body["data"].(map[string]any)["redirect"] != "/login" {
		t.Fatalf("body = %v", body)
	}
	_, header := do(t, app, fiber.MethodGet, "/session/regular/header", "")
	if len(header) != 0 {
		t.Fatalf("expected empty header after logout, got %v", header)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	app := newTestApp(t, newUpstream(t), nil)
	login(t, app, "regular")
	_, before := do(t, app, fiber.MethodGet, "/session/regular/header", "")

	status, body := do(t, app, fiber.MethodPost, "/session/regular/refresh", "")
	if status != fiber.StatusOK {
		t.Fatalf("status = %d body=%v", status, body)
	}
	if body["data"].(map[string]any)["authenticated"] != true {
		t.Fatalf("body = %v", body)
	}

	_, after := do(t, app, fiber.MethodGet, "/session/regular/header", "")
	got, _ := after["Authorization"].(string)
	if !strings.HasPrefix(got, "Bearer ") || got == before["Authorization"] {
		t.Fatalf("expected a replaced bearer, before=%v after=%v", before, after)
	}
}

func TestRefreshWithoutSession(t *testing.T) {
	app := newTestApp(t, newUpstream(t), nil)

	status, body := do(t, app, fiber.MethodPost, "/session/admin/refresh", "")
	if status != fiber.StatusUnauthorized {
		t.Fatalf("status = %d", status)
	}
	if body["error"].(map[string]any)["code"] != "UNAUTHORIZED" {
		t.Fatalf("body = %v", body)
	}
}

func TestUnknownAudience(t *testing.T) {
	app := newTestApp(t, newUpstream(t), nil)

	status, body := do(t, app, fiber.MethodGet, "/session/guest", "")
	if status != fiber.StatusNotFound {
		t.Fatalf("status = %d", status)
	}
	if body["error"].(map[string]any)["code"] != "NOT_FOUND" {
		t.Fatalf("body = %v", body)
	}
}

func TestLoginValidationError(t *testing.T) {
	app := newTestApp(t, newUpstream(t), nil)

	status, body := do(t, app, fiber.MethodPost, "/session/regular/login", `{"email":"","password":""}`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("status = %d body=%v", status, body)
	}
}

func TestReadiness(t *testing.T) {
	up := newUpstream(t)
	healthy := newTestApp(t, up, map[string]handlers.Pinger{
		"durable": pingerFunc(func(context.Context) error { return nil }),
	})
	if status, _ := do(t, healthy, fiber.MethodGet, "/health/ready", ""); status != fiber.StatusOK {
		t.Fatalf("ready status = %d", status)
	}

	broken := newTestApp(t, up, map[string]handlers.Pinger{
		"durable": pingerFunc(func(context.Context) error { return errors.New("redis down") }),
	})
	status, body := do(t, broken, fiber.MethodGet, "/health/ready", "")
	if status != fiber.StatusServiceUnavailable {
		t.Fatalf("ready status = %d", status)
	}
	details := body["error"].(map[string]any)["details"].(map[string]any)
	if details["durable"] != "redis down" {
		t.Fatalf("details = %v", details)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	app := newTestApp(t, newUpstream(t), nil)
	do(t, app, fiber.MethodGet, "/session/guest", "")

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics/prometheus", nil), -1)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(raw), `gateway_errors_total{code="NOT_FOUND"`) {
		t.Fatalf("scrape missing error counter:\n%s", raw)
	}
}
