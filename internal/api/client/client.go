package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/freight-session/internal/domain"
	apperrors "github.com/spec-kit/freight-session/pkg/util/errorutil"
)

// HeaderRequestID correlates gateway calls with API logs.
const HeaderRequestID = "X-Request-ID"

// Client talks to the remote freight REST API auth endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client. A zero timeout leaves the http.Client without one.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the API root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// loginRequest mirrors the API login payload.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authEnvelope covers both {"data":{"user":..,"auth":{"token":..}}} and a bare {"token":..}.
type authEnvelope struct {
	Token string `json:"token"`
	Data  struct {
		User domain.User `json:"user"`
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	} `json:"data"`
}

func (e authEnvelope) token() string {
	if e.Data.Auth.Token != "" {
		return e.Data.Auth.Token
	}
	return e.Token
}

func subjectPath(audience domain.Audience) string {
	if audience == domain.AudienceAdmin {
		return "/auth/staff"
	}
	return "/auth/users"
}

// Login exchanges credentials for a token and the principal.
func (c *Client) Login(ctx context.Context, audience domain.Audience, email, password string) (string, domain.User, error) {
	var env authEnvelope
	if err := c.post(ctx, subjectPath(audience)+"/login", nil, loginRequest{Email: email, Password: password}, &env); err != nil {
		return "", nil, err
	}
	token := env.token()
	if token == "" {
		return "", nil, apperrors.NewBadGateway("login response carried no token", nil)
	}
	return token, env.Data.User, nil
}

// Logout tells the API the token is no longer in use. The response body is ignored.
func (c *Client) Logout(ctx context.Context, audience domain.Audience, header map[string]string) error {
	return c.post(ctx, subjectPath(audience)+"/logout", header, nil, nil)
}

// Refresh exchanges the current token for a fresh one.
func (c *Client) Refresh(ctx context.Context, audience domain.Audience, header map[string]string) (string, error) {
	var env authEnvelope
	if err := c.post(ctx, subjectPath(audience)+"/refresh", header, nil, &env); err != nil {
		return "", err
	}
	return env.token(), nil
}

// Ping checks the API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health/live", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("api health returned %s", resp.Status)
	}
	return nil
}

// apiError is the error envelope the freight API responds with.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, header map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, uuid.NewString())
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return remoteError(path, resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.NewBadGateway("malformed API response", map[string]any{"path": path})
	}
	return nil
}

func remoteError(path string, status int, raw []byte) error {
	message := http.StatusText(status)
	var env apiError
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		message = env.Error.Message
	}
	details := map[string]any{"path": path, "status": status}
	switch {
	case status == http.StatusUnauthorized:
		return apperrors.NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, details)
	case status == http.StatusForbidden:
		return apperrors.NewDomainError("FORBIDDEN", message, http.StatusForbidden, details)
	case status >= 400 && status < 500:
		return apperrors.NewDomainError("UPSTREAM_REJECTED", message, status, details)
	default:
		return apperrors.NewBadGateway(message, details)
	}
}
