package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/freight-session/internal/domain"
	"github.com/spec-kit/freight-session/internal/session"
	apperrors "github.com/spec-kit/freight-session/pkg/util/errorutil"
)

// LoginAPI is the remote login call.
type LoginAPI interface {
	Login(ctx context.Context, audience domain.Audience, email, password string) (string, domain.User, error)
}

// AuthService coordinates login, logout and refresh against the session manager.
type AuthService struct {
	api      LoginAPI
	sessions *session.Manager
}

// AuthDependencies encapsulates collaborators of the auth service.
type AuthDependencies struct {
	API      LoginAPI
	Sessions *session.Manager
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	return &AuthService{api: deps.API, sessions: deps.Sessions}
}

// Status describes the session of one audience for UI route guards.
type Status struct {
	Audience         domain.Audience `json:"audience"`
	Authenticated    bool            `json:"authenticated"`
	RemainingMinutes int             `json:"remaining_minutes"`
	ExpiringSoon     bool            `json:"expiring_soon"`
	UserType         string          `json:"user_type,omitempty"`
	User             domain.User     `json:"user,omitempty"`
	Scope            domain.Scope    `json:"scope,omitempty"`
	IssuedAt         *time.Time      `json:"issued_at,omitempty"`
	LoginRoute       string          `json:"login_route"`
}

// Login authenticates against the remote API and stores the credential.
func (s *AuthService) Login(ctx context.Context, audience domain.Audience, email, password string, rememberMe bool) (Status, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Status{}, apperrors.NewValidationError("email and password required", nil)
	}

	token, user, err := s.api.Login(ctx, audience, email, password)
	if err != nil {
		return Status{}, err
	}

	s.sessions.Store(ctx, audience, token, user, rememberMe)
	status := s.Status(ctx, audience)
	if !status.Authenticated {
		// The API answered but the credential could not be kept locally.
		return status, apperrors.NewUnauthorized("session could not be established")
	}
	return status, nil
}

// Logout clears the session and notifies the API in the background.
func (s *AuthService) Logout(ctx context.Context, audience domain.Audience) Status {
	s.sessions.Logout(ctx, audience)
	return s.Status(ctx, audience)
}

// Refresh renews the token of a live session.
func (s *AuthService) Refresh(ctx context.Context, audience domain.Audience) (Status, error) {
	if err := s.sessions.Refresh(ctx, audience); err != nil {
		if errors.Is(err, session.ErrNotAuthenticated) || errors.Is(err, session.ErrSessionChanged) {
			return s.Status(ctx, audience), apperrors.NewUnauthorized(err.Error())
		}
		return s.Status(ctx, audience), err
	}
	return s.Status(ctx, audience), nil
}

// Status reports the current session of audience.
func (s *AuthService) Status(ctx context.Context, audience domain.Audience) Status {
	status := Status{Audience: audience, LoginRoute: s.sessions.LoginRoute(audience)}

	cred, ok := s.sessions.Current(ctx, audience)
	if !ok {
		status.ExpiringSoon = true
		return status
	}

	status.Authenticated = true
	status.User = cred.User
	status.Scope = cred.Scope
	issuedAt := cred.IssuedAt
	status.IssuedAt = &issuedAt
	status.RemainingMinutes = s.sessions.RemainingMinutes(ctx, audience)
	status.ExpiringSoon = s.sessions.IsExpiringSoon(ctx, audience)
	status.UserType, _ = cred.User.Field(audience.TypeField())
	return status
}

// Sessions exposes the underlying manager for middleware usage.
func (s *AuthService) Sessions() *session.Manager {
	return s.sessions
}
