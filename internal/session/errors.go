package session

import "errors"

var (
	// ErrNotAuthenticated is returned when an operation needs a live session.
	ErrNotAuthenticated = errors.New("session not authenticated")
	// ErrNoRemote is returned when no remote API client was configured.
	ErrNoRemote = errors.New("session remote not configured")
	// ErrEmptyToken is returned when the refresh response carried no token.
	ErrEmptyToken = errors.New("refresh returned empty token")
	// ErrSessionChanged is returned when the session was replaced or cleared
	// while a refresh was in flight; the refreshed token is discarded.
	ErrSessionChanged = errors.New("session changed during refresh")
	// ErrUnknownAudience is returned for audiences outside domain.Audiences.
	ErrUnknownAudience = errors.New("unknown audience")
)
