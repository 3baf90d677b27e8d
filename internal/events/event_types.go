package events

import (
	"time"

	"github.com/spec-kit/freight-session/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionStored    EventType = "session_stored"
	EventSessionRefreshed EventType = "session_refreshed"
	EventSessionCleared   EventType = "session_cleared"
	EventSessionExpired   EventType = "session_expired"
	EventLoginRedirect    EventType = "login_redirect"
)

// AllTypes lists every event type the session layer emits.
func AllTypes() []EventType {
	return []EventType{
		EventSessionStored,
		EventSessionRefreshed,
		EventSessionCleared,
		EventSessionExpired,
		EventLoginRedirect,
	}
}

// Event represents a session lifecycle change.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Audience  domain.Audience `json:"audience"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   interface{}     `json:"payload,omitempty"`
}

// Reasons attached to expiry and redirect payloads.
const (
	ReasonLocalWindow  = "local_window"
	ReasonTokenExpired = "token_expired"
	ReasonUndecodable  = "undecodable_token"
	ReasonLogout       = "logout"
	ReasonSweep        = "sweep"
)

// SessionStoredPayload payload.
type SessionStoredPayload struct {
	Scope domain.Scope `json:"scope"`
}

// SessionExpiredPayload payload.
type SessionExpiredPayload struct {
	Reason string `json:"reason"`
}

// LoginRedirectPayload tells the UI layer where to send the principal.
type LoginRedirectPayload struct {
	Route  string `json:"route"`
	Reason string `json:"reason"`
}
