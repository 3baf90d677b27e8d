package domain

import "time"

// Audience identifies which principal class a credential belongs to.
type Audience string

const (
	AudienceRegular Audience = "regular"
	AudienceAdmin   Audience = "admin"
)

// Audiences lists every audience with an independent session.
func Audiences() []Audience {
	return []Audience{AudienceRegular, AudienceAdmin}
}

// ParseAudience converts a path or config value into an Audience.
func ParseAudience(raw string) (Audience, bool) {
	switch Audience(raw) {
	case AudienceRegular:
		return AudienceRegular, true
	case AudienceAdmin:
		return AudienceAdmin, true
	default:
		return "", false
	}
}

// TypeField is the user field holding the role discriminator for the audience.
func (a Audience) TypeField() string {
	if a == AudienceAdmin {
		return "role"
	}
	return "userType"
}

// Scope selects the storage lifetime of a credential record.
type Scope string

const (
	ScopeDurable   Scope = "durable"
	ScopeEphemeral Scope = "ephemeral"
)

// ScopeFor maps the remember-me choice to a storage scope.
func ScopeFor(rememberMe bool) Scope {
	if rememberMe {
		return ScopeDurable
	}
	return ScopeEphemeral
}

// Other returns the opposite scope.
func (s Scope) Other() Scope {
	if s == ScopeDurable {
		return ScopeEphemeral
	}
	return ScopeDurable
}

const (
	// LocalWindow is the client-enforced ceiling on credential validity.
	LocalWindow = 6 * time.Hour
	// ExpiringSoonThreshold marks a session as close to its local cutoff.
	ExpiringSoonThreshold = 30 * time.Minute
)
