package domain

import "time"

// User is the authenticated principal as returned by the freight API.
// It is kept as a loose JSON object since the API owns its shape.
type User map[string]any

// Field returns a string field of the user object.
func (u User) Field(name string) (string, bool) {
	if u == nil {
		return "", false
	}
	val, ok := u[name].(string)
	return val, ok
}

// Credential is a snapshot of the record held for one audience.
type Credential struct {
	Audience Audience
	Scope    Scope
	Token    string
	User     User
	IssuedAt time.Time
}
