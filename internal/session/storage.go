package session

import (
	"context"

	"github.com/spec-kit/freight-session/internal/domain"
)

// Storage is one key-value scope. The durable and ephemeral scopes are two
// instances of it; see the persistence package for implementations.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Remote notifies the freight API about logout and token refresh.
type Remote interface {
	Logout(ctx context.Context, audience domain.Audience, header map[string]string) error
	Refresh(ctx context.Context, audience domain.Audience, header map[string]string) (string, error)
}

const (
	fieldToken      = "token"
	fieldUser       = "user"
	fieldIssuedAt   = "issued_at"
	fieldRememberMe = "remember_me"
)

// keyspace names storage keys as <prefix><audience>:<field>. Other components
// read these keys directly, so the scheme is part of the public contract.
type keyspace struct {
	prefix string
}

func (k keyspace) key(audience domain.Audience, field string) string {
	return k.prefix + string(audience) + ":" + field
}

// recordFields are the fields making up a credential record, in removal order.
var recordFields = []string{fieldIssuedAt, fieldToken, fieldUser}
