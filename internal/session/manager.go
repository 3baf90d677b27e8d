package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/freight-session/internal/config"
	"github.com/spec-kit/freight-session/internal/domain"
	"github.com/spec-kit/freight-session/internal/events"
	"github.com/spec-kit/freight-session/internal/persistence"
)

// HeaderAuthorization is the header key returned by AuthHeader.
const HeaderAuthorization = "Authorization"

const defaultNotifyTimeout = 10 * time.Second

// Dependencies bundles the collaborators of a Manager.
type Dependencies struct {
	Durable       Storage
	Ephemeral     Storage
	Remote        Remote
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	Now           func() time.Time
	NotifyTimeout time.Duration
}

// Manager is the single source of truth for the credential held by each
// audience. It never returns storage or decoding failures to callers: they
// collapse into "not authenticated", an absent value or an empty header.
//
// Token checks are decode-only. The server must re-validate every request.
type Manager struct {
	scopes        map[domain.Scope]Storage
	remote        Remote
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	now           func() time.Time
	keys          keyspace
	loginRoutes   map[domain.Audience]string
	locks         map[domain.Audience]*sync.Mutex
	parser        *jwt.Parser
	notifyTimeout time.Duration
	inflight      sync.WaitGroup
}

// NewManager builds a manager. Missing scopes default to in-memory stores.
func NewManager(cfg config.SessionConfig, deps Dependencies) *Manager {
	if deps.Durable == nil {
		deps.Durable = persistence.NewMemoryStore()
	}
	if deps.Ephemeral == nil {
		deps.Ephemeral = persistence.NewMemoryStore()
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = events.NewInMemoryDispatcher()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NotifyTimeout <= 0 {
		deps.NotifyTimeout = defaultNotifyTimeout
	}

	locks := make(map[domain.Audience]*sync.Mutex, len(domain.Audiences()))
	for _, audience := range domain.Audiences() {
		locks[audience] = &sync.Mutex{}
	}

	return &Manager{
		scopes: map[domain.Scope]Storage{
			domain.ScopeDurable:   deps.Durable,
			domain.ScopeEphemeral: deps.Ephemeral,
		},
		remote:     deps.Remote,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger.Named("session"),
		now:        deps.Now,
		keys:       keyspace{prefix: cfg.KeyPrefix},
		loginRoutes: map[domain.Audience]string{
			domain.AudienceRegular: cfg.LoginRoute,
			domain.AudienceAdmin:   cfg.AdminLoginRoute,
		},
		locks:         locks,
		parser:        jwt.NewParser(),
		notifyTimeout: deps.NotifyTimeout,
	}
}

// Store writes a credential record for audience and resets its local clock.
// rememberMe selects the durable scope; the other scope is cleared first.
// Failures are logged and leave the session unauthenticated.
func (m *Manager) Store(ctx context.Context, audience domain.Audience, token string, user domain.User, rememberMe bool) {
	if err := m.store(ctx, audience, token, user, rememberMe); err != nil {
		m.logger.Error("store credential", zap.String("audience", string(audience)), zap.Error(err))
	}
}

func (m *Manager) store(ctx context.Context, audience domain.Audience, token string, user domain.User, rememberMe bool) error {
	lock, ok := m.locks[audience]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAudience, audience)
	}

	lock.Lock()
	scope, err := m.storeLocked(ctx, audience, token, user, rememberMe)
	lock.Unlock()
	if err != nil {
		return err
	}

	m.publish(ctx, audience, events.EventSessionStored, events.SessionStoredPayload{Scope: scope})
	return nil
}

// storeLocked clears the other scope before writing the selected one, so the
// two scopes never both hold a record for audience.
func (m *Manager) storeLocked(ctx context.Context, audience domain.Audience, token string, user domain.User, rememberMe bool) (domain.Scope, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	if user == nil {
		user = domain.User{}
	}
	userJSON, err := json.Marshal(user)
	if err != nil {
		return "", fmt.Errorf("encode user: %w", err)
	}

	scope := domain.ScopeFor(rememberMe)
	m.removeRecordLocked(ctx, audience, scope.Other())
	if err := m.writeRecordLocked(ctx, audience, scope, token, string(userJSON), m.now()); err != nil {
		return scope, err
	}
	if audience == domain.AudienceRegular {
		rememberKey := m.keys.key(audience, fieldRememberMe)
		if rememberMe {
			m.set(ctx, domain.ScopeDurable, rememberKey, "true")
		} else {
			m.remove(ctx, domain.ScopeDurable, rememberKey)
		}
	}
	return scope, nil
}

// writeRecordLocked drops issued_at first and writes it last, so a write that
// fails partway leaves a record without issued_at, which reads as expired.
func (m *Manager) writeRecordLocked(ctx context.Context, audience domain.Audience, scope domain.Scope, token, userJSON string, issuedAt time.Time) error {
	store := m.scopes[scope]
	issuedKey := m.keys.key(audience, fieldIssuedAt)

	if err := store.Remove(ctx, issuedKey); err != nil {
		return fmt.Errorf("%s: remove %s: %w", scope, issuedKey, err)
	}
	writes := []struct{ key, value string }{
		{m.keys.key(audience, fieldToken), token},
		{m.keys.key(audience, fieldUser), userJSON},
		{issuedKey, strconv.FormatInt(issuedAt.UnixMilli(), 10)},
	}
	for _, w := range writes {
		if err := store.Set(ctx, w.key, w.value); err != nil {
			return fmt.Errorf("%s: write %s: %w", scope, w.key, err)
		}
	}
	return nil
}

// Token returns the stored token, durable scope first. It does not check expiry.
func (m *Manager) Token(ctx context.Context, audience domain.Audience) (string, bool) {
	token, _, ok := m.locate(ctx, audience)
	return token, ok
}

// IssuedAt returns the local time the current record was stored.
func (m *Manager) IssuedAt(ctx context.Context, audience domain.Audience) (time.Time, bool) {
	raw, ok := m.recordField(ctx, audience, fieldIssuedAt)
	if !ok {
		return time.Time{}, false
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		m.logger.Warn("malformed issued_at", zap.String("audience", string(audience)), zap.Error(err))
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}

// User returns the stored principal. Malformed JSON reads as absent.
func (m *Manager) User(ctx context.Context, audience domain.Audience) (domain.User, bool) {
	raw, ok := m.recordField(ctx, audience, fieldUser)
	if !ok {
		return nil, false
	}
	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		m.logger.Warn("malformed stored user", zap.String("audience", string(audience)), zap.Error(err))
		return nil, false
	}
	if user == nil {
		return nil, false
	}
	return user, true
}

// IsExpiredByLocalWindow reports whether the record has no issued_at or is
// at least domain.LocalWindow old.
func (m *Manager) IsExpiredByLocalWindow(ctx context.Context, audience domain.Audience) bool {
	issuedAt, ok := m.IssuedAt(ctx, audience)
	if !ok {
		return true
	}
	return m.now().Sub(issuedAt) >= domain.LocalWindow
}

// IsAuthenticated reports whether audience holds a live credential. A record
// failing the local window, the token's exp claim or decoding is cleared.
func (m *Manager) IsAuthenticated(ctx context.Context, audience domain.Audience) bool {
	_, ok := m.authenticated(ctx, audience)
	return ok
}

func (m *Manager) authenticated(ctx context.Context, audience domain.Audience) (string, bool) {
	lock, ok := m.locks[audience]
	if !ok {
		return "", false
	}

	lock.Lock()
	token, reason := m.validateLocked(ctx, audience)
	if reason != "" {
		m.clearLocked(ctx, audience)
	}
	lock.Unlock()

	if reason != "" {
		m.logger.Info("session expired", zap.String("audience", string(audience)), zap.String("reason", reason))
		m.publish(ctx, audience, events.EventSessionExpired, events.SessionExpiredPayload{Reason: reason})
		return "", false
	}
	return token, token != ""
}

// validateLocked returns the live token, or a non-empty reason when the
// record exists but must be cleared.
func (m *Manager) validateLocked(ctx context.Context, audience domain.Audience) (string, string) {
	token, _, ok := m.locate(ctx, audience)
	if !ok {
		return "", ""
	}
	if m.IsExpiredByLocalWindow(ctx, audience) {
		return "", events.ReasonLocalWindow
	}

	claims := jwt.MapClaims{}
	if _, _, err := m.parser.ParseUnverified(token, claims); err != nil {
		m.logger.Debug("undecodable token", zap.String("audience", string(audience)), zap.Error(err))
		return "", events.ReasonUndecodable
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		m.logger.Debug("malformed exp claim", zap.String("audience", string(audience)), zap.Error(err))
		return "", events.ReasonUndecodable
	}
	if exp != nil && exp.Time.Before(m.now()) {
		return "", events.ReasonTokenExpired
	}
	return token, ""
}

// AuthHeader returns {"Authorization": "Bearer <token>"} for a live session
// and an empty map otherwise, so a dead token is never attached to a request.
func (m *Manager) AuthHeader(ctx context.Context, audience domain.Audience) map[string]string {
	token, ok := m.authenticated(ctx, audience)
	if !ok {
		return map[string]string{}
	}
	return bearer(token)
}

func bearer(token string) map[string]string {
	return map[string]string{HeaderAuthorization: "Bearer " + token}
}

// ClearAuth removes the record for audience from both scopes. Idempotent.
func (m *Manager) ClearAuth(ctx context.Context, audience domain.Audience) {
	lock, ok := m.locks[audience]
	if !ok {
		return
	}
	lock.Lock()
	m.clearLocked(ctx, audience)
	lock.Unlock()

	m.publish(ctx, audience, events.EventSessionCleared, nil)
}

func (m *Manager) clearLocked(ctx context.Context, audience domain.Audience) {
	m.removeRecordLocked(ctx, audience, domain.ScopeDurable)
	m.removeRecordLocked(ctx, audience, domain.ScopeEphemeral)
	if audience == domain.AudienceRegular {
		m.remove(ctx, domain.ScopeDurable, m.keys.key(audience, fieldRememberMe))
	}
}

func (m *Manager) removeRecordLocked(ctx context.Context, audience domain.Audience, scope domain.Scope) {
	for _, field := range recordFields {
		m.remove(ctx, scope, m.keys.key(audience, field))
	}
}

// RemainingMinutes is the whole number of minutes left in the local window,
// never negative. It is 0 when no record exists.
func (m *Manager) RemainingMinutes(ctx context.Context, audience domain.Audience) int {
	issuedAt, ok := m.IssuedAt(ctx, audience)
	if !ok {
		return 0
	}
	remaining := domain.LocalWindow - m.now().Sub(issuedAt)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Minute)
}

// IsExpiringSoon reports fewer than 30 minutes left. No session counts as expiring.
func (m *Manager) IsExpiringSoon(ctx context.Context, audience domain.Audience) bool {
	return m.RemainingMinutes(ctx, audience) < int(domain.ExpiringSoonThreshold/time.Minute)
}

// UserType returns the role discriminator of a live session: the "role"
// field for admins, "userType" for regular users.
func (m *Manager) UserType(ctx context.Context, audience domain.Audience) (string, bool) {
	if !m.IsAuthenticated(ctx, audience) {
		return "", false
	}
	user, ok := m.User(ctx, audience)
	if !ok {
		return "", false
	}
	return user.Field(audience.TypeField())
}

// Current returns a snapshot of the live credential for audience.
func (m *Manager) Current(ctx context.Context, audience domain.Audience) (domain.Credential, bool) {
	token, ok := m.authenticated(ctx, audience)
	if !ok {
		return domain.Credential{}, false
	}
	_, scope, _ := m.locate(ctx, audience)
	user, _ := m.User(ctx, audience)
	issuedAt, _ := m.IssuedAt(ctx, audience)
	return domain.Credential{
		Audience: audience,
		Scope:    scope,
		Token:    token,
		User:     user,
		IssuedAt: issuedAt,
	}, true
}

// RememberMe reports whether the regular audience asked to be remembered.
// Admin sessions never persist the flag.
func (m *Manager) RememberMe(ctx context.Context) bool {
	val, ok, err := m.scopes[domain.ScopeDurable].Get(ctx, m.keys.key(domain.AudienceRegular, fieldRememberMe))
	if err != nil {
		m.logger.Warn("storage read failed", zap.String("key", fieldRememberMe), zap.Error(err))
		return false
	}
	return ok && val == "true"
}

// LoginRoute is where the UI should send an unauthenticated audience.
func (m *Manager) LoginRoute(audience domain.Audience) string {
	return m.loginRoutes[audience]
}

// Logout notifies the remote API in the background, clears the record and
// publishes a login redirect. The local clear never waits on the network.
func (m *Manager) Logout(ctx context.Context, audience domain.Audience) {
	lock, ok := m.locks[audience]
	if !ok {
		return
	}

	header := m.AuthHeader(ctx, audience)
	if m.remote != nil && len(header) > 0 {
		m.inflight.Add(1)
		go m.notifyLogout(context.WithoutCancel(ctx), audience, header)
	}

	lock.Lock()
	m.clearLocked(ctx, audience)
	lock.Unlock()

	m.publish(ctx, audience, events.EventSessionCleared, nil)
	m.publish(ctx, audience, events.EventLoginRedirect, events.LoginRedirectPayload{
		Route:  m.LoginRoute(audience),
		Reason: events.ReasonLogout,
	})
}

func (m *Manager) notifyLogout(ctx context.Context, audience domain.Audience, header map[string]string) {
	defer m.inflight.Done()
	ctx, cancel := context.WithTimeout(ctx, m.notifyTimeout)
	defer cancel()
	if err := m.remote.Logout(ctx, audience, header); err != nil {
		m.logger.Warn("logout notification failed", zap.String("audience", string(audience)), zap.Error(err))
	}
}

// Refresh exchanges the live token for a fresh one and stores it with the
// same user and scope. The local window restarts from the refresh.
func (m *Manager) Refresh(ctx context.Context, audience domain.Audience) error {
	if m.remote == nil {
		return ErrNoRemote
	}
	token, ok := m.authenticated(ctx, audience)
	if !ok {
		return ErrNotAuthenticated
	}
	_, scope, _ := m.locate(ctx, audience)
	user, _ := m.User(ctx, audience)

	fresh, err := m.remote.Refresh(ctx, audience, bearer(token))
	if err != nil {
		m.logger.Warn("token refresh failed", zap.String("audience", string(audience)), zap.Error(err))
		return fmt.Errorf("refresh %s session: %w", audience, err)
	}
	if fresh == "" {
		return ErrEmptyToken
	}

	// Compare and write under one hold: a logout or login that landed during
	// the network call wins.
	lock := m.locks[audience]
	lock.Lock()
	if current, _, _ := m.locate(ctx, audience); current != token {
		lock.Unlock()
		return ErrSessionChanged
	}
	_, err = m.storeLocked(ctx, audience, fresh, user, scope == domain.ScopeDurable)
	lock.Unlock()
	if err != nil {
		return fmt.Errorf("store refreshed %s session: %w", audience, err)
	}

	m.publish(ctx, audience, events.EventSessionStored, events.SessionStoredPayload{Scope: scope})
	m.publish(ctx, audience, events.EventSessionRefreshed, events.SessionStoredPayload{Scope: scope})
	return nil
}

// Sweep clears every audience whose record has outlived the local window and
// publishes a login redirect for it. It returns the number of audiences cleared.
func (m *Manager) Sweep(ctx context.Context) int {
	swept := 0
	for _, audience := range domain.Audiences() {
		lock := m.locks[audience]

		lock.Lock()
		_, _, present := m.locate(ctx, audience)
		expired := present && m.IsExpiredByLocalWindow(ctx, audience)
		if expired {
			m.clearLocked(ctx, audience)
		}
		lock.Unlock()

		if !expired {
			continue
		}
		swept++
		m.logger.Info("sweep cleared expired session", zap.String("audience", string(audience)))
		m.publish(ctx, audience, events.EventSessionExpired, events.SessionExpiredPayload{Reason: events.ReasonLocalWindow})
		m.publish(ctx, audience, events.EventLoginRedirect, events.LoginRedirectPayload{
			Route:  m.LoginRoute(audience),
			Reason: events.ReasonSweep,
		})
	}
	return swept
}

// Close waits for background logout notifications to finish.
func (m *Manager) Close() {
	m.inflight.Wait()
}

// locate returns the token and the scope holding it, durable scope first.
// Storage errors are logged and treated as absent.
func (m *Manager) locate(ctx context.Context, audience domain.Audience) (string, domain.Scope, bool) {
	for _, scope := range []domain.Scope{domain.ScopeDurable, domain.ScopeEphemeral} {
		if token, ok := m.readIn(ctx, scope, audience, fieldToken); ok {
			return token, scope, true
		}
	}
	return "", "", false
}

// recordField reads field from the scope holding the token only, so a
// record is never assembled from two scopes.
func (m *Manager) recordField(ctx context.Context, audience domain.Audience, field string) (string, bool) {
	_, scope, ok := m.locate(ctx, audience)
	if !ok {
		return "", false
	}
	return m.readIn(ctx, scope, audience, field)
}

func (m *Manager) readIn(ctx context.Context, scope domain.Scope, audience domain.Audience, field string) (string, bool) {
	key := m.keys.key(audience, field)
	val, ok, err := m.scopes[scope].Get(ctx, key)
	if err != nil {
		m.logger.Warn("storage read failed", zap.String("scope", string(scope)), zap.String("key", key), zap.Error(err))
		return "", false
	}
	return val, ok && val != ""
}

func (m *Manager) set(ctx context.Context, scope domain.Scope, key, value string) {
	if err := m.scopes[scope].Set(ctx, key, value); err != nil {
		m.logger.Warn("storage write failed", zap.String("scope", string(scope)), zap.String("key", key), zap.Error(err))
	}
}

func (m *Manager) remove(ctx context.Context, scope domain.Scope, key string) {
	if err := m.scopes[scope].Remove(ctx, key); err != nil {
		m.logger.Warn("storage remove failed", zap.String("scope", string(scope)), zap.String("key", key), zap.Error(err))
	}
}

func (m *Manager) publish(ctx context.Context, audience domain.Audience, eventType events.EventType, payload interface{}) {
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Audience:  audience,
		Timestamp: m.now(),
		Payload:   payload,
	}
	if err := m.dispatcher.Publish(ctx, event); err != nil {
		m.logger.Warn("event handler failed", zap.String("event", string(eventType)), zap.Error(err))
	}
}
