// Package accounts keeps a registry of previously-authenticated identities
// and their cached refresh tokens, supporting account switching without a
// full sign-out. The registry owns its entries independently of the active
// session; persistence goes exclusively through the storage Adapter.
package accounts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	interrors "github.com/quillfeed/sessionkit/internal/errors"
	"github.com/quillfeed/sessionkit/session"
	"github.com/quillfeed/sessionkit/storage"
)

const (
	storedAccountsKey = "sessionkit.accounts"
	refreshTokensKey  = "sessionkit.refresh_tokens"
	pendingSwitchKey  = "sessionkit.pending_switch"
)

type Registry struct {
	provider session.Provider
	store    *session.Store
	storage  *storage.Adapter
	log      zerolog.Logger
	nowTime  func() time.Time

	mu      sync.Mutex
	entries map[string]Entry
	tokens  map[string]string
}

// RegistryOption modifies a Registry at construction.
type RegistryOption func(*Registry)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowTime = nowFunc
	}
}

// NewRegistry loads the persisted registry and token cache. Malformed or
// version-mismatched data degrades to stale entries, never an error.
func NewRegistry(provider session.Provider, store *session.Store, adapter *storage.Adapter, logger zerolog.Logger, options ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("[NewRegistry] provider is required")
	}
	if store == nil {
		return nil, errors.New("[NewRegistry] session store is required")
	}
	if adapter == nil {
		return nil, errors.New("[NewRegistry] storage adapter is required")
	}

	r := &Registry{
		provider: provider,
		store:    store,
		storage:  adapter,
		log:      logger.With().Str("component", "account_registry").Logger(),
		nowTime:  time.Now,
		entries:  make(map[string]Entry),
		tokens:   make(map[string]string),
	}
	for _, opt := range options {
		opt(r)
	}
	r.load()
	return r, nil
}

func (r *Registry) load() {
	var stored storedAccounts
	if r.storage.ReadJSON(storedAccountsKey, &stored) {
		versionMismatch := stored.Version != schemaVersion
		if versionMismatch {
			r.log.Warn().Int("version", stored.Version).Msg("unknown registry schema version, marking accounts stale")
		}
		for _, e := range stored.Entries {
			if e.UserID == "" {
				r.log.Warn().Str("email", e.Email).Msg("dropping registry entry without user id")
				continue
			}
			if versionMismatch {
				e.Stale = true
			}
			r.entries[e.UserID] = e
		}
	}
	r.storage.ReadJSON(refreshTokensKey, &r.tokens)
	if r.tokens == nil {
		r.tokens = make(map[string]string)
	}
}

// AddOrUpdate upserts an entry by user ID, refreshing its last-used
// timestamp. An empty refreshToken leaves the token cache untouched.
func (r *Registry) AddOrUpdate(entry Entry, refreshToken string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.LastUsedAt = r.nowTime()
	if refreshToken != "" {
		r.tokens[entry.UserID] = refreshToken
		entry.Stale = false
	}
	r.entries[entry.UserID] = entry
	r.persistLocked()
}

// Remember records a successful sign-in: the session's user becomes a
// registry entry with its refresh token cached.
func (r *Registry) Remember(sess *session.Session) {
	if sess == nil {
		return
	}
	r.AddOrUpdate(Entry{
		UserID: sess.User.ID,
		Email:  sess.User.Email,
	}, sess.RefreshToken)
}

// Remove forgets an account: its entry and cached refresh token are deleted.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, userID)
	delete(r.tokens, userID)
	r.persistLocked()
}

// List returns all entries, most recently used first.
func (r *Registry) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsedAt.After(out[j].LastUsedAt)
	})
	return out
}

// SwitchTo establishes a session for a registered account using its cached
// refresh token. On success the Session Store adopts the new session and the
// entry becomes most recently used. On failure the active session is left
// untouched; a revoked or missing token marks the entry stale rather than
// deleting it, so the user can see it needs re-authentication.
func (r *Registry) SwitchTo(ctx context.Context, userID string) (*session.Session, error) {
	r.mu.Lock()
	_, known := r.entries[userID]
	token := r.tokens[userID]
	r.mu.Unlock()

	if !known {
		return nil, errors.Wrap(interrors.ErrUnknownAccount, "[Registry.SwitchTo]")
	}
	if token == "" {
		r.markStale(userID)
		return nil, errors.Wrap(interrors.ErrNoStoredCredential, "[Registry.SwitchTo]")
	}

	sess, err := r.provider.SessionFromRefreshToken(ctx, token)
	if err != nil {
		if !interrors.Is(err, interrors.ErrProviderUnavailable) {
			// Token revoked or expired; the cached credential is dead.
			r.markStale(userID)
		}
		return nil, errors.Wrap(err, "[Registry.SwitchTo] establish session")
	}
	if sess == nil {
		r.markStale(userID)
		return nil, errors.Wrap(interrors.ErrNoStoredCredential, "[Registry.SwitchTo] provider returned no session")
	}

	r.store.Adopt(sess)

	r.mu.Lock()
	entry := r.entries[userID]
	entry.UserID = userID
	if sess.User.Email != "" {
		entry.Email = sess.User.Email
	}
	entry.LastUsedAt = r.nowTime()
	entry.Stale = false
	r.entries[userID] = entry
	if sess.RefreshToken != "" {
		// The provider rotated the token; keep the new one.
		r.tokens[userID] = sess.RefreshToken
	}
	r.persistLocked()
	r.mu.Unlock()

	return sess, nil
}

// Reconcile cross-checks entries against the token cache without any network
// calls: entries with no token are flagged stale, tokens with no entry are
// dropped. Run once on startup.
func (r *Registry) Reconcile() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		if r.tokens[id] == "" && !e.Stale {
			r.log.Info().Str("user_id", id).Msg("no refresh token for account, flagging stale")
			e.Stale = true
			r.entries[id] = e
		}
	}
	for id := range r.tokens {
		if _, ok := r.entries[id]; !ok {
			r.log.Info().Str("user_id", id).Msg("dropping orphaned refresh token")
			delete(r.tokens, id)
		}
	}
	r.persistLocked()
}

// Purge forgets every account and cached token. This is the "sign out
// everywhere" operation, independent of Store.SignOut which only clears the
// active session.
func (r *Registry) Purge() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Entry)
	r.tokens = make(map[string]string)
	r.storage.Remove(storedAccountsKey)
	r.storage.Remove(refreshTokensKey)
	r.storage.Remove(pendingSwitchKey)
}

// SetPendingSwitch records a single-use marker that a switch to userID is in
// flight across a reload.
func (r *Registry) SetPendingSwitch(userID string) {
	r.storage.WriteString(pendingSwitchKey, userID)
}

// TakePendingSwitch consumes the pending-switch marker, if any.
func (r *Registry) TakePendingSwitch() (string, bool) {
	userID := r.storage.ReadString(pendingSwitchKey, "")
	if userID == "" {
		return "", false
	}
	r.storage.Remove(pendingSwitchKey)
	return userID, true
}

func (r *Registry) markStale(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	if !ok {
		return
	}
	e.Stale = true
	r.entries[userID] = e
	r.persistLocked()
}

func (r *Registry) persistLocked() {
	stored := storedAccounts{Version: schemaVersion, Entries: make([]Entry, 0, len(r.entries))}
	for _, e := range r.entries {
		stored.Entries = append(stored.Entries, e)
	}
	r.storage.WriteJSON(storedAccountsKey, stored)
	r.storage.WriteJSON(refreshTokensKey, r.tokens)
}
