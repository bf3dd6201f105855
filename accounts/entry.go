package accounts

import "time"

// schemaVersion guards the persisted registry format. A version mismatch on
// read marks every entry stale rather than discarding or crashing.
const schemaVersion = 1

// Entry is a remembered account available for switching, independent of
// which session is currently active. Stale entries have no resolvable
// refresh token and need re-authentication; they stay listed so the user can
// see and recover them.
type Entry struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	LastUsedAt time.Time `json:"last_used_at"`
	Stale      bool      `json:"stale,omitempty"`
}

// storedAccounts is the persisted registry schema: entries minus live
// tokens. Tokens live under a separate key, keyed by user ID.
type storedAccounts struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}
