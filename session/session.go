// Package session holds the application's single source of truth for the
// authenticated principal: the Session model, the Provider contract over the
// external auth service, and the process-wide Store that the rest of the
// application reads session state from.
package session

import "time"

// User is the authenticated principal. It is owned by its Session and never
// persisted independently of one.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Session is one authenticated principal's active credential set. Sessions
// are replaced wholesale on every refresh; fields are never mutated in place
// after construction.
type Session struct {
	User         User      `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token has passed its expiry. A zero
// ExpiresAt means the provider did not communicate one; treat as live.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Matches reports whether other carries the same credential set. Used to
// recognize a late-arriving provider event for a session that was already
// signed out locally.
func (s *Session) Matches(other *Session) bool {
	if s == nil || other == nil {
		return false
	}
	if s.RefreshToken != "" && s.RefreshToken == other.RefreshToken {
		return true
	}
	return s.AccessToken != "" && s.AccessToken == other.AccessToken
}
