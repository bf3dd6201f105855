// Package storage provides failure-tolerant access to persistent client-side
// state. The Adapter is the single write path to the underlying Backend; it
// never returns errors, logging and degrading to caller-supplied defaults so
// that no caller needs defensive handling around storage access.
package storage

import (
	"encoding/json"

	"github.com/rs/zerolog"

	interrors "github.com/quillfeed/sessionkit/internal/errors"
)

type Adapter struct {
	backend Backend
	log     zerolog.Logger
}

func NewAdapter(backend Backend, logger zerolog.Logger) *Adapter {
	return &Adapter{
		backend: backend,
		log:     logger.With().Str("component", "storage").Logger(),
	}
}

// ReadString returns the stored value for key, or def when the key is absent
// or the backend fails. Absence is a valid non-error state and is not logged.
func (a *Adapter) ReadString(key, def string) string {
	v, err := a.backend.Get(key)
	if err != nil {
		if !interrors.Is(err, interrors.ErrKeyNotFound) {
			a.log.Warn().Err(err).Str("key", key).Msg("storage read failed, using default")
		}
		return def
	}
	return v
}

// ReadJSON decodes the stored value for key into target. It reports false
// when the key is absent, the backend fails, or the value does not parse;
// target is left untouched in the parse-failure case only if decoding never
// started, so callers should treat a false return as "use zero value".
func (a *Adapter) ReadJSON(key string, target interface{}) bool {
	v, err := a.backend.Get(key)
	if err != nil {
		if !interrors.Is(err, interrors.ErrKeyNotFound) {
			a.log.Warn().Err(err).Str("key", key).Msg("storage read failed, using default")
		}
		return false
	}
	if err := json.Unmarshal([]byte(v), target); err != nil {
		a.log.Warn().Err(err).Str("key", key).Msg("corrupt stored value, using default")
		return false
	}
	return true
}

// WriteString stores value under key, reporting success.
func (a *Adapter) WriteString(key, value string) bool {
	if err := a.backend.Set(key, value); err != nil {
		a.log.Warn().Err(err).Str("key", key).Msg("storage write failed")
		return false
	}
	return true
}

// WriteJSON serializes value and stores it under key, reporting success.
func (a *Adapter) WriteJSON(key string, value interface{}) bool {
	data, err := json.Marshal(value)
	if err != nil {
		a.log.Warn().Err(err).Str("key", key).Msg("storage marshal failed")
		return false
	}
	return a.WriteString(key, string(data))
}

// Remove deletes key, reporting success. Removing an absent key succeeds.
func (a *Adapter) Remove(key string) bool {
	if err := a.backend.Delete(key); err != nil {
		a.log.Warn().Err(err).Str("key", key).Msg("storage remove failed")
		return false
	}
	return true
}
