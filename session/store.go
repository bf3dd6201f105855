package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Status is the Store's view of whether a session exists. StatusUnknown is a
// valid transient state before bootstrap completes and must never be
// conflated with StatusAbsent.
type Status int

const (
	StatusUnknown Status = iota
	StatusAbsent
	StatusPresent
)

func (s Status) String() string {
	switch s {
	case StatusAbsent:
		return "absent"
	case StatusPresent:
		return "present"
	}
	return "unknown"
}

// State is the Store's whole-value session state. It is replaced atomically,
// never partially merged, so a reader always sees a consistent pair.
type State struct {
	Status  Status
	Session *Session
}

// Store is the process-wide owner of the active session. All mutation goes
// through its entry points; consumers read via Snapshot and Watch.
type Store struct {
	provider Provider
	log      zerolog.Logger
	nowTime  func() time.Time

	ready     chan struct{}
	readyOnce sync.Once

	mu          sync.Mutex
	state       State
	tombstone   *Session // session cleared by the last explicit sign-out
	unsubscribe func()
	watchers    map[int]chan State
	nextWatcher int
	closed      bool
}

// StoreOption modifies a Store at construction.
type StoreOption func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

func NewStore(provider Provider, logger zerolog.Logger, options ...StoreOption) *Store {
	s := &Store{
		provider: provider,
		log:      logger.With().Str("component", "session_store").Logger(),
		nowTime:  time.Now,
		ready:    make(chan struct{}),
		watchers: make(map[int]chan State),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Ready is closed once bootstrap has produced the first known state. Until
// then Snapshot reports StatusUnknown and route decisions must defer.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Snapshot returns the current state. The contained Session is shared and
// must be treated as immutable.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Bootstrap establishes the initial state from the provider and then
// subscribes to its session events. Provider errors are logged and collapse
// to absent so consumers are never left in unknown indefinitely.
func (s *Store) Bootstrap(ctx context.Context) State {
	sess, err := s.provider.GetSession(ctx)
	s.mu.Lock()
	if err != nil {
		s.log.Warn().Err(err).Msg("bootstrap session fetch failed, treating as signed out")
		s.setLocked(nil)
	} else {
		s.setLocked(sess)
	}
	st := s.state
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	s.mu.Lock()
	subscribed := s.unsubscribe != nil || s.closed
	s.mu.Unlock()
	if subscribed {
		return st
	}

	unsub := s.provider.Subscribe(s.applyEvent)
	s.mu.Lock()
	if s.closed || s.unsubscribe != nil {
		s.mu.Unlock()
		unsub()
		return st
	}
	s.unsubscribe = unsub
	s.mu.Unlock()
	return st
}

// Refresh re-fetches the session from the provider. The previous state stays
// visible until the result arrives; errors collapse to absent after logging.
func (s *Store) Refresh(ctx context.Context) State {
	sess, err := s.provider.GetSession(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.log.Warn().Err(err).Msg("session refresh failed, treating as signed out")
		s.setLocked(nil)
		return s.state
	}
	s.tombstone = nil
	s.setLocked(sess)
	return s.state
}

// SignOut clears the local state immediately, before the provider round trip
// completes, and remembers the cleared session so a late-arriving provider
// event for it cannot flicker the user back to authenticated. The provider
// error, if any, is returned after the local clear.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Status == StatusPresent {
		s.tombstone = s.state.Session
	}
	s.setLocked(nil)
	s.mu.Unlock()

	if err := s.provider.SignOut(ctx); err != nil {
		return errors.Wrap(err, "[Store.SignOut] provider sign out")
	}
	return nil
}

// Adopt replaces the state with an externally established session. Used by
// the account registry after a successful switch.
func (s *Store) Adopt(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tombstone = nil
	s.setLocked(sess)
	s.readyOnce.Do(func() { close(s.ready) })
}

// Watch returns a channel of state snapshots and an unsubscribe function.
// Slow consumers see the latest state rather than every intermediate one.
func (s *Store) Watch() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextWatcher
	s.nextWatcher++
	ch := make(chan State, 4)
	s.watchers[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(ch)
		}
	}
}

// Close unsubscribes from the provider and drops all watchers. The Store
// must not be used afterwards.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub := s.unsubscribe
	s.unsubscribe = nil
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// applyEvent is the provider subscription callback. Every event overwrites
// the current state, except an event matching the just-signed-out session.
func (s *Store) applyEvent(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if sess == nil {
		// A signed-out echo; consistent with the tombstone, so keep it armed
		// against a later stale session event.
		s.setLocked(nil)
		return
	}
	if s.tombstone.Matches(sess) {
		s.log.Debug().Str("user_id", sess.User.ID).Msg("ignoring stale event for signed-out session")
		return
	}
	s.tombstone = nil
	s.setLocked(sess)
}

func (s *Store) setLocked(sess *Session) {
	if sess == nil {
		s.state = State{Status: StatusAbsent}
	} else {
		s.state = State{Status: StatusPresent, Session: sess}
	}
	for _, ch := range s.watchers {
		select {
		case ch <- s.state:
		default:
			// Drop the oldest pending snapshot so the latest always lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s.state:
			default:
			}
		}
	}
}
