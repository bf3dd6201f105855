package providerfakes

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	interrors "github.com/quillfeed/sessionkit/internal/errors"
	"github.com/quillfeed/sessionkit/session"
)

var _ session.Provider = (*FakeProvider)(nil)

// FakeProvider is a scripted in-memory session.Provider for tests. Results
// are injected per operation; Emit drives subscription events the way an
// out-of-band provider change would.
type FakeProvider struct {
	lock sync.Mutex

	Current    *session.Session
	GetErr     error
	SignInErr  error
	SignOutErr error
	VerifyErr  error
	RefreshErr error
	ResetErr   error
	SignUpRes  *session.SignUpResult
	SignUpErr  error

	// Credentials maps email -> password accepted by SignInWithPassword.
	Credentials map[string]string
	// SessionsByEmail maps email -> session returned on successful sign-in.
	SessionsByEmail map[string]*session.Session
	// SessionsByRefreshToken maps refresh token -> session returned by
	// SessionFromRefreshToken. Unknown tokens fail as revoked.
	SessionsByRefreshToken map[string]*session.Session

	getSessionCalls int
	signOutCalls    int

	subs    map[int]func(*session.Session)
	nextSub int
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		Credentials:            make(map[string]string),
		SessionsByEmail:        make(map[string]*session.Session),
		SessionsByRefreshToken: make(map[string]*session.Session),
		subs:                   make(map[int]func(*session.Session)),
	}
}

func (f *FakeProvider) GetSession(ctx context.Context) (*session.Session, error) {
	f.lock.Lock()
	f.getSessionCalls++
	cur, err := f.Current, f.GetErr
	f.lock.Unlock()
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (f *FakeProvider) Refresh(ctx context.Context) (*session.Session, error) {
	f.lock.Lock()
	cur, err := f.Current, f.RefreshErr
	f.lock.Unlock()
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (f *FakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	f.lock.Lock()
	if f.SignInErr != nil {
		err := f.SignInErr
		f.lock.Unlock()
		return nil, err
	}
	if pw, ok := f.Credentials[email]; !ok || pw != password {
		f.lock.Unlock()
		return nil, errors.Wrap(interrors.ErrInvalidCredentials, "[FakeProvider.SignInWithPassword]")
	}
	sess := f.SessionsByEmail[email]
	f.Current = sess
	f.lock.Unlock()
	f.emit(sess)
	return sess, nil
}

func (f *FakeProvider) SignUp(ctx context.Context, email, password, redirectTo string) (*session.SignUpResult, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.SignUpErr != nil {
		return nil, f.SignUpErr
	}
	if f.SignUpRes != nil {
		return f.SignUpRes, nil
	}
	return &session.SignUpResult{ConfirmationRequired: true}, nil
}

func (f *FakeProvider) SignOut(ctx context.Context) error {
	f.lock.Lock()
	f.signOutCalls++
	if f.SignOutErr != nil {
		err := f.SignOutErr
		f.lock.Unlock()
		return err
	}
	f.Current = nil
	f.lock.Unlock()
	f.emit(nil)
	return nil
}

func (f *FakeProvider) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.ResetErr
}

func (f *FakeProvider) VerifyOneTimeCode(ctx context.Context, code string, purpose session.OTPPurpose) (*session.Session, error) {
	f.lock.Lock()
	if f.VerifyErr != nil {
		err := f.VerifyErr
		f.lock.Unlock()
		return nil, err
	}
	cur := f.Current
	f.lock.Unlock()
	if cur == nil {
		return nil, errors.Wrap(interrors.ErrInvalidOrExpiredCode, "[FakeProvider.VerifyOneTimeCode]")
	}
	return cur, nil
}

func (f *FakeProvider) SessionFromRefreshToken(ctx context.Context, refreshToken string) (*session.Session, error) {
	f.lock.Lock()
	sess, ok := f.SessionsByRefreshToken[refreshToken]
	f.lock.Unlock()
	if !ok {
		return nil, errors.Wrap(interrors.ErrInvalidRefreshToken, "[FakeProvider.SessionFromRefreshToken]")
	}
	f.lock.Lock()
	f.Current = sess
	f.lock.Unlock()
	return sess, nil
}

func (f *FakeProvider) Subscribe(fn func(*session.Session)) func() {
	f.lock.Lock()
	defer f.lock.Unlock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	return func() {
		f.lock.Lock()
		defer f.lock.Unlock()
		delete(f.subs, id)
	}
}

// Emit delivers a session event to all subscribers, simulating an
// out-of-band provider change.
func (f *FakeProvider) Emit(sess *session.Session) {
	f.lock.Lock()
	f.Current = sess
	f.lock.Unlock()
	f.emit(sess)
}

func (f *FakeProvider) emit(sess *session.Session) {
	f.lock.Lock()
	fns := make([]func(*session.Session), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.lock.Unlock()
	for _, fn := range fns {
		fn(sess)
	}
}

// GetSessionCallCount reports how many times GetSession was invoked.
func (f *FakeProvider) GetSessionCallCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.getSessionCalls
}

// SignOutCallCount reports how many times SignOut was invoked.
func (f *FakeProvider) SignOutCallCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.signOutCalls
}

// SubscriberCount reports the number of live subscriptions.
func (f *FakeProvider) SubscriberCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.subs)
}
