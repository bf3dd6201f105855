package session

import "context"

// OTPPurpose declares what an emailed one-time code was issued for.
type OTPPurpose string

const (
	OTPPurposeSignup   OTPPurpose = "signup"
	OTPPurposeRecovery OTPPurpose = "recovery"
	OTPPurposeInvite   OTPPurpose = "invite"
)

// SignUpResult is the outcome of a sign-up request. Providers that require
// email confirmation return no session and ConfirmationRequired set.
type SignUpResult struct {
	ConfirmationRequired bool
	Session              *Session
}

// Provider is the contract the external auth service must satisfy. This core
// consumes exactly these operations and no more.
//
// GetSession and SessionFromRefreshToken return (nil, nil) when no session
// exists; an error means the provider could not be consulted. Errors are
// classified with the sentinels in internal/errors.
//
// Subscribe registers a listener invoked with the new session (or nil) on
// every session change, including changes originating outside this process.
// Delivery is not serialized with in-flight local calls; each delivered event
// is the new authoritative truth.
type Provider interface {
	GetSession(ctx context.Context) (*Session, error)
	Refresh(ctx context.Context) (*Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password, redirectTo string) (*SignUpResult, error)
	SignOut(ctx context.Context) error
	RequestPasswordReset(ctx context.Context, email, redirectTo string) error
	VerifyOneTimeCode(ctx context.Context, code string, purpose OTPPurpose) (*Session, error)
	SessionFromRefreshToken(ctx context.Context, refreshToken string) (*Session, error)
	Subscribe(fn func(*Session)) (unsubscribe func())
}
