package callback_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/quillfeed/sessionkit/callback"
	interrors "github.com/quillfeed/sessionkit/internal/errors"
	"github.com/quillfeed/sessionkit/session"
	"github.com/quillfeed/sessionkit/session/providerfakes"
)

const (
	landingPath        = "/"
	signInPath         = "/signin"
	passwordUpdatePath = "/account/update-password"
)

func setupResolver(t *testing.T) (*providerfakes.FakeProvider, *callback.Resolver) {
	t.Helper()
	fake := providerfakes.NewFakeProvider()
	resolver := callback.NewResolver(fake, landingPath, signInPath, passwordUpdatePath, zerolog.Nop())
	return fake, resolver
}

func TestResolveRecoveryForwardsParamsVerbatim(t *testing.T) {
	fake, resolver := setupResolver(t)

	query := url.Values{}
	query.Set("type", "recovery")
	query.Set("token", "one-time-token")
	query.Set("extra", "kept as-is")

	res, err := resolver.Resolve(context.Background(), callback.ParseParams(query))
	require.NoError(t, err)
	require.Equal(t, callback.OutcomeRecovery, res.Outcome)

	target, parseErr := url.Parse(res.Target)
	require.NoError(t, parseErr)
	require.Equal(t, passwordUpdatePath, target.Path)
	require.Equal(t, query, target.Query())

	// Recovery tokens are single-purpose; the session check must not run.
	require.Equal(t, 0, fake.GetSessionCallCount())
}

func TestResolveSuccessWithActiveSession(t *testing.T) {
	fake, resolver := setupResolver(t)
	fake.Current = &session.Session{
		User:        session.User{ID: "user-1", Email: "ada@example.com"},
		AccessToken: "at-1",
	}

	res, err := resolver.Resolve(context.Background(), callback.ParseParams(url.Values{"type": {"signup"}}))
	require.NoError(t, err)
	require.Equal(t, callback.OutcomeSuccess, res.Outcome)
	require.Equal(t, landingPath, res.Target)
}

func TestResolveNoSessionPromptsSignIn(t *testing.T) {
	_, resolver := setupResolver(t)

	res, err := resolver.Resolve(context.Background(), callback.ParseParams(url.Values{}))
	require.NoError(t, err)
	require.Equal(t, callback.OutcomeSigninPrompt, res.Outcome)

	target, parseErr := url.Parse(res.Target)
	require.NoError(t, parseErr)
	require.Equal(t, signInPath, target.Path)
	require.Equal(t, "confirm_email", target.Query().Get("notice"))
}

func TestResolveProviderErrorOffersRetry(t *testing.T) {
	fake, resolver := setupResolver(t)
	fake.GetErr = interrors.ErrProviderUnavailable

	res, err := resolver.Resolve(context.Background(), callback.ParseParams(url.Values{}))
	require.NoError(t, err)
	require.Equal(t, callback.OutcomeError, res.Outcome)

	target, parseErr := url.Parse(res.Target)
	require.NoError(t, parseErr)
	require.Equal(t, signInPath, target.Path)
}

func TestResolveConsumedCodeIsDeterministic(t *testing.T) {
	_, resolver := setupResolver(t)

	// The one-time code behind these params has already been consumed and no
	// session resulted: resolving twice lands in signin-prompt both times.
	params := callback.ParseParams(url.Values{"type": {"signup"}, "token": {"consumed"}})

	first, err := resolver.Resolve(context.Background(), params)
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), params)
	require.NoError(t, err)

	require.Equal(t, callback.OutcomeSigninPrompt, first.Outcome)
	require.Equal(t, first, second)
}

func TestResolveAbandonedFlowReturnsNoOutcome(t *testing.T) {
	_, resolver := setupResolver(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := resolver.Resolve(ctx, callback.ParseParams(url.Values{}))
	require.Error(t, err)
	require.True(t, interrors.Is(err, interrors.ErrFlowAbandoned))
}

func TestResolveRecoveryIgnoresCancelledSessionState(t *testing.T) {
	fake, resolver := setupResolver(t)

	// Recovery classification needs no provider round trip, so it resolves
	// even with a short-lived request context.
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := resolver.Resolve(ctx, callback.ParseParams(url.Values{"type": {"recovery"}}))
	require.NoError(t, err)
	require.Equal(t, callback.OutcomeRecovery, res.Outcome)
	require.Equal(t, 0, fake.GetSessionCallCount())
}
