// Package callback classifies inbound auth redirects (email confirmation,
// password recovery, generic) and dispatches each to its next step.
package callback

import (
	"context"
	"net/url"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	interrors "github.com/quillfeed/sessionkit/internal/errors"
	"github.com/quillfeed/sessionkit/session"
)

// FlowTypeRecovery marks a password-recovery redirect. Recovery tokens are
// single-purpose; a recovery flow must never pass through a generic session
// check that could consume them.
const FlowTypeRecovery = "recovery"

// Outcome is the resolved next step for one inbound callback request.
type Outcome int

const (
	// OutcomeSuccess: a valid session exists; continue to the landing page.
	OutcomeSuccess Outcome = iota
	// OutcomeSigninPrompt: no session; send to sign-in with a hint to check
	// email, since the provider may require explicit confirmation.
	OutcomeSigninPrompt
	// OutcomeRecovery: forward to the password-update page with the original
	// parameters intact.
	OutcomeRecovery
	// OutcomeError: the provider could not be consulted; offer a retry via
	// sign-in.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSigninPrompt:
		return "signin_prompt"
	case OutcomeRecovery:
		return "recovery"
	case OutcomeError:
		return "error"
	}
	return "success"
}

// Params are the auth redirect parameters carried by one inbound request.
// Raw keeps every original query parameter for verbatim forwarding.
type Params struct {
	Type string
	Raw  url.Values
}

// ParseParams extracts callback parameters from a request query.
func ParseParams(query url.Values) Params {
	return Params{
		Type: query.Get("type"),
		Raw:  query,
	}
}

// Resolution is a resolved callback: where to send the user next.
type Resolution struct {
	Outcome Outcome
	Target  string
}

// Resolver runs the callback state machine. It is idempotent per inbound
// request: re-resolving parameters whose one-time code was already consumed
// lands deterministically in signin-prompt or error, never a second success.
type Resolver struct {
	provider           session.Provider
	landingPath        string
	signInPath         string
	passwordUpdatePath string
	log                zerolog.Logger
}

func NewResolver(provider session.Provider, landingPath, signInPath, passwordUpdatePath string, logger zerolog.Logger) *Resolver {
	return &Resolver{
		provider:           provider,
		landingPath:        landingPath,
		signInPath:         signInPath,
		passwordUpdatePath: passwordUpdatePath,
		log:                logger.With().Str("component", "callback_resolver").Logger(),
	}
}

// Resolve classifies the callback and produces the next step. Recovery flows
// are forwarded without consulting the provider. A context cancelled before
// resolution completes returns ErrFlowAbandoned and mutates nothing; the
// result of an abandoned flow must not be acted on.
func (r *Resolver) Resolve(ctx context.Context, p Params) (Resolution, error) {
	log := r.log.With().Str("flow_id", uuid.NewString()).Logger()

	if p.Type == FlowTypeRecovery {
		target := r.passwordUpdatePath
		if encoded := p.Raw.Encode(); encoded != "" {
			target += "?" + encoded
		}
		log.Info().Msg("recovery redirect forwarded to password update")
		return Resolution{Outcome: OutcomeRecovery, Target: target}, nil
	}

	sess, err := r.provider.GetSession(ctx)
	if ctx.Err() != nil {
		log.Debug().Msg("callback flow abandoned before resolution")
		return Resolution{}, errors.Wrap(interrors.ErrFlowAbandoned, "[Resolver.Resolve]")
	}
	if err != nil {
		log.Warn().Err(err).Msg("session check failed during callback resolution")
		return Resolution{Outcome: OutcomeError, Target: r.signInPath + "?notice=callback_failed"}, nil
	}
	if sess != nil {
		log.Info().Str("user_id", sess.User.ID).Msg("callback resolved to active session")
		return Resolution{Outcome: OutcomeSuccess, Target: r.landingPath}, nil
	}
	log.Info().Msg("no session after callback, prompting sign-in")
	return Resolution{Outcome: OutcomeSigninPrompt, Target: r.signInPath + "?notice=confirm_email"}, nil
}
