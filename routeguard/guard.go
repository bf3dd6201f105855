// Package routeguard decides whether a requested path may be served with the
// current session state. The decision function is pure; the HTTP middleware
// in this package adapts it to a request pipeline.
package routeguard

import (
	"net/url"
	"strings"

	"github.com/quillfeed/sessionkit/session"
)

// Decision is the guard's verdict for one request.
type Decision int

const (
	// Allow serves the request as-is.
	Allow Decision = iota
	// Redirect sends the client to Result.Target instead.
	Redirect
	// Defer means session state is still unknown; the caller must wait or
	// render a neutral loading state, never assume either outcome.
	Defer
)

func (d Decision) String() string {
	switch d {
	case Redirect:
		return "redirect"
	case Defer:
		return "defer"
	}
	return "allow"
}

// Result pairs a Decision with the redirect target when relevant.
type Result struct {
	Decision Decision
	Target   string
}

// Policy is the declarative route gating surface: path prefixes that require
// an authenticated session, and where to send unauthenticated requests.
type Policy struct {
	// Protected lists path prefixes requiring a session. A prefix matches
	// itself and any sub-path, never a sibling sharing the prefix string.
	Protected []string
	// SignInPath is the redirect target for unauthenticated requests.
	SignInPath string
	// ReturnParam is the query parameter carrying the original path as a
	// return hint. Defaults to "redirect_to".
	ReturnParam string
}

// Evaluate decides whether path may be served given the session state. While
// state is unknown it defers for every path, never allow or redirect.
func (p Policy) Evaluate(path string, state session.State) Result {
	if state.Status == session.StatusUnknown {
		return Result{Decision: Defer}
	}
	if !p.protected(path) || state.Status == session.StatusPresent {
		return Result{Decision: Allow}
	}
	return Result{Decision: Redirect, Target: p.RedirectTarget(path)}
}

// RedirectTarget builds the sign-in redirect carrying path as a return hint.
func (p Policy) RedirectTarget(path string) string {
	signIn := p.SignInPath
	if signIn == "" {
		signIn = "/signin"
	}
	param := p.ReturnParam
	if param == "" {
		param = "redirect_to"
	}
	v := url.Values{}
	v.Set(param, path)
	return signIn + "?" + v.Encode()
}

func (p Policy) protected(path string) bool {
	for _, prefix := range p.Protected {
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}
