package routeguard

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/quillfeed/sessionkit/session"
)

// Middleware gates requests through the policy. While the store has not
// finished bootstrapping it waits, bounded by the request context, rather
// than guessing; a request that expires during the wait fails closed to the
// sign-in redirect without exposing the underlying cause.
func Middleware(store *session.Store, policy Policy, logger zerolog.Logger) func(http.Handler) http.Handler {
	log := logger.With().Str("component", "route_guard").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := policy.Evaluate(r.URL.Path, store.Snapshot())
			if res.Decision == Defer {
				select {
				case <-store.Ready():
					res = policy.Evaluate(r.URL.Path, store.Snapshot())
				case <-r.Context().Done():
					log.Warn().Err(r.Context().Err()).Str("path", r.URL.Path).Msg("session state unresolved, failing closed")
					res = Result{Decision: Redirect, Target: policy.RedirectTarget(r.URL.Path)}
				}
			}
			switch res.Decision {
			case Allow:
				next.ServeHTTP(w, r)
			case Redirect:
				http.Redirect(w, r, res.Target, http.StatusSeeOther)
			default:
				// Still unknown after readiness; fail closed.
				log.Warn().Str("path", r.URL.Path).Msg("guard deferred after store ready, failing closed")
				http.Redirect(w, r, policy.RedirectTarget(r.URL.Path), http.StatusSeeOther)
			}
		})
	}
}
