package server

import (
	"encoding/json"
	"net/http"

	interrors "github.com/quillfeed/sessionkit/internal/errors"
	"github.com/quillfeed/sessionkit/callback"
	"github.com/quillfeed/sessionkit/session"
)

type sessionView struct {
	Status string        `json:"status"`
	User   *session.User `json:"user,omitempty"`
}

// SignInHandler performs a password sign-in, remembers the account for
// switching, and makes the new session active.
func (s *Server) SignInHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.FormValue("email")
		password := r.FormValue("password")
		if email == "" || password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}

		sess, err := s.provider.SignInWithPassword(r.Context(), email, password)
		if err != nil {
			if interrors.Is(err, interrors.ErrInvalidCredentials) {
				writeError(w, http.StatusUnauthorized, "invalid email or password")
				return
			}
			s.log.Warn().Err(err).Msg("sign-in failed")
			writeError(w, http.StatusBadGateway, "auth provider unavailable, try again")
			return
		}

		s.store.Adopt(sess)
		s.registry.Remember(sess)
		writeJSON(w, http.StatusOK, sessionView{Status: session.StatusPresent.String(), User: &sess.User})
	}
}

// SignUpHandler registers an account. When the provider requires email
// confirmation no session exists yet and the caller is told to check email.
func (s *Server) SignUpHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.FormValue("email")
		password := r.FormValue("password")
		if email == "" || password == "" {
			writeError(w, http.StatusBadRequest, "email and password are required")
			return
		}

		result, err := s.provider.SignUp(r.Context(), email, password, r.FormValue("redirect_to"))
		if err != nil {
			s.log.Warn().Err(err).Msg("sign-up failed")
			writeError(w, http.StatusBadGateway, "auth provider unavailable, try again")
			return
		}
		if result.ConfirmationRequired {
			writeJSON(w, http.StatusAccepted, map[string]bool{"confirmation_required": true})
			return
		}

		s.store.Adopt(result.Session)
		s.registry.Remember(result.Session)
		writeJSON(w, http.StatusOK, sessionView{Status: session.StatusPresent.String(), User: &result.Session.User})
	}
}

// SignOutHandler clears the active session. With scope=all the account
// registry and token cache are purged as well; the two operations are
// otherwise independent.
func (s *Server) SignOutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.store.SignOut(r.Context())
		if r.FormValue("scope") == "all" {
			s.registry.Purge()
		}
		if err != nil {
			// Local state is already cleared; report the revocation failure.
			s.log.Warn().Err(err).Msg("provider sign-out failed after local clear")
			writeError(w, http.StatusBadGateway, "signed out locally, provider revocation failed")
			return
		}
		writeJSON(w, http.StatusOK, sessionView{Status: session.StatusAbsent.String()})
	}
}

// RecoverHandler requests a password-recovery email.
func (s *Server) RecoverHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.FormValue("email")
		if email == "" {
			writeError(w, http.StatusBadRequest, "email is required")
			return
		}
		if err := s.provider.RequestPasswordReset(r.Context(), email, r.FormValue("redirect_to")); err != nil {
			s.log.Warn().Err(err).Msg("password reset request failed")
			writeError(w, http.StatusBadGateway, "auth provider unavailable, try again")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]bool{"recovery_sent": true})
	}
}

// VerifyHandler exchanges a manually entered one-time code for a session,
// the fallback when a confirmation link cannot be followed.
func (s *Server) VerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.FormValue("code")
		if code == "" {
			writeError(w, http.StatusBadRequest, "code is required")
			return
		}
		purpose := session.OTPPurpose(r.FormValue("type"))
		if purpose == "" {
			purpose = session.OTPPurposeSignup
		}

		sess, err := s.provider.VerifyOneTimeCode(r.Context(), code, purpose)
		if err != nil {
			if interrors.Is(err, interrors.ErrInvalidOrExpiredCode) {
				writeError(w, http.StatusUnauthorized, "code is invalid or expired, request a new one")
				return
			}
			s.log.Warn().Err(err).Msg("code verification failed")
			writeError(w, http.StatusBadGateway, "auth provider unavailable, try again")
			return
		}

		s.store.Adopt(sess)
		s.registry.Remember(sess)
		writeJSON(w, http.StatusOK, sessionView{Status: session.StatusPresent.String(), User: &sess.User})
	}
}

// CallbackHandler is the landing endpoint for provider redirects. It feeds
// the flow resolver and follows its verdict.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resolution, err := s.resolver.Resolve(r.Context(), callback.ParseParams(r.URL.Query()))
		if err != nil {
			// The client went away mid-resolution; nothing to deliver.
			return
		}
		if resolution.Outcome == callback.OutcomeSuccess {
			s.store.Refresh(r.Context())
		}
		http.Redirect(w, r, resolution.Target, http.StatusSeeOther)
	}
}

// SessionHandler reports the current session state without exposing tokens.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := s.store.Snapshot()
		view := sessionView{Status: state.Status.String()}
		if state.Session != nil {
			view.User = &state.Session.User
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// AccountsHandler lists remembered accounts, most recently used first.
func (s *Server) AccountsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.registry.List())
	}
}

// AccountSwitchHandler activates a remembered account via its cached refresh
// token. A dead credential leaves the entry listed as stale so the user can
// re-authenticate it.
func (s *Server) AccountSwitchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.FormValue("user_id")
		if userID == "" {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}

		sess, err := s.registry.SwitchTo(r.Context(), userID)
		if err != nil {
			switch {
			case interrors.Is(err, interrors.ErrUnknownAccount):
				writeError(w, http.StatusNotFound, "account not found")
			case interrors.Is(err, interrors.ErrNoStoredCredential), interrors.Is(err, interrors.ErrInvalidRefreshToken):
				writeJSON(w, http.StatusConflict, map[string]interface{}{
					"error":        "account needs re-authentication",
					"needs_reauth": true,
				})
			default:
				s.log.Warn().Err(err).Str("user_id", userID).Msg("account switch failed")
				writeError(w, http.StatusBadGateway, "auth provider unavailable, try again")
			}
			return
		}
		writeJSON(w, http.StatusOK, sessionView{Status: session.StatusPresent.String(), User: &sess.User})
	}
}

// AccountForgetHandler removes a remembered account and its cached token.
func (s *Server) AccountForgetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.FormValue("user_id")
		if userID == "" {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}
		s.registry.Remove(userID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ProfileHandler serves the protected profile family. The route guard has
// already ensured a session is present.
func (s *Server) ProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := s.store.Snapshot()
		view := sessionView{Status: state.Status.String()}
		if state.Session != nil {
			view.User = &state.Session.User
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
