package oidcgateway_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/quillfeed/sessionkit/gateway/oidcgateway"
	interrors "github.com/quillfeed/sessionkit/internal/errors"
	"github.com/quillfeed/sessionkit/session"
)

const (
	testClientID  = "quillfeed-web"
	testUserID    = "user-1"
	testUserEmail = "ada@example.com"
	testPassword  = "correct horse"
	signingKey    = "test-signing-key"
)

// fakeIssuer is a minimal OIDC-ish auth service: discovery, a token endpoint
// speaking the password and refresh_token grants, and the REST endpoints the
// gateway uses for signup/recover/verify/logout.
type fakeIssuer struct {
	url           string
	refreshTokens map[string]bool
	validCodes    map[string]bool
}

func newFakeIssuer(t *testing.T) (*fakeIssuer, *httptest.Server) {
	t.Helper()
	f := &fakeIssuer{
		refreshTokens: map[string]bool{"rt-valid": true},
		validCodes:    map[string]bool{"otp-valid": true},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", f.discovery)
	mux.HandleFunc("/token", f.token)
	mux.HandleFunc("/signup", f.signup)
	mux.HandleFunc("/recover", f.recover)
	mux.HandleFunc("/verify", f.verify)
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	f.url = ts.URL
	return f, ts
}

func (f *fakeIssuer) discovery(w http.ResponseWriter, r *http.Request) {
	writeBody(w, http.StatusOK, map[string]interface{}{
		"issuer":                 f.url,
		"authorization_endpoint": f.url + "/authorize",
		"token_endpoint":         f.url + "/token",
		"jwks_uri":               f.url + "/keys",
	})
}

func (f *fakeIssuer) token(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	switch r.FormValue("grant_type") {
	case "password":
		if r.FormValue("username") != testUserEmail || r.FormValue("password") != testPassword {
			writeBody(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	case "refresh_token":
		if !f.refreshTokens[r.FormValue("refresh_token")] {
			writeBody(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
	default:
		writeBody(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}
	writeBody(w, http.StatusOK, map[string]interface{}{
		"access_token":  f.accessToken(),
		"token_type":    "bearer",
		"refresh_token": "rt-rotated",
		"expires_in":    3600,
	})
}

func (f *fakeIssuer) signup(w http.ResponseWriter, r *http.Request) {
	// Confirmation required: a user record but no tokens.
	writeBody(w, http.StatusOK, map[string]interface{}{
		"user": map[string]string{"id": "user-new", "email": "new@example.com"},
	})
}

func (f *fakeIssuer) recover(w http.ResponseWriter, r *http.Request) {
	writeBody(w, http.StatusOK, map[string]string{})
}

func (f *fakeIssuer) verify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if !f.validCodes[body.Token] {
		writeBody(w, http.StatusUnauthorized, map[string]string{"error": "invalid code"})
		return
	}
	writeBody(w, http.StatusOK, map[string]interface{}{
		"access_token":  f.accessToken(),
		"refresh_token": "rt-from-otp",
		"expires_in":    3600,
		"user":          map[string]string{"id": testUserID, "email": testUserEmail},
	})
}

func (f *fakeIssuer) accessToken() string {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   testUserID,
		"email": testUserEmail,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(signingKey))
	if err != nil {
		panic(fmt.Sprintf("sign test token: %v", err))
	}
	return tok
}

func writeBody(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func setupGateway(t *testing.T) (*fakeIssuer, *oidcgateway.Gateway) {
	t.Helper()
	issuer, _ := newFakeIssuer(t)
	gw, err := oidcgateway.New(context.Background(), oidcgateway.Config{
		IssuerURL: issuer.url,
		ClientID:  testClientID,
	}, zerolog.Nop())
	require.NoError(t, err)
	return issuer, gw
}

func TestGatewaySignInWithPassword(t *testing.T) {
	_, gw := setupGateway(t)

	sess, err := gw.SignInWithPassword(context.Background(), testUserEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, testUserID, sess.User.ID)
	require.Equal(t, testUserEmail, sess.User.Email)
	require.Equal(t, "rt-rotated", sess.RefreshToken)
	require.False(t, sess.Expired(time.Now()))

	got, err := gw.GetSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, sess.User.ID, got.User.ID)
}

func TestGatewaySignInRejectsBadPassword(t *testing.T) {
	_, gw := setupGateway(t)

	_, err := gw.SignInWithPassword(context.Background(), testUserEmail, "wrong")
	require.Error(t, err)
	require.True(t, interrors.Is(err, interrors.ErrInvalidCredentials))
}

func TestGatewaySessionFromRefreshToken(t *testing.T) {
	_, gw := setupGateway(t)

	sess, err := gw.SessionFromRefreshToken(context.Background(), "rt-valid")
	require.NoError(t, err)
	require.Equal(t, testUserID, sess.User.ID)
}

func TestGatewayRejectsRevokedRefreshToken(t *testing.T) {
	_, gw := setupGateway(t)

	_, err := gw.SessionFromRefreshToken(context.Background(), "rt-revoked")
	require.Error(t, err)
	require.True(t, interrors.Is(err, interrors.ErrInvalidRefreshToken))
	require.False(t, interrors.Is(err, interrors.ErrProviderUnavailable))
}

func TestGatewayVerifyOneTimeCode(t *testing.T) {
	_, gw := setupGateway(t)

	sess, err := gw.VerifyOneTimeCode(context.Background(), "otp-valid", session.OTPPurposeSignup)
	require.NoError(t, err)
	require.Equal(t, testUserID, sess.User.ID)

	_, err = gw.VerifyOneTimeCode(context.Background(), "otp-consumed", session.OTPPurposeSignup)
	require.True(t, interrors.Is(err, interrors.ErrInvalidOrExpiredCode))
}

func TestGatewaySignUpRequiresConfirmation(t *testing.T) {
	_, gw := setupGateway(t)

	result, err := gw.SignUp(context.Background(), "new@example.com", "password", "/welcome")
	require.NoError(t, err)
	require.True(t, result.ConfirmationRequired)
	require.Nil(t, result.Session)
}

func TestGatewayRequestPasswordReset(t *testing.T) {
	_, gw := setupGateway(t)
	require.NoError(t, gw.RequestPasswordReset(context.Background(), testUserEmail, "/account/update-password"))
}

func TestGatewaySubscribersSeeLocalChanges(t *testing.T) {
	_, gw := setupGateway(t)

	var events []*session.Session
	unsubscribe := gw.Subscribe(func(sess *session.Session) {
		events = append(events, sess)
	})
	defer unsubscribe()

	_, err := gw.SignInWithPassword(context.Background(), testUserEmail, testPassword)
	require.NoError(t, err)
	require.NoError(t, gw.SignOut(context.Background()))

	require.Len(t, events, 2)
	require.NotNil(t, events[0])
	require.Equal(t, testUserID, events[0].User.ID)
	require.Nil(t, events[1])
}

func TestGatewayGetSessionWithoutSignIn(t *testing.T) {
	_, gw := setupGateway(t)

	sess, err := gw.GetSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, sess)
}
