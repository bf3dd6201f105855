// Package oidcgateway implements session.Provider against an OIDC-capable
// auth service: issuer discovery and token grants go through the standard
// OAuth2 endpoints, while signup, password recovery, and one-time-code
// verification use the provider's REST endpoints.
package oidcgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	interrors "github.com/quillfeed/sessionkit/internal/errors"
	"github.com/quillfeed/sessionkit/session"
)

// Config describes the external auth service.
type Config struct {
	IssuerURL string
	ClientID  string
	Scopes    []string

	// AuthBaseURL is the base for REST endpoints outside the OAuth2 token
	// endpoint. Paths follow the provider's auth API: /signup, /recover,
	// /verify, /logout.
	AuthBaseURL string

	// HTTPClient overrides the default client for all provider traffic.
	HTTPClient *http.Client
}

type Gateway struct {
	oauth      oauth2.Config
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
	baseURL    string
	log        zerolog.Logger
	nowTime    func() time.Time

	mu      sync.Mutex
	current *session.Session
	subs    map[int]func(*session.Session)
	nextSub int
}

var _ session.Provider = (*Gateway)(nil)

// Option modifies a Gateway at construction.
type Option func(*Gateway)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(g *Gateway) {
		g.nowTime = nowFunc
	}
}

// New discovers the issuer and prepares the gateway. No session is
// established; call GetSession or SignInWithPassword afterwards.
func New(ctx context.Context, cfg Config, logger zerolog.Logger, options ...Option) (*Gateway, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("[oidcgateway.New] issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("[oidcgateway.New] client ID is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	ctx = oidc.ClientContext(ctx, httpClient)

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[oidcgateway.New] issuer discovery")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	baseURL := cfg.AuthBaseURL
	if baseURL == "" {
		baseURL = cfg.IssuerURL
	}

	g := &Gateway{
		oauth: oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: provider.Endpoint(),
			Scopes:   scopes,
		},
		verifier:   provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		log:        logger.With().Str("component", "oidc_gateway").Logger(),
		nowTime:    time.Now,
		subs:       make(map[int]func(*session.Session)),
	}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

// GetSession returns the current session, refreshing it first when the
// access token has expired and a refresh token is available. (nil, nil)
// means no session.
func (g *Gateway) GetSession(ctx context.Context) (*session.Session, error) {
	g.mu.Lock()
	cur := g.current
	g.mu.Unlock()
	if cur == nil {
		return nil, nil
	}
	if !cur.Expired(g.nowTime()) {
		return cur, nil
	}
	if cur.RefreshToken == "" {
		g.setCurrent(nil)
		return nil, nil
	}
	return g.refreshWith(ctx, cur.RefreshToken)
}

// Refresh forces a new token grant using the current refresh token.
func (g *Gateway) Refresh(ctx context.Context) (*session.Session, error) {
	g.mu.Lock()
	cur := g.current
	g.mu.Unlock()
	if cur == nil || cur.RefreshToken == "" {
		return nil, nil
	}
	return g.refreshWith(ctx, cur.RefreshToken)
}

// SignInWithPassword performs the resource-owner password grant.
func (g *Gateway) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	tok, err := g.oauth.PasswordCredentialsToken(g.oauthContext(ctx), email, password)
	if err != nil {
		return nil, classifyGrantError(err, interrors.ErrInvalidCredentials, "[Gateway.SignInWithPassword]")
	}
	sess, err := g.sessionFromToken(ctx, tok)
	if err != nil {
		return nil, errors.Wrap(err, "[Gateway.SignInWithPassword]")
	}
	g.setCurrent(sess)
	return sess, nil
}

// SessionFromRefreshToken mints a session from a stored refresh token,
// independent of the currently active session. Used for account switching.
func (g *Gateway) SessionFromRefreshToken(ctx context.Context, refreshToken string) (*session.Session, error) {
	return g.refreshWith(ctx, refreshToken)
}

// SignUp registers a new account. Providers that require email confirmation
// return no tokens; the caller gets ConfirmationRequired instead of a
// session.
func (g *Gateway) SignUp(ctx context.Context, email, password, redirectTo string) (*session.SignUpResult, error) {
	payload := map[string]string{"email": email, "password": password}
	if redirectTo != "" {
		payload["redirect_to"] = redirectTo
	}
	var body tokenEnvelope
	status, err := g.postJSON(ctx, "/signup", payload, &body)
	if err != nil {
		return nil, errors.Wrap(interrors.ErrProviderUnavailable, "[Gateway.SignUp] "+err.Error())
	}
	if status >= 400 {
		return nil, errors.Wrapf(interrors.ErrProviderUnavailable, "[Gateway.SignUp] provider returned %d", status)
	}
	if body.AccessToken == "" {
		return &session.SignUpResult{ConfirmationRequired: true}, nil
	}
	sess := g.sessionFromEnvelope(&body)
	g.setCurrent(sess)
	return &session.SignUpResult{Session: sess}, nil
}

// SignOut revokes the session server-side and clears local gateway state.
// The local clear and subscriber notification happen even when revocation
// fails; the error is still reported.
func (g *Gateway) SignOut(ctx context.Context) error {
	g.mu.Lock()
	cur := g.current
	g.mu.Unlock()

	var revokeErr error
	if cur != nil && cur.AccessToken != "" {
		if err := g.postAuthorized(ctx, "/logout", cur.AccessToken); err != nil {
			revokeErr = errors.Wrap(interrors.ErrProviderUnavailable, "[Gateway.SignOut] "+err.Error())
		}
	}
	g.setCurrent(nil)
	return revokeErr
}

// RequestPasswordReset asks the provider to email a recovery link.
func (g *Gateway) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	payload := map[string]string{"email": email}
	if redirectTo != "" {
		payload["redirect_to"] = redirectTo
	}
	status, err := g.postJSON(ctx, "/recover", payload, nil)
	if err != nil {
		return errors.Wrap(interrors.ErrProviderUnavailable, "[Gateway.RequestPasswordReset] "+err.Error())
	}
	if status >= 400 {
		return errors.Wrapf(interrors.ErrProviderUnavailable, "[Gateway.RequestPasswordReset] provider returned %d", status)
	}
	return nil
}

// VerifyOneTimeCode exchanges an emailed one-time code for a session.
func (g *Gateway) VerifyOneTimeCode(ctx context.Context, code string, purpose session.OTPPurpose) (*session.Session, error) {
	payload := map[string]string{"token": code, "type": string(purpose)}
	var body tokenEnvelope
	status, err := g.postJSON(ctx, "/verify", payload, &body)
	if err != nil {
		return nil, errors.Wrap(interrors.ErrProviderUnavailable, "[Gateway.VerifyOneTimeCode] "+err.Error())
	}
	if status == http.StatusBadRequest || status == http.StatusUnauthorized ||
		status == http.StatusForbidden || status == http.StatusUnprocessableEntity {
		return nil, errors.Wrap(interrors.ErrInvalidOrExpiredCode, "[Gateway.VerifyOneTimeCode]")
	}
	if status >= 400 {
		return nil, errors.Wrapf(interrors.ErrProviderUnavailable, "[Gateway.VerifyOneTimeCode] provider returned %d", status)
	}
	if body.AccessToken == "" {
		return nil, errors.Wrap(interrors.ErrInvalidOrExpiredCode, "[Gateway.VerifyOneTimeCode] no token in response")
	}
	sess := g.sessionFromEnvelope(&body)
	g.setCurrent(sess)
	return sess, nil
}

// Subscribe registers a session-change listener and returns its unsubscribe
// handle. Listeners fire on every local state change.
func (g *Gateway) Subscribe(fn func(*session.Session)) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.subs, id)
	}
}

func (g *Gateway) refreshWith(ctx context.Context, refreshToken string) (*session.Session, error) {
	src := g.oauth.TokenSource(g.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyGrantError(err, interrors.ErrInvalidRefreshToken, "[Gateway.refreshWith]")
	}
	sess, err := g.sessionFromToken(ctx, tok)
	if err != nil {
		return nil, errors.Wrap(err, "[Gateway.refreshWith]")
	}
	g.setCurrent(sess)
	return sess, nil
}

// sessionFromToken builds a Session from an OAuth2 token response. Identity
// comes from the verified ID token when one is present, otherwise from
// unverified access-token claims (the token was just minted over TLS by the
// issuer; signature verification is the resource server's job).
func (g *Gateway) sessionFromToken(ctx context.Context, tok *oauth2.Token) (*session.Session, error) {
	user := session.User{}

	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, err := g.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, errors.Wrap(err, "[Gateway.sessionFromToken] ID token verification")
		}
		var claims struct {
			Sub   string `json:"sub"`
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return nil, errors.Wrap(err, "[Gateway.sessionFromToken] ID token claims")
		}
		user = session.User{ID: claims.Sub, Email: claims.Email, Name: claims.Name}
	}

	expiry := tok.Expiry
	if user.ID == "" || expiry.IsZero() {
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err == nil {
			if user.ID == "" {
				if sub, err := claims.GetSubject(); err == nil {
					user.ID = sub
				}
				if email, ok := claims["email"].(string); ok {
					user.Email = email
				}
				if name, ok := claims["name"].(string); ok {
					user.Name = name
				}
			}
			if expiry.IsZero() {
				if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
					expiry = exp.Time
				}
			}
		}
	}

	if user.ID == "" {
		return nil, errors.New("[Gateway.sessionFromToken] token carries no subject")
	}

	return &session.Session{
		User:         user,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IssuedAt:     g.nowTime(),
		ExpiresAt:    expiry,
	}, nil
}

func (g *Gateway) sessionFromEnvelope(body *tokenEnvelope) *session.Session {
	now := g.nowTime()
	expiry := time.Time{}
	if body.ExpiresIn > 0 {
		expiry = now.Add(time.Duration(body.ExpiresIn) * time.Second)
	}
	return &session.Session{
		User: session.User{
			ID:    body.User.ID,
			Email: body.User.Email,
		},
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		IssuedAt:     now,
		ExpiresAt:    expiry,
	}
}

func (g *Gateway) setCurrent(sess *session.Session) {
	g.mu.Lock()
	g.current = sess
	fns := make([]func(*session.Session), 0, len(g.subs))
	for _, fn := range g.subs {
		fns = append(fns, fn)
	}
	g.mu.Unlock()
	for _, fn := range fns {
		fn(sess)
	}
}

func (g *Gateway) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

// tokenEnvelope is the provider's REST token response shape.
type tokenEnvelope struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (g *Gateway) postJSON(ctx context.Context, path string, payload interface{}, out interface{}) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, errors.Wrap(err, "marshal payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "provider request")
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 400 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, errors.Wrap(err, "decode response")
		}
	}
	return resp.StatusCode, nil
}

func (g *Gateway) postAuthorized(ctx context.Context, path, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "provider request")
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return errors.Errorf("provider returned %d", resp.StatusCode)
	}
	return nil
}

// classifyGrantError maps an OAuth2 token-endpoint failure onto the error
// taxonomy: a 4xx from the issuer means the credential was rejected, anything
// else is a transport problem the caller may retry.
func classifyGrantError(err error, rejected error, msg string) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		code := retrieveErr.Response.StatusCode
		if code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden {
			return errors.Wrap(rejected, msg)
		}
	}
	return errors.Wrap(interrors.ErrProviderUnavailable, msg+" "+err.Error())
}
