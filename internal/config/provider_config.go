package config

import "strings"

// ProviderConfig describes the external auth provider this application
// consumes sessions from.
type ProviderConfig interface {
	GetIssuerURL() string
	GetClientID() string
	GetOAuthScopes() []string
	// GetAuthBaseURL is the base URL for the provider's REST endpoints that
	// sit outside the OAuth2 token endpoint (signup, recover, verify, logout).
	GetAuthBaseURL() string
}

type Provider struct{}

var _ ProviderConfig = Provider{}

func (Provider) GetIssuerURL() string {
	return GetEnv("AUTH_ISSUER_URL", "http://localhost:9999")
}

func (Provider) GetClientID() string {
	return GetEnv("AUTH_CLIENT_ID", "quillfeed-web")
}

func (Provider) GetOAuthScopes() []string {
	scopes := GetEnv("AUTH_SCOPES", "openid,email,profile")
	return splitAndTrim(scopes)
}

func (Provider) GetAuthBaseURL() string {
	return GetEnv("AUTH_BASE_URL", "http://localhost:9999")
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
