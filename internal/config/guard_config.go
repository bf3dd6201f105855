package config

// GuardConfig is the declarative route gating surface: which path families
// require an authenticated session and where the auth pages live.
type GuardConfig interface {
	GetProtectedPrefixes() []string
	GetSignInPath() string
	GetReturnParam() string
	GetLandingPath() string
	GetPasswordUpdatePath() string
}

type Guard struct{}

var _ GuardConfig = Guard{}

func (Guard) GetProtectedPrefixes() []string {
	return splitAndTrim(GetEnv("PROTECTED_PREFIXES", "/profile"))
}

func (Guard) GetSignInPath() string {
	return GetEnv("SIGNIN_PATH", "/signin")
}

func (Guard) GetReturnParam() string {
	return GetEnv("RETURN_PARAM", "redirect_to")
}

func (Guard) GetLandingPath() string {
	return GetEnv("LANDING_PATH", "/")
}

func (Guard) GetPasswordUpdatePath() string {
	return GetEnv("PASSWORD_UPDATE_PATH", "/account/update-password")
}
