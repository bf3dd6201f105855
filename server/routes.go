package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Sign-in & Sign-out
	RouteSignIn  = "/auth/signin"
	RouteSignUp  = "/auth/signup"
	RouteSignOut = "/auth/signout"

	// Auth Routes - Password Management
	RouteRecover = "/auth/recover"
	RouteVerify  = "/auth/verify"

	// Auth Routes - Callback landing after provider redirects
	RouteCallback = "/auth/callback"

	// Session & Account Routes
	RouteSession       = "/auth/session"
	RouteAccounts      = "/auth/accounts"
	RouteAccountSwitch = "/auth/accounts/switch"
	RouteAccountForget = "/auth/accounts/forget"

	// Protected Routes
	RouteProfile = "/profile"
)

func (s *Server) initRoutes() {
	s.router.HandleFunc(RouteSignIn, s.SignInHandler()).Methods("POST")
	s.router.HandleFunc(RouteSignUp, s.SignUpHandler()).Methods("POST")
	s.router.HandleFunc(RouteSignOut, s.SignOutHandler()).Methods("POST")
	s.router.HandleFunc(RouteRecover, s.RecoverHandler()).Methods("POST")
	s.router.HandleFunc(RouteVerify, s.VerifyHandler()).Methods("POST")
	s.router.HandleFunc(RouteCallback, s.CallbackHandler()).Methods("GET")
	s.router.HandleFunc(RouteSession, s.SessionHandler()).Methods("GET")
	s.router.HandleFunc(RouteAccounts, s.AccountsHandler()).Methods("GET")
	s.router.HandleFunc(RouteAccountSwitch, s.AccountSwitchHandler()).Methods("POST")
	s.router.HandleFunc(RouteAccountForget, s.AccountForgetHandler()).Methods("POST")

	protected := s.router.PathPrefix(RouteProfile).Subrouter()
	protected.Use(s.guard)
	protected.HandleFunc("", s.ProfileHandler()).Methods("GET")
	protected.HandleFunc("/{section}", s.ProfileHandler()).Methods("GET")
}
