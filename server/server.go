// Package server is the HTTP glue around the session kit: it exposes the
// auth actions, the callback landing endpoint, the account list/switch
// surface, and the guarded page family.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/quillfeed/sessionkit/accounts"
	"github.com/quillfeed/sessionkit/callback"
	"github.com/quillfeed/sessionkit/internal/config"
	"github.com/quillfeed/sessionkit/routeguard"
	"github.com/quillfeed/sessionkit/session"
)

type Server struct {
	router   *mux.Router
	config   config.Config
	provider session.Provider
	store    *session.Store
	registry *accounts.Registry
	resolver *callback.Resolver
	policy   routeguard.Policy
	guard    mux.MiddlewareFunc
	log      zerolog.Logger
}

func New(cfg config.Config, provider session.Provider, store *session.Store, registry *accounts.Registry, logger zerolog.Logger) (*Server, error) {
	if provider == nil {
		return nil, errors.New("[server.New] provider is required")
	}
	if store == nil {
		return nil, errors.New("[server.New] session store is required")
	}
	if registry == nil {
		return nil, errors.New("[server.New] account registry is required")
	}

	policy := routeguard.Policy{
		Protected:   cfg.GetProtectedPrefixes(),
		SignInPath:  cfg.GetSignInPath(),
		ReturnParam: cfg.GetReturnParam(),
	}

	s := &Server{
		router:   mux.NewRouter(),
		config:   cfg,
		provider: provider,
		store:    store,
		registry: registry,
		resolver: callback.NewResolver(provider, cfg.GetLandingPath(), cfg.GetSignInPath(), cfg.GetPasswordUpdatePath(), logger),
		policy:   policy,
		guard:    routeguard.Middleware(store, policy, logger),
		log:      logger.With().Str("component", "server").Logger(),
	}

	s.router.Use(s.RequestLogMiddleware, s.RecoverMiddleware)
	s.initRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
