package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/quillfeed/sessionkit/accounts"
	"github.com/quillfeed/sessionkit/gateway/oidcgateway"
	"github.com/quillfeed/sessionkit/internal/config"
	"github.com/quillfeed/sessionkit/server"
	"github.com/quillfeed/sessionkit/session"
	"github.com/quillfeed/sessionkit/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running server: %s\n", err)
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if c.GetEnv() == "DEV" {
		logger = logger.Level(zerolog.DebugLevel)
	}

	backend, err := storage.OpenFileBackend(c.GetStateFile())
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	adapter := storage.NewAdapter(backend, logger)

	ctx := context.Background()
	gateway, err := oidcgateway.New(ctx, oidcgateway.Config{
		IssuerURL:   c.GetIssuerURL(),
		ClientID:    c.GetClientID(),
		Scopes:      c.GetOAuthScopes(),
		AuthBaseURL: c.GetAuthBaseURL(),
	}, logger)
	if err != nil {
		return fmt.Errorf("construct auth gateway: %w", err)
	}

	store := session.NewStore(gateway, logger)
	defer store.Close()

	registry, err := accounts.NewRegistry(gateway, store, adapter, logger)
	if err != nil {
		return fmt.Errorf("construct account registry: %w", err)
	}
	registry.Reconcile()

	bootCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	store.Bootstrap(bootCtx)
	cancel()

	// A switch requested before the last reload completes now.
	if userID, ok := registry.TakePendingSwitch(); ok {
		if _, err := registry.SwitchTo(ctx, userID); err != nil {
			logger.Warn().Err(err).Str("user_id", userID).Msg("pending account switch failed")
		}
	}

	srv, err := server.New(c, gateway, store, registry, logger)
	if err != nil {
		return fmt.Errorf("construct server: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

func listenAndServe(server *http.Server) {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("server.ListenAndServe: %s\n", err)
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appName string) {
	figure.NewFigure(appName, "", true).Print()
}
