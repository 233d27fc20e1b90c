// Package app assembles the service: store, hub, websocket handler and HTTP
// API behind a single Start/Stop lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"activityhub/internal/api"
	"activityhub/internal/auth"
	"activityhub/internal/config"
	"activityhub/internal/hub"
	"activityhub/internal/store"
	"activityhub/internal/ws"
)

type Application struct {
	cfg        *config.Config
	log        zerolog.Logger
	store      *store.Store
	registry   *hub.Registry
	hub        *hub.Hub
	httpServer *http.Server
}

// New wires all components in dependency order: store, auth, registry, hub,
// websocket handler, API, HTTP server.
func New(cfg *config.Config, log zerolog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	st, err := store.Open(cfg.Database.Path, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	verifier := auth.NewHMACVerifier(cfg.Auth.Secret)
	registry := hub.NewRegistry()
	h := hub.New(registry, st, log)

	wsHandler := ws.NewHandler(registry, st, verifier, ws.Config{
		PingInterval: cfg.WebSocket.PingInterval.Std(),
		ReadTimeout:  cfg.WebSocket.ReadTimeout.Std(),
		RateLimit:    cfg.WebSocket.RateLimit,
	}, log)
	apiServer := api.NewServer(h, st, registry, verifier, log)

	root := chi.NewRouter()
	root.Handle("/ws", wsHandler)
	root.Mount("/", apiServer.Routes())

	return &Application{
		cfg:      cfg,
		log:      log.With().Str("component", "app").Logger(),
		store:    st,
		registry: registry,
		hub:      h,
		httpServer: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      root,
			ReadTimeout:  cfg.HTTP.ReadTimeout.Std(),
			WriteTimeout: cfg.HTTP.WriteTimeout.Std(),
		},
	}, nil
}

// Start launches the hub and the HTTP listener, returning once the listener
// is accepting connections.
func (a *Application) Start(ctx context.Context) error {
	if err := a.hub.Start(ctx); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		_ = a.hub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		a.log.Info().Str("addr", a.httpServer.Addr).Msg("listening")
		return nil
	case <-ctx.Done():
		_ = a.hub.Stop()
		return ctx.Err()
	}
}

// Stop shuts components down in reverse order: HTTP listener, hub, store.
func (a *Application) Stop(ctx context.Context) error {
	a.log.Info().Msg("shutting down")

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.log.Warn().Err(err).Msg("http shutdown")
	}
	if err := a.hub.Stop(); err != nil && !errors.Is(err, hub.ErrNotRunning) {
		a.log.Warn().Err(err).Msg("hub shutdown")
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("store shutdown")
	}

	a.log.Info().Msg("shutdown complete")
	return nil
}

// Addr returns the bound listen address.
func (a *Application) Addr() string {
	return a.httpServer.Addr
}
