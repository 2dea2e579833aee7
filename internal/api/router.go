// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api serves the panel's local control API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wingedpig/noclap/internal/api/handlers"
	"github.com/wingedpig/noclap/internal/api/middleware"
	"github.com/wingedpig/noclap/internal/api/version"
	"github.com/wingedpig/noclap/internal/config"
	"github.com/wingedpig/noclap/internal/events"
	"github.com/wingedpig/noclap/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// Dependencies holds all dependencies for API handlers.
type Dependencies struct {
	Session        handlers.Session
	Devices        handlers.Devices
	Process        handlers.Process
	EventBus       events.EventBus
	BackendBaseURL string
	Version        string // Application version string
	Logger         *zap.Logger
}

// NewRouter creates a new API router.
func NewRouter(deps Dependencies) *mux.Router {
	log := logging.OrNop(deps.Logger).Named(logging.ComponentAPI)

	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(version.Middleware)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Method mismatches are decided by the subrouter; without its own
	// handler mux reports them as 404.
	r.NotFoundHandler = http.HandlerFunc(handlers.NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(handlers.MethodNotAllowed)
	api.NotFoundHandler = http.HandlerFunc(handlers.NotFound)
	api.MethodNotAllowedHandler = http.HandlerFunc(handlers.MethodNotAllowed)

	api.HandleFunc("/version", handlers.NewVersionHandler(deps.Version).Get).Methods("GET")

	// Routing session
	routingHandler := handlers.NewRoutingHandler(deps.Session)
	api.HandleFunc("/state", routingHandler.State).Methods("GET")
	api.HandleFunc("/routing/enable", routingHandler.Enable).Methods("POST")
	api.HandleFunc("/routing/disable", routingHandler.Disable).Methods("POST")
	api.HandleFunc("/routing/toggle", routingHandler.Toggle).Methods("POST")
	api.HandleFunc("/routing/selection", routingHandler.Select).Methods("PUT")

	// Devices
	deviceHandler := handlers.NewDeviceHandler(deps.Devices)
	api.HandleFunc("/devices", deviceHandler.List).Methods("GET")
	api.HandleFunc("/devices/refresh", deviceHandler.Refresh).Methods("POST")

	// Backend process
	if deps.Process != nil {
		backendHandler := handlers.NewBackendHandler(deps.Process, deps.BackendBaseURL)
		api.HandleFunc("/backend", backendHandler.Get).Methods("GET")
		api.HandleFunc("/backend/restart", backendHandler.Restart).Methods("POST")
		api.HandleFunc("/backend/logs", backendHandler.Logs).Methods("GET")
		api.HandleFunc("/backend/logs/ws", backendHandler.StreamLogs).Methods("GET")
	}

	// Events and live state
	eventHandler := handlers.NewEventHandler(deps.EventBus, deps.Session)
	api.HandleFunc("/events", eventHandler.History).Methods("GET")
	api.HandleFunc("/state/ws", eventHandler.StateStream).Methods("GET")

	return r
}

// Server represents the API server.
type Server struct {
	router *mux.Router
	cfg    config.ServerConfig
	log    *zap.Logger
}

// NewServer creates a new API server.
func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	return &Server{
		router: NewRouter(deps),
		cfg:    cfg,
		log:    logging.OrNop(deps.Logger).Named(logging.ComponentAPI),
	}
}

// Router returns the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API server listening", zap.String("addr", "http://"+ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Requests still running after the timeout are cut off.
		srv.Close()
		return fmt.Errorf("shutdown API server: %w", err)
	}
	return nil
}
