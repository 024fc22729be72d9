// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi serves the account API as JSON over HTTP under /api/v1.
//
// Authentication uses bearer tokens checked by Middleware.Authenticate.
// Routes that act on a user named in the path load it with PathObject and,
// for mutations, gate on RequireOwner.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/cors"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/observability"
)

// Config configures the API listener.
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
}

// Deps are the services behind the API.
type Deps struct {
	Auth    AuthService
	Users   UserService
	Tokens  auth.Validator
	Metrics *observability.Metrics
}

// Server is the public API server.
type Server struct {
	cfg      Config
	auth     AuthService
	users    UserService
	mw       *Middleware
	metrics  *observability.Metrics
	schemas  *schemas
	handler  http.Handler
	listener net.Listener
	httpSrv  *http.Server
	running  atomic.Bool
}

// NewServer wires routes and middleware.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Auth == nil || deps.Users == nil || deps.Tokens == nil {
		return nil, oops.Code("HTTP_INVALID_CONFIG").Errorf("auth, users and tokens are required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	sch, err := compileSchemas()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		auth:    deps.Auth,
		users:   deps.Users,
		mw:      NewMiddleware(deps.Tokens, deps.Auth, deps.Users),
		metrics: deps.Metrics,
		schemas: sch,
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	authed := s.mw.Authenticate
	userObject := PathObject[*auth.User]("id", s.users.FindByID)
	ownsUser := RequireOwner[*auth.User]()

	mux.HandleFunc("POST /api/v1/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	mux.Handle("POST /api/v1/auth/logout", chain(http.HandlerFunc(s.handleLogout), authed))

	mux.Handle("GET /api/v1/users/me", chain(http.HandlerFunc(s.handleMe), authed))
	mux.Handle("GET /api/v1/users", chain(http.HandlerFunc(s.handleListUsers), authed))
	mux.Handle("GET /api/v1/users/{id}", chain(http.HandlerFunc(s.handleGetUser), authed, userObject))
	mux.Handle("PATCH /api/v1/users/{id}", chain(http.HandlerFunc(s.handleUpdateUser), authed, userObject, ownsUser))
	mux.Handle("DELETE /api/v1/users/{id}", chain(http.HandlerFunc(s.handleDeleteUser), authed, userObject, ownsUser))

	var h http.Handler = mux
	if len(s.cfg.AllowedOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
			AllowedHeaders: []string{"Authorization", "Content-Type", RequestIDHeader},
			ExposedHeaders: []string{RequestIDHeader},
			MaxAge:         300,
		}).Handler(h)
	}
	h = limitBody(s.cfg.MaxBodyBytes, h)
	return instrument(s.metrics, h)
}

// Handler returns the fully wrapped API handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves in the background. The
// returned channel reports serve failures and is closed on shutdown.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("HTTP_RUNNING").Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("HTTP_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.httpSrv = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}
	slog.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
