// Copyright (c) 2026 Meridian Press Digital
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@meridianpress.com for commercial licensing options.

package rest

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridianpress/go-passkey/pkg/passkey"
	passkeyhttp "github.com/meridianpress/go-passkey/pkg/passkey/http"
	"github.com/meridianpress/go-passkey/pkg/ratelimit"
)

// Server represents the passkey REST API server.
type Server struct {
	server     *http.Server
	handler    *passkeyhttp.Handler
	port       int
	tlsConfig  *tls.Config
	limiter    *ratelimit.Limiter
	authorizer Authorizer
	health     *HealthHandlers
	logger     *slog.Logger

	metricsEnabled bool
	metricsPath    string
}

// Config holds the REST server configuration.
type Config struct {
	// Port is the HTTP port to listen on (default: 8080)
	Port int

	// Service is the passkey ceremony service (required)
	Service *passkey.Service

	// Issuer mints session tokens on successful ceremonies (optional)
	Issuer passkey.SessionIssuer

	// Authorizer guards registration and credential-management routes.
	// Required: first-credential bootstrap must come from an existing
	// authenticated session, not from the passkey endpoints themselves.
	Authorizer Authorizer

	// Limiter throttles ceremony endpoints (optional, defaults to disabled)
	Limiter *ratelimit.Limiter

	// TLSConfig is the TLS configuration for HTTPS (optional)
	TLSConfig *tls.Config

	// Logger is the structured logger (optional, defaults to slog.Default)
	Logger *slog.Logger

	// MetricsEnabled mounts the Prometheus endpoint at MetricsPath
	MetricsEnabled bool
	MetricsPath    string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration
}

// NewServer creates a new passkey REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("passkey service is required")
	}
	if cfg.Authorizer == nil {
		return nil, fmt.Errorf("authorizer is required")
	}

	// Set defaults
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.New(&ratelimit.Config{Enabled: false})
	}

	server := &Server{
		handler:        passkeyhttp.NewHandler(cfg.Service, cfg.Issuer).WithLogger(log),
		port:           cfg.Port,
		tlsConfig:      cfg.TLSConfig,
		limiter:        limiter,
		authorizer:     cfg.Authorizer,
		health:         NewHealthHandlers(),
		logger:         log,
		metricsEnabled: cfg.MetricsEnabled,
		metricsPath:    cfg.MetricsPath,
	}

	router := server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    cfg.TLSConfig,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
// Rate limiting is the outermost layer on ceremony routes; a throttled
// request never reaches the session guard, the handlers, or any store.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.LoggingMiddleware())

	// Health probes (no auth required)
	r.Get("/healthz", s.health.Liveness)
	r.Get("/healthz/ready", s.health.Readiness)

	if s.metricsEnabled {
		r.Method(http.MethodGet, s.metricsPath, promhttp.Handler())
	}

	guard := s.SessionGuard()

	r.Route("/passkey", func(r chi.Router) {
		// Authentication endpoints are the unauthenticated surface
		r.Group(func(r chi.Router) {
			r.Use(s.limit(ratelimit.ClassAuthBegin, "/authenticate/begin"))
			r.Post("/authenticate/begin", s.handler.BeginAuthentication)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.limit(ratelimit.ClassAuthFinish, "/authenticate/complete"))
			r.Post("/authenticate/complete", s.handler.FinishAuthentication)
		})

		// Registration and credential management require an existing
		// authenticated session
		r.Group(func(r chi.Router) {
			r.Use(s.limit(ratelimit.ClassRegisterBegin, "/register/begin"))
			r.Use(guard)
			r.Post("/register/begin", s.handler.BeginRegistration)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.limit(ratelimit.ClassRegisterFinish, "/register/complete"))
			r.Use(guard)
			r.Post("/register/complete", s.handler.FinishRegistration)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.limit(ratelimit.ClassCredentials, "/credentials"))
			r.Use(guard)
			r.Get("/credentials", s.handler.ListCredentials)
			r.Delete("/credentials/{credentialID}", s.handler.RevokeCredential)
		})
	})

	return r
}

// limit builds the rate limiting middleware for one endpoint class.
func (s *Server) limit(class, path string) func(http.Handler) http.Handler {
	return ratelimit.Middleware(s.limiter, class, func(class string) {
		passkey.RateLimitedTotal.WithLabelValues(class).Inc()
		s.logger.Warn("request rate limited",
			"class", class,
			"path", path)
	})
}

// Start starts the REST API server.
func (s *Server) Start() error {
	if s.tlsConfig != nil {
		s.logger.Info("starting HTTPS server", "port", s.port)

		if err := s.server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
	} else {
		s.logger.Info("starting HTTP server", "port", s.port)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down server")

	s.limiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown server", "error", err)
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// SetReadinessCheck registers a readiness probe dependency.
func (s *Server) SetReadinessCheck(name string, check func(context.Context) error) {
	s.health.SetCheck(name, check)
}
