// Package api provides the HTTP API for the IAhome platform.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/iahome/platform/pkg/observability"
)

// Server is the platform HTTP API server.
type Server struct {
	mux        *http.ServeMux
	server     *http.Server
	logger     *slog.Logger
	health     *observability.HealthRegistry
	activation *ActivationHandler
	catalog    *CatalogHandler
	auth       *AuthHandler
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "0.0.0.0:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates a new API server. auth may be nil when OAuth sign-in is
// not configured.
func NewServer(cfg ServerConfig, activation *ActivationHandler, catalog *CatalogHandler, auth *AuthHandler, health *observability.HealthRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if health == nil {
		health = observability.NewHealthRegistry()
	}

	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		health:     health,
		activation: activation,
		catalog:    catalog,
		auth:       auth,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      requestContext(logger)(s.mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// registerRoutes sets up the API routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	// Catalog
	s.mux.HandleFunc("GET /api/v1/modules", s.catalog.ListModules)
	s.mux.HandleFunc("GET /api/v1/modules/featured", s.catalog.GetFeatured)
	s.mux.HandleFunc("GET /api/v1/modules/{slug}", s.catalog.GetModule)

	// Activation flow
	s.mux.HandleFunc("POST /api/v1/activate-module", s.activation.Activate)
	s.mux.HandleFunc("POST /api/v1/check-module-activation", s.activation.CheckActivation)
	s.mux.HandleFunc("POST /api/v1/module-access-token", s.activation.AccessToken)
	s.mux.HandleFunc("GET /api/v1/users/{userID}/activations", s.activation.ListActivations)

	// Legacy paths kept for older clients, all routed to the same check
	// handler. The misspelled endpoint shipped with and without the accent.
	s.mux.HandleFunc("POST /api/check-module-activation", s.activation.CheckActivation)
	s.mux.HandleFunc("POST /api/check-module-acces", s.activation.CheckActivation)
	s.mux.HandleFunc("POST /api/check-module-accès", s.activation.CheckActivation)

	// Sign-in
	if s.auth != nil {
		s.mux.HandleFunc("GET /auth/login", s.auth.Login)
		s.mux.HandleFunc("GET /auth/callback", s.auth.Callback)
	}
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	results := s.health.Check(r.Context())
	status := observability.Overall(results)

	code := http.StatusOK
	if status == observability.HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": results,
		"time":       time.Now().UTC().Format(time.RFC3339),
	})
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// requestContext attaches request and correlation IDs and logs each request.
func requestContext(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := observability.NewRequestContext(r.Context(), r.Header.Get("X-Correlation-ID"))
			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.DebugContext(ctx, "request handled",
				"method", r.Method,
				"path", r.URL.Path,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
