// Package server provides the HTTP API: routing, authentication wiring,
// request logging, CORS, and JSON handlers for search, contacts,
// invitations, and follow-up emails.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/relay-crm/relay/internal/auth"
	"github.com/relay-crm/relay/internal/service"
)

// HTTPServer wraps the HTTP server and its router.
type HTTPServer struct {
	server *http.Server
	router *chi.Mux
	logger *slog.Logger
}

// HTTPServerConfig holds configuration for the HTTP server
type HTTPServerConfig struct {
	Port           int
	Logger         *slog.Logger
	AllowedOrigins []string // CORS allowed origins

	// Ready reports whether downstream dependencies are reachable.
	// Nil means always ready.
	Ready func(ctx context.Context) error

	Auth        *auth.Middleware
	JWT         *auth.JWTManager
	Search      *service.SearchService
	Contacts    *service.ContactService
	Invitations *service.InvitationService
	Emails      *service.EmailService
}

// NewHTTPServer creates the HTTP server with all routes mounted.
func NewHTTPServer(cfg HTTPServerConfig) *HTTPServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLoggingMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	router.Get("/healthz", healthCheckHandler())
	router.Get("/readyz", readinessCheckHandler(cfg.Ready))

	h := &handlers{
		search:      cfg.Search,
		contacts:    cfg.Contacts,
		invitations: cfg.Invitations,
		emails:      cfg.Emails,
		jwt:         cfg.JWT,
		logger:      logger,
	}

	router.Route("/api/v1", func(r chi.Router) {
		// Unauthenticated: invitation acceptance and token refresh.
		r.Post("/invitations/accept", h.handleAcceptInvitation)
		r.Post("/auth/refresh", h.handleRefreshToken)

		r.Group(func(r chi.Router) {
			r.Use(cfg.Auth.Authenticate)

			// Exchanges an API key (or a still-valid token) for a JWT.
			r.Post("/auth/token", h.handleIssueToken)

			r.Post("/search", h.handleSearch)

			r.Route("/contacts", func(r chi.Router) {
				r.Get("/", h.handleListContacts)
				r.Post("/", h.handleCreateContact)
				r.Post("/import", h.handleImportContacts)
				r.Get("/{id}", h.handleGetContact)
				r.Put("/{id}", h.handleUpdateContact)
				r.Delete("/{id}", h.handleDeleteContact)
			})

			r.Route("/invitations", func(r chi.Router) {
				r.Get("/", h.handleListInvitations)
				r.Post("/", h.handleCreateInvitation)
				r.Delete("/{id}", h.handleRevokeInvitation)
			})

			r.Route("/emails", func(r chi.Router) {
				r.Get("/", h.handleListEmails)
				r.Post("/", h.handleScheduleEmail)
			})
		})
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Rerank calls can be slow
		IdleTimeout:  120 * time.Second,
	}

	return &HTTPServer{
		server: server,
		router: router,
		logger: logger,
	}
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", "address", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying chi router for tests.
func (s *HTTPServer) Router() *chi.Mux {
	return s.router
}

// requestLoggingMiddleware logs HTTP requests
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)

			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", duration,
				"remote_addr", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// corsMiddleware handles CORS headers
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Check if origin is allowed
			allowed := false
			if len(allowedOrigins) == 0 {
				// If no origins specified, allow all in development
				allowed = true
				origin = "*"
			} else {
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token, X-Request-ID, X-API-Key")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// healthCheckHandler returns a handler for the /healthz endpoint
func healthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(nil, w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// readinessCheckHandler returns a handler for the /readyz endpoint
func readinessCheckHandler(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				writeJSON(nil, w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"error":  err.Error(),
				})
				return
			}
		}
		writeJSON(nil, w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
