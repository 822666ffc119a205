// Package server terminates inbound HTTP for the gateway: middleware chain,
// health endpoint, admin mount, and the per-request auth -> roles -> rate
// limit -> dispatch pipeline.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/surveyforge/api-gateway/internal/auth"
	"github.com/surveyforge/api-gateway/internal/config"
	"github.com/surveyforge/api-gateway/internal/domain"
	"github.com/surveyforge/api-gateway/internal/proxy"
	"github.com/surveyforge/api-gateway/internal/respond"
)

// ServiceName appears in health responses and trace spans.
const ServiceName = "api-gateway"

type Server struct {
	Router *chi.Mux

	cfg       *config.Config
	logger    *slog.Logger
	verifier  *auth.Verifier
	table     *proxy.Table
	limiter   *Limiter
	responder *respond.Responder
	http      *http.Server
}

// New assembles the gateway server. admin, when non-nil, is mounted at
// /admin behind authentication and the admin role.
func New(cfg *config.Config, logger *slog.Logger, verifier *auth.Verifier, table *proxy.Table, admin http.Handler) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		verifier:  verifier,
		table:     table,
		limiter:   NewLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window, cfg.RateLimit.TTL),
		responder: respond.New(logger, !cfg.IsProduction()),
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(CORSMiddleware(cfg.CORS.Origins))
	r.Use(middleware.Recoverer)
	r.Use(TimeoutMiddleware(cfg.Proxy.Timeout))

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, ServiceName)
	})

	r.Get("/health", s.handleHealth)

	if admin != nil {
		guarded := RequireAuth(verifier, s.responder)(
			RequireRoles(s.responder, domain.RoleAdmin)(admin))
		r.Mount("/admin", guarded)
	}

	// Everything else resolves through the route table.
	r.NotFound(s.dispatch)

	s.Router = r
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s
}

// Limiter exposes the rate limiter so main can run its eviction loop.
func (s *Server) Limiter() *Limiter {
	return s.limiter
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.cfg.Server.Port))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.responder.JSON(w, http.StatusOK, map[string]string{
		"status":  "UP",
		"service": ServiceName,
	})
}

// dispatch resolves the route binding and runs the request through the
// binding's chain: verify -> authorize -> rate limit -> dispatch, each step
// short-circuiting the rest on rejection.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	binding, ok := s.table.Resolve(r.URL.Path)
	if !ok {
		s.responder.Error(w, r, domain.NewError(domain.ErrorTypeNotFound, "Route not found."))
		return
	}

	AddLogField(r.Context(), "service", binding.Name)
	AddLogField(r.Context(), "target", binding.Target.Kind.String())

	handler := RateLimitMiddleware(s.limiter, s.responder)(binding.Handler())
	if binding.RequiresAuth {
		handler = RequireAuth(s.verifier, s.responder)(
			RequireRoles(s.responder, binding.Roles...)(handler))
	}

	handler.ServeHTTP(w, r)
}
