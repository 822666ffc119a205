// Package controlplane exposes the admin API for inspecting and mutating
// the service registry. Mounted at /admin behind authentication and the
// admin role.
package controlplane

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/surveyforge/api-gateway/internal/config"
	"github.com/surveyforge/api-gateway/internal/domain"
	"github.com/surveyforge/api-gateway/internal/proxy"
	"github.com/surveyforge/api-gateway/internal/registry"
	"github.com/surveyforge/api-gateway/internal/respond"
)

// Server is the admin HTTP surface. Mutations write through the registry
// and swap the live route table.
type Server struct {
	router    *chi.Mux
	registry  *registry.Registry
	table     *proxy.Table
	responder *respond.Responder
	logger    *slog.Logger
}

// New creates the control plane over the given registry and route table.
func New(reg *registry.Registry, table *proxy.Table, responder *respond.Responder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		registry:  reg,
		table:     table,
		responder: responder,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Get("/services", s.handleListServices)
	r.Put("/services/{name}", s.handleSetService)
	r.Delete("/services/{name}", s.handleDeleteService)

	// Unknown admin paths get the gateway's error envelope, not chi's
	// plain-text default.
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.responder.Error(w, r, domain.NewError(domain.ErrorTypeNotFound, "Route not found."))
	})
	s.router = r

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// serviceView is one effective route binding as reported by the admin API.
type serviceView struct {
	Name         string   `json:"name"`
	Prefix       string   `json:"prefix"`
	Target       string   `json:"target"` // "proxy" or "stub"
	BaseURL      string   `json:"base_url,omitempty"`
	RequiresAuth bool     `json:"requires_auth"`
	Roles        []string `json:"roles,omitempty"`
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	bindings := s.table.Bindings()
	views := make([]serviceView, 0, len(bindings))
	for _, b := range bindings {
		v := serviceView{
			Name:         b.Name,
			Prefix:       b.Prefix,
			Target:       b.Target.Kind.String(),
			RequiresAuth: b.RequiresAuth,
			Roles:        b.Roles,
		}
		if b.Target.Kind == proxy.KindProxy {
			v.BaseURL = b.Target.URL.String()
		}
		views = append(views, v)
	}

	s.responder.JSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"services": views,
	})
}

type setServiceRequest struct {
	BaseURL string `json:"base_url"`
}

func (s *Server) handleSetService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req setServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.responder.Error(w, r, domain.NewError(domain.ErrorTypeInvalidRequest, "Invalid JSON body."))
		return
	}

	routes, err := s.registry.SetService(r.Context(), name, req.BaseURL)
	if err != nil {
		s.responder.Error(w, r, err)
		return
	}

	if err := s.applyRoutes(routes); err != nil {
		s.responder.Error(w, r, err)
		return
	}

	s.responder.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"service": name,
	})
}

func (s *Server) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	routes, err := s.registry.RemoveService(r.Context(), name)
	if err != nil {
		s.responder.Error(w, r, err)
		return
	}

	if err := s.applyRoutes(routes); err != nil {
		s.responder.Error(w, r, err)
		return
	}

	s.responder.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"service": name,
	})
}

func (s *Server) applyRoutes(routes []config.RouteConfig) error {
	if err := s.table.Replace(routes); err != nil {
		s.logger.Error("route table replace failed", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("route table updated", slog.Int("routes", len(routes)))
	return nil
}
