package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/surveyforge/api-gateway/internal/config"
	"github.com/surveyforge/api-gateway/internal/domain"
)

// Registry merges the static route configuration with dynamic service
// registrations. Statically configured targets win over registrations for
// the same route; a registration fills in a route whose target is unset, or
// adds a new route under /api/<name>.
type Registry struct {
	store  *Store // nil disables persistence
	logger *slog.Logger

	mu        sync.Mutex
	base      []config.RouteConfig
	overrides map[string]string // service name -> base URL
}

// New creates a Registry over the static route table. store may be nil, in
// which case registrations live in process memory only.
func New(store *Store, base []config.RouteConfig, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		store:     store,
		logger:    logger,
		base:      base,
		overrides: make(map[string]string),
	}

	if store != nil {
		services, err := store.List(context.Background())
		if err != nil {
			return nil, fmt.Errorf("load registry: %w", err)
		}
		for _, svc := range services {
			r.overrides[svc.Name] = svc.BaseURL
		}
		if len(services) > 0 {
			logger.Info("loaded persisted service registrations", slog.Int("count", len(services)))
		}
	}

	return r, nil
}

// Routes returns the effective route table: the static configuration with
// registrations overlaid. Order is deterministic: static routes keep their
// registration order, dynamic-only routes follow sorted by name.
func (r *Registry) Routes() []config.RouteConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.effectiveLocked()
}

func (r *Registry) effectiveLocked() []config.RouteConfig {
	routes := make([]config.RouteConfig, len(r.base))
	copy(routes, r.base)

	known := make(map[string]bool, len(routes))
	for i := range routes {
		known[routes[i].Name] = true
		// A statically configured target wins over a registration.
		if routes[i].Target == "" {
			if override, ok := r.overrides[routes[i].Name]; ok {
				routes[i].Target = override
			}
		}
	}

	var extra []string
	for name := range r.overrides {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		routes = append(routes, config.RouteConfig{
			Name:         name,
			Prefix:       "/api/" + name,
			Target:       r.overrides[name],
			RequiresAuth: true,
		})
	}

	return routes
}

// SetBase replaces the static route table (config hot-reload) and returns
// the new effective routes.
func (r *Registry) SetBase(base []config.RouteConfig) []config.RouteConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.base = base
	return r.effectiveLocked()
}

// SetService registers or updates a service's base URL and returns the new
// effective routes.
func (r *Registry) SetService(ctx context.Context, name, baseURL string) ([]config.RouteConfig, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewError(domain.ErrorTypeInvalidRequest, "Service name is required.")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, domain.NewError(domain.ErrorTypeInvalidRequest, "base_url must be an absolute URL.")
	}

	if r.store != nil {
		if err := r.store.Upsert(ctx, name, baseURL); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = baseURL
	r.logger.Info("service registered", slog.String("service", name), slog.String("base_url", baseURL))
	return r.effectiveLocked(), nil
}

// RemoveService drops a registration and returns the new effective routes.
// Removing an unknown service is not an error.
func (r *Registry) RemoveService(ctx context.Context, name string) ([]config.RouteConfig, error) {
	if r.store != nil {
		if err := r.store.Delete(ctx, name); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, name)
	r.logger.Info("service deregistered", slog.String("service", name))
	return r.effectiveLocked(), nil
}
