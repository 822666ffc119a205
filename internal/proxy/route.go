// Package proxy resolves inbound paths to backend bindings and dispatches
// requests: reverse-proxied when a backend URL is configured, stub-served
// when it is not.
package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/surveyforge/api-gateway/internal/config"
)

// Kind discriminates what a route binding points at. The choice is made at
// configuration-load time, never per request.
type Kind int

const (
	// KindStub serves a deterministic placeholder response. Used when the
	// backend is not deployed in this environment.
	KindStub Kind = iota

	// KindProxy forwards to a configured backend base URL.
	KindProxy
)

func (k Kind) String() string {
	if k == KindProxy {
		return "proxy"
	}
	return "stub"
}

// Target is where a binding sends traffic.
type Target struct {
	Kind Kind
	URL  *url.URL // set only for KindProxy
}

// ParseTarget interprets a configured target URL. Empty means the service is
// not deployed and the binding serves stubs.
func ParseTarget(raw string) (Target, error) {
	if raw == "" {
		return Target{Kind: KindStub}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("parse target %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Target{}, fmt.Errorf("target %q must be an absolute URL", raw)
	}

	return Target{Kind: KindProxy, URL: u}, nil
}

// Binding maps a path prefix to a target. Static per table generation;
// replaced wholesale on reload, never mutated.
type Binding struct {
	Name         string
	Prefix       string
	Target       Target
	RequiresAuth bool
	Roles        []string

	handler http.Handler
}

// Handler returns the prepared dispatch handler for this binding.
func (b *Binding) Handler() http.Handler {
	return b.handler
}

// Table is the ordered route table. Resolution picks the longest matching
// prefix; equal-length ties go to the earlier registration. The table is
// replaced atomically on config reload or registry change.
type Table struct {
	dispatcher *Dispatcher

	mu       sync.RWMutex
	bindings []*Binding
}

// NewTable builds a route table from the ordered route configuration.
func NewTable(dispatcher *Dispatcher, routes []config.RouteConfig) (*Table, error) {
	t := &Table{dispatcher: dispatcher}
	if err := t.Replace(routes); err != nil {
		return nil, err
	}
	return t, nil
}

// Replace swaps in a new generation of bindings. In-flight requests keep the
// bindings they resolved.
func (t *Table) Replace(routes []config.RouteConfig) error {
	bindings := make([]*Binding, 0, len(routes))
	for _, rc := range routes {
		if rc.Prefix == "" || !strings.HasPrefix(rc.Prefix, "/") {
			return fmt.Errorf("route %q: prefix must start with /", rc.Name)
		}

		target, err := ParseTarget(rc.Target)
		if err != nil {
			return fmt.Errorf("route %q: %w", rc.Name, err)
		}

		b := &Binding{
			Name:         rc.Name,
			Prefix:       strings.TrimRight(rc.Prefix, "/"),
			Target:       target,
			RequiresAuth: rc.RequiresAuth,
			Roles:        rc.Roles,
		}
		b.handler = t.dispatcher.buildHandler(b)
		bindings = append(bindings, b)
	}

	t.mu.Lock()
	t.bindings = bindings
	t.mu.Unlock()
	return nil
}

// Resolve returns the binding for a request path. Longest prefix wins;
// prefixes match only on segment boundaries.
func (t *Table) Resolve(path string) (*Binding, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best *Binding
	for _, b := range t.bindings {
		if !matchesPrefix(path, b.Prefix) {
			continue
		}
		if best == nil || len(b.Prefix) > len(best.Prefix) {
			best = b
		}
	}
	return best, best != nil
}

// Bindings returns a snapshot of the current generation, in registration
// order.
func (t *Table) Bindings() []*Binding {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Binding, len(t.bindings))
	copy(out, t.bindings)
	return out
}

// matchesPrefix reports whether path falls under prefix at a segment
// boundary: /api/surveys matches /api/surveys and /api/surveys/123, but not
// /api/surveysx.
func matchesPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
