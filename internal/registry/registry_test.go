package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/surveyforge/api-gateway/internal/config"
)

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	store, err := Open(filepath.Join(dir, "registry.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func baseRoutes() []config.RouteConfig {
	return []config.RouteConfig{
		{Name: "surveys", Prefix: "/api/surveys", Target: "http://surveys:5001", RequiresAuth: true},
		{Name: "responses", Prefix: "/api/responses", RequiresAuth: true},
	}
}

func TestRegistry_RoutesOverlay(t *testing.T) {
	r, err := New(nil, baseRoutes(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Unbound route gets filled in by a registration.
	routes, err := r.SetService(context.Background(), "responses", "http://responses:5002")
	if err != nil {
		t.Fatalf("SetService() error = %v", err)
	}
	if routes[1].Target != "http://responses:5002" {
		t.Errorf("responses target = %q, want registered URL", routes[1].Target)
	}

	// Statically configured target wins over a registration.
	routes, err = r.SetService(context.Background(), "surveys", "http://elsewhere:9999")
	if err != nil {
		t.Fatalf("SetService() error = %v", err)
	}
	if routes[0].Target != "http://surveys:5001" {
		t.Errorf("surveys target = %q, want static config to win", routes[0].Target)
	}

	// Unknown service names become new /api/<name> routes.
	routes, err = r.SetService(context.Background(), "analytics", "http://analytics:5007")
	if err != nil {
		t.Fatalf("SetService() error = %v", err)
	}
	last := routes[len(routes)-1]
	if last.Prefix != "/api/analytics" || !last.RequiresAuth {
		t.Errorf("dynamic route = %+v, want auth-required /api/analytics", last)
	}
}

func TestRegistry_SetServiceValidation(t *testing.T) {
	r, err := New(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.SetService(context.Background(), "", "http://x:1"); err == nil {
		t.Error("SetService() with empty name: error = nil, want error")
	}
	if _, err := r.SetService(context.Background(), "x", "not-a-url"); err == nil {
		t.Error("SetService() with relative URL: error = nil, want error")
	}
}

func TestRegistry_RemoveService(t *testing.T) {
	r, err := New(nil, baseRoutes(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.SetService(context.Background(), "responses", "http://responses:5002"); err != nil {
		t.Fatal(err)
	}
	routes, err := r.RemoveService(context.Background(), "responses")
	if err != nil {
		t.Fatalf("RemoveService() error = %v", err)
	}
	if routes[1].Target != "" {
		t.Errorf("responses target = %q after removal, want empty (stub)", routes[1].Target)
	}
}

func TestRegistry_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store := openTestStore(t, dir)
	r, err := New(store, baseRoutes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.SetService(context.Background(), "responses", "http://responses:5002"); err != nil {
		t.Fatal(err)
	}
	store.Close()

	// A fresh process sees the registration.
	store2 := openTestStore(t, dir)
	r2, err := New(store2, baseRoutes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	routes := r2.Routes()
	if routes[1].Target != "http://responses:5002" {
		t.Errorf("responses target after reopen = %q, want persisted URL", routes[1].Target)
	}
}

func TestStore_CRUD(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	ctx := context.Background()

	if err := store.Upsert(ctx, "ai", "http://ai:5003"); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := store.Upsert(ctx, "ai", "http://ai:5004"); err != nil {
		t.Fatalf("Upsert() update error = %v", err)
	}

	services, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(services) != 1 {
		t.Fatalf("len(services) = %d, want 1", len(services))
	}
	if services[0].BaseURL != "http://ai:5004" {
		t.Errorf("base_url = %q, want updated URL", services[0].BaseURL)
	}

	if err := store.Delete(ctx, "ai"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	services, err = store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(services) != 0 {
		t.Errorf("len(services) = %d after delete, want 0", len(services))
	}
}
