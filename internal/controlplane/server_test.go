package controlplane

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/surveyforge/api-gateway/internal/config"
	"github.com/surveyforge/api-gateway/internal/proxy"
	"github.com/surveyforge/api-gateway/internal/registry"
	"github.com/surveyforge/api-gateway/internal/respond"
)

func newTestControlPlane(t *testing.T) (*Server, *proxy.Table) {
	t.Helper()
	logger := slog.Default()
	responder := respond.New(logger, true)

	routes := []config.RouteConfig{
		{Name: "surveys", Prefix: "/api/surveys", Target: "http://surveys:5001", RequiresAuth: true},
		{Name: "responses", Prefix: "/api/responses", RequiresAuth: true},
	}

	reg, err := registry.New(nil, routes, logger)
	if err != nil {
		t.Fatal(err)
	}

	dispatcher := proxy.NewDispatcher(logger, responder, time.Second)
	table, err := proxy.NewTable(dispatcher, reg.Routes())
	if err != nil {
		t.Fatal(err)
	}

	return New(reg, table, responder, logger), table
}

func TestControlPlane_ListServices(t *testing.T) {
	cp, _ := newTestControlPlane(t)

	rec := httptest.NewRecorder()
	cp.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Success  bool `json:"success"`
		Services []struct {
			Name    string `json:"name"`
			Target  string `json:"target"`
			BaseURL string `json:"base_url"`
		} `json:"services"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Success || len(body.Services) != 2 {
		t.Fatalf("body = %+v", body)
	}
	if body.Services[0].Target != "proxy" || body.Services[0].BaseURL != "http://surveys:5001" {
		t.Errorf("surveys view = %+v", body.Services[0])
	}
	if body.Services[1].Target != "stub" {
		t.Errorf("responses target = %q, want stub", body.Services[1].Target)
	}
}

func TestControlPlane_SetServiceFlipsStubToProxy(t *testing.T) {
	cp, table := newTestControlPlane(t)

	req := httptest.NewRequest(http.MethodPut, "/services/responses",
		strings.NewReader(`{"base_url":"http://responses:5002"}`))
	rec := httptest.NewRecorder()
	cp.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s), want 200", rec.Code, rec.Body.String())
	}

	b, ok := table.Resolve("/api/responses/1")
	if !ok {
		t.Fatal("route not resolvable after registration")
	}
	if b.Target.Kind != proxy.KindProxy {
		t.Errorf("target kind = %v, want proxy", b.Target.Kind)
	}
}

func TestControlPlane_SetServiceValidation(t *testing.T) {
	cp, _ := newTestControlPlane(t)

	t.Run("bad json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/services/responses", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		cp.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("relative url", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/services/responses", strings.NewReader(`{"base_url":"nope"}`))
		rec := httptest.NewRecorder()
		cp.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestControlPlane_UnknownPathIsEnvelope404(t *testing.T) {
	cp, _ := newTestControlPlane(t)

	rec := httptest.NewRecorder()
	cp.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var body respond.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal error envelope: %v (body %q)", err, rec.Body.String())
	}
	if body.Success {
		t.Error("success = true, want false")
	}
	if body.Error.Message != "Route not found." {
		t.Errorf("message = %q", body.Error.Message)
	}
}

func TestControlPlane_DeleteServiceRevertsToStub(t *testing.T) {
	cp, table := newTestControlPlane(t)

	put := httptest.NewRequest(http.MethodPut, "/services/responses",
		strings.NewReader(`{"base_url":"http://responses:5002"}`))
	cp.ServeHTTP(httptest.NewRecorder(), put)

	del := httptest.NewRequest(http.MethodDelete, "/services/responses", nil)
	rec := httptest.NewRecorder()
	cp.ServeHTTP(rec, del)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	b, ok := table.Resolve("/api/responses/1")
	if !ok {
		t.Fatal("route not resolvable after deregistration")
	}
	if b.Target.Kind != proxy.KindStub {
		t.Errorf("target kind = %v, want stub after delete", b.Target.Kind)
	}
}
