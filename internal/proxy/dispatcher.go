package proxy

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/surveyforge/api-gateway/internal/domain"
	"github.com/surveyforge/api-gateway/internal/respond"
)

// Identity propagation headers. Always set by the gateway from the resolved
// identity, never trusted from the original client.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// maxStubBody bounds how much of a request body a stub response echoes.
const maxStubBody = 1 << 20

// Dispatcher builds the terminal handler for each binding: a reverse proxy
// for bound routes, a deterministic stub for unbound ones. Single attempt,
// no retries; transport failures surface as 502.
type Dispatcher struct {
	logger    *slog.Logger
	responder *respond.Responder
	timeout   time.Duration
	transport http.RoundTripper
}

// NewDispatcher creates a Dispatcher. timeout bounds each proxied backend
// call end to end.
func NewDispatcher(logger *slog.Logger, responder *respond.Responder, timeout time.Duration) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:    logger,
		responder: responder,
		timeout:   timeout,
		transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			ResponseHeaderTimeout: timeout,
		},
	}
}

func (d *Dispatcher) buildHandler(b *Binding) http.Handler {
	if b.Target.Kind == KindStub {
		return d.stubHandler(b)
	}
	return d.proxyHandler(b)
}

// proxyHandler forwards the request to the binding's backend, stripping the
// matched prefix and injecting identity headers. Backend HTTP statuses,
// including errors, pass through untouched; only transport-level failures
// become gateway 502s.
func (d *Dispatcher) proxyHandler(b *Binding) http.Handler {
	target := b.Target.URL

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = target.Scheme
			pr.Out.URL.Host = target.Host
			pr.Out.URL.Path = joinPath(target, stripPrefix(pr.In.URL.Path, b.Prefix))
			pr.Out.Host = target.Host
			pr.SetXForwarded()

			// Identity headers come from the gateway, never the client.
			pr.Out.Header.Del(HeaderUserID)
			pr.Out.Header.Del(HeaderUserRole)
			if id := domain.IdentityFrom(pr.In.Context()); id != nil {
				pr.Out.Header.Set(HeaderUserID, id.ID)
				pr.Out.Header.Set(HeaderUserRole, id.Role)
			}
		},
		Transport: d.transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			d.logger.Warn("backend unreachable",
				slog.String("service", b.Name),
				slog.String("target", target.String()),
				slog.String("error", err.Error()))
			d.responder.Error(w, r, domain.NewError(domain.ErrorTypeUpstream,
				"Upstream service unavailable.").WithDetails(err.Error()))
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d.timeout)
		defer cancel()
		rp.ServeHTTP(w, r.WithContext(ctx))
	})
}

// stubBody is the deterministic placeholder served for unbound routes. It
// echoes the request so local development against a partial deployment stays
// debuggable.
type stubBody struct {
	Status  string          `json:"status"`
	Service string          `json:"service"`
	Method  string          `json:"method"`
	Path    string          `json:"path"`
	Body    json.RawMessage `json:"body,omitempty"`
	Survey  map[string]any  `json:"survey,omitempty"`
}

func (d *Dispatcher) stubHandler(b *Binding) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := stubBody{
			Status:  "mock",
			Service: b.Name,
			Method:  r.Method,
			Path:    r.URL.Path,
		}

		raw, err := io.ReadAll(io.LimitReader(r.Body, maxStubBody))
		if err == nil && len(raw) > 0 {
			if json.Valid(raw) {
				body.Body = json.RawMessage(raw)
			} else {
				quoted, _ := json.Marshal(string(raw))
				body.Body = quoted
			}
		}

		// The public survey route serves a fixed mock survey so the share
		// page renders without a survey backend.
		if b.Name == "public-survey" {
			body.Survey = mockSurvey(r.URL.Path)
		}

		d.responder.JSON(w, http.StatusOK, body)
	})
}

// mockSurvey is the fixed payload for an unbound public survey route. The ID
// is taken from the request path so links stay stable.
func mockSurvey(path string) map[string]any {
	id := path[strings.LastIndex(path, "/")+1:]
	return map[string]any{
		"id":     id,
		"title":  "Sample Survey",
		"status": "mock",
		"questions": []map[string]any{
			{"id": "q1", "type": "text", "text": "What do you think of our service?"},
			{"id": "q2", "type": "rating", "text": "How likely are you to recommend us?", "scale": 10},
		},
	}
}

// stripPrefix removes the matched prefix from an inbound path, leaving a
// rooted path for the backend.
func stripPrefix(path, prefix string) string {
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" {
		return "/"
	}
	if !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return rest
}

// joinPath prepends any base path on the target URL.
func joinPath(target *url.URL, rest string) string {
	base := strings.TrimRight(target.Path, "/")
	if base == "" {
		return rest
	}
	return base + rest
}
