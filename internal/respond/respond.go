// Package respond writes the gateway's fixed JSON envelopes and logs
// normalized errors at a severity derived from the status code.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/surveyforge/api-gateway/internal/domain"
)

// ErrorBody is the fixed error envelope for every non-2xx response the
// gateway originates.
type ErrorBody struct {
	Success bool         `json:"success"`
	Error   ErrorPayload `json:"error"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Responder writes responses. includeDetails is false in production so
// internal details never leak.
type Responder struct {
	logger         *slog.Logger
	includeDetails bool
}

// New creates a Responder. includeDetails should be true outside production.
func New(logger *slog.Logger, includeDetails bool) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{logger: logger, includeDetails: includeDetails}
}

// JSON writes v as a JSON response with the given status.
func (rs *Responder) JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rs.logger.Error("write response", slog.String("error", err.Error()))
	}
}

// Error normalizes err, logs it with request context, and writes the error
// envelope. Severity: >=500 error, >=400 warn, else info.
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	gwErr := domain.Normalize(err)
	status := gwErr.HTTPStatusCode()

	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error_type", string(gwErr.Type)),
		slog.String("error", gwErr.Message),
	}
	if id := domain.IdentityFrom(r.Context()); id != nil {
		attrs = append(attrs, slog.String("user_id", id.ID))
	}

	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}
	rs.logger.LogAttrs(r.Context(), level, "request failed", attrs...)

	body := ErrorBody{Error: ErrorPayload{Message: gwErr.Message}}
	if rs.includeDetails {
		body.Error.Details = gwErr.Details
	}
	rs.JSON(w, status, body)
}
