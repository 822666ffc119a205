// Package domain provides canonical types and the error taxonomy for the gateway.
package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorType represents the category of a gateway error.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a malformed or invalid request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeAuthentication indicates an authentication failure
	// (missing, malformed, expired, or revoked credentials).
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypePermission indicates the authenticated identity lacks a required role.
	ErrorTypePermission ErrorType = "permission"

	// ErrorTypeNotFound indicates no route or resource matched the request.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeConflict indicates a state conflict reported at the edge.
	ErrorTypeConflict ErrorType = "conflict"

	// ErrorTypeRateLimit indicates the per-client request window was exhausted.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeUpstream indicates a transport-level failure reaching a backend.
	// HTTP error statuses from backends are not upstream errors; they pass through.
	ErrorTypeUpstream ErrorType = "upstream"

	// ErrorTypeServer indicates an internal gateway error.
	ErrorTypeServer ErrorType = "server"
)

// GatewayError is the canonical error carried through the gateway. Every
// non-2xx response the gateway originates is derived from one of these.
type GatewayError struct {
	// Type is the category of error.
	Type ErrorType `json:"type"`

	// Message is the client-visible error message.
	Message string `json:"message"`

	// Details carries extra context. Omitted from response bodies in
	// production environments.
	Details any `json:"details,omitempty"`

	// StatusCode overrides the type's default HTTP status when non-zero.
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the HTTP status for this error. An explicit
// StatusCode wins over the type's default.
func (e *GatewayError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WithDetails attaches details to the error and returns it.
func (e *GatewayError) WithDetails(details any) *GatewayError {
	e.Details = details
	return e
}

// WithStatus sets an explicit HTTP status and returns the error.
func (e *GatewayError) WithStatus(code int) *GatewayError {
	e.StatusCode = code
	return e
}

// NewError creates a new gateway error.
func NewError(errType ErrorType, message string) *GatewayError {
	return &GatewayError{Type: errType, Message: message}
}

// Normalize converts any error into a GatewayError. A GatewayError passes
// through untouched (explicit wins over inferred); context deadline and
// transport errors map to upstream; everything else collapses to a server
// error with a fixed message so internals never leak.
func Normalize(err error) *GatewayError {
	if err == nil {
		return nil
	}

	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorTypeUpstream, "Upstream request timed out.")
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewError(ErrorTypeUpstream, "Upstream service unavailable.")
	}

	return NewError(ErrorTypeServer, "Internal Server Error")
}
