package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware caps each request's context at the gateway's proxy
// timeout so a stalled backend cannot pin a connection indefinitely.
// Cancellation is cooperative: the reverse proxy and the revocation client
// both watch the context. A zero timeout disables the cap.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
