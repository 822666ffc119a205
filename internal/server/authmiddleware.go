package server

import (
	"net/http"

	"github.com/surveyforge/api-gateway/internal/auth"
	"github.com/surveyforge/api-gateway/internal/domain"
	"github.com/surveyforge/api-gateway/internal/respond"
)

// RequireAuth verifies the bearer token and injects the resolved identity
// into the request context. Verification runs before any role check or
// dispatch; a failure short-circuits the rest of the chain.
func RequireAuth(verifier *auth.Verifier, responder *respond.Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			verification, err := verifier.Verify(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				responder.Error(w, r, err)
				return
			}

			ctx := domain.WithIdentity(r.Context(), verification.Identity)
			AddLogField(ctx, "user_id", verification.Identity.ID)
			if verification.Status == auth.StatusVerifiedWithWarning {
				AddLogField(ctx, "auth_warning", verification.Warning)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles allows the request only when the resolved identity holds one
// of the given roles. Must run after RequireAuth.
func RequireRoles(responder *respond.Responder, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := auth.Authorize(domain.IdentityFrom(r.Context()), roles); err != nil {
				responder.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
