// Package auth verifies bearer tokens and authorizes roles.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/surveyforge/api-gateway/internal/domain"
)

// Status tags how much trust a successful verification carries. The
// advisory revocation check can fail without invalidating the token, and
// callers (and logs) need to distinguish "trusted" from "assumed valid".
type Status string

const (
	// StatusVerified means signature, expiry, and revocation all checked out.
	StatusVerified Status = "verified"

	// StatusVerifiedWithWarning means the token verified locally but the
	// revocation service could not be consulted.
	StatusVerifiedWithWarning Status = "verified_with_warning"
)

// Verification is the successful result of verifying a bearer token.
type Verification struct {
	Identity *domain.Identity
	Status   Status
	// Warning is the reason the revocation check was skipped, set only when
	// Status is StatusVerifiedWithWarning.
	Warning string
}

// Claims is the JWT payload the gateway understands. Issued by the external
// identity provider; the gateway only verifies, never mints (outside of the
// tokengen dev tool).
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// RevocationChecker consults the external identity service about a locally
// valid token. It is advisory: transport failures must be reported as
// errors, an authoritative "revoked" as (false, nil).
type RevocationChecker interface {
	Check(ctx context.Context, token string) (valid bool, err error)
}

// Verifier validates bearer credentials. Stateless; safe for unlimited
// concurrent use.
type Verifier struct {
	secret  []byte
	revoker RevocationChecker
	logger  *slog.Logger
}

// NewVerifier creates a Verifier. revoker may be nil, which disables the
// advisory revocation check.
func NewVerifier(secret string, revoker RevocationChecker, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{secret: []byte(secret), revoker: revoker, logger: logger}
}

// Verify validates the Authorization header value and returns the derived
// identity. Failures are *domain.GatewayError with authentication type.
func (v *Verifier) Verify(ctx context.Context, authorization string) (*Verification, error) {
	if authorization == "" {
		return nil, domain.NewError(domain.ErrorTypeAuthentication, "Access denied. No token provided.")
	}

	tokenString, found := strings.CutPrefix(authorization, "Bearer ")
	if !found {
		return nil, domain.NewError(domain.ErrorTypeAuthentication, "Invalid authorization format.")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.NewError(domain.ErrorTypeAuthentication, "Token expired.")
		}
		return nil, domain.NewError(domain.ErrorTypeAuthentication, "Invalid token.")
	}
	if !token.Valid {
		return nil, domain.NewError(domain.ErrorTypeAuthentication, "Invalid token.")
	}

	id := &domain.Identity{
		ID:    claims.UserID,
		Email: claims.Email,
		Role:  claims.Role,
	}
	if id.ID == "" {
		id.ID = claims.Subject
	}

	if v.revoker == nil {
		return &Verification{Identity: id, Status: StatusVerified}, nil
	}

	valid, err := v.revoker.Check(ctx, tokenString)
	if err != nil {
		// Advisory check: the revocation service being unreachable must not
		// couple gateway availability to its uptime.
		v.logger.Warn("revocation check unavailable, accepting token",
			slog.String("user_id", id.ID),
			slog.String("error", err.Error()))
		return &Verification{
			Identity: id,
			Status:   StatusVerifiedWithWarning,
			Warning:  err.Error(),
		}, nil
	}
	if !valid {
		return nil, domain.NewError(domain.ErrorTypeAuthentication, "Token revoked.")
	}

	return &Verification{Identity: id, Status: StatusVerified}, nil
}
