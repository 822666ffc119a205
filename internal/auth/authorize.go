package auth

import "github.com/surveyforge/api-gateway/internal/domain"

// Authorize reports whether the identity's role satisfies the required set.
// An empty required set means any authenticated identity. Calling with a nil
// identity is a programming error and fails as unauthenticated rather than
// panicking. Pure function, no I/O.
func Authorize(id *domain.Identity, required []string) error {
	if id == nil {
		return domain.NewError(domain.ErrorTypeAuthentication, "Authentication required.")
	}

	if len(required) == 0 {
		return nil
	}

	for _, role := range required {
		if id.Role == role {
			return nil
		}
	}

	return domain.NewError(domain.ErrorTypePermission, "Insufficient permissions.")
}
