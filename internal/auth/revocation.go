package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPRevocationChecker asks the external identity service whether a locally
// valid token has been revoked. The call is bounded by Timeout; any
// transport failure or non-2xx status is returned as an error so the caller
// can treat the result as advisory.
type HTTPRevocationChecker struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRevocationChecker creates a checker against the identity service at
// baseURL. timeout bounds each call.
func NewHTTPRevocationChecker(baseURL string, timeout time.Duration) *HTTPRevocationChecker {
	return &HTTPRevocationChecker{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

// Check posts the token to the identity service's validate endpoint.
// Returns (false, nil) only when the service authoritatively reports the
// token invalid.
func (c *HTTPRevocationChecker) Check(ctx context.Context, token string) (bool, error) {
	body, err := json.Marshal(validateRequest{Token: token})
	if err != nil {
		return false, fmt.Errorf("marshal validate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/validate", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("revocation check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("revocation check: unexpected status %d", resp.StatusCode)
	}

	var vr validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return false, fmt.Errorf("decode validate response: %w", err)
	}

	return vr.Valid, nil
}
