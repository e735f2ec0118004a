package api

import (
	"context"
	"fmt"
	"net/http"
)

// CSRFHeader carries the single-use anti-forgery token on mutating
// requests in cookie-session mode.
const CSRFHeader = "X-CSRF-Token"

type csrfTokenResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// FetchCSRFToken retrieves a single-use anti-forgery token. The server
// ties the token to the caller's session, so client must carry the
// same cookie jar as the mutating request that follows.
func FetchCSRFToken(ctx context.Context, client *http.Client, url string) (string, error) {
	var resp csrfTokenResponse
	if err := Do(ctx, client, http.MethodGet, url, nil, nil, &resp); err != nil {
		return "", fmt.Errorf("failed to fetch CSRF token: %w", err)
	}
	return resp.CSRFToken, nil
}
