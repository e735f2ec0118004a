package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL points at a local development backend.
	DefaultBaseURL = "http://localhost:8003"

	// DefaultPrefix is the API path prefix for auth endpoints.
	DefaultPrefix = "/api/v1"

	defaultTimeout = 30 * time.Second
)

// Config holds the settings shared by the auth and device API clients.
type Config struct {
	// BaseURL is the backend base address, e.g. http://localhost:8003.
	BaseURL string

	// Prefix is prepended to request paths, e.g. /api/v1. May be empty.
	Prefix string

	// HTTPClient is used for all requests. When nil a client with a
	// default timeout is created.
	HTTPClient *http.Client
}

// URL joins the base address, prefix and path.
func (c Config) URL(path string) string {
	base := strings.TrimSuffix(c.BaseURL, "/")
	return base + c.Prefix + path
}

// Client resolves the configured HTTP client.
func (c Config) Client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

// Do performs a JSON request and decodes a 2xx response body into out.
// Non-2xx responses are returned as *Error. A nil out discards the body.
func Do(ctx context.Context, client *http.Client, method, url string, headers http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	started := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	log.Debug().
		Str("method", method).
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(started)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ErrorFromResponse(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}

	return nil
}
