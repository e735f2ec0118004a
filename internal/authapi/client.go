// Package authapi is the client for the backend's authentication
// endpoints. It supports two deployment modes: cookie sessions, where
// the server manages an HttpOnly cookie and mutating requests carry a
// single-use CSRF token, and bearer tokens, where the client holds the
// token set and attaches an Authorization header.
package authapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"

	"github.com/fieldsense/waterline/internal/api"
	"github.com/fieldsense/waterline/internal/session"
)

// Mode selects how the client authenticates requests.
type Mode string

const (
	// ModeCookie relies on a server-set HttpOnly session cookie and the
	// CSRF token dance for mutating verbs.
	ModeCookie Mode = "cookie"

	// ModeBearer attaches Authorization: Bearer headers and performs no
	// CSRF negotiation.
	ModeBearer Mode = "bearer"
)

// Client calls the backend auth endpoints.
type Client struct {
	cfg  api.Config
	mode Mode
	http *http.Client
}

// New creates an auth API client. In cookie mode the HTTP client is
// given a cookie jar so the server-set session cookie survives across
// calls within the process.
func New(cfg api.Config, mode Mode) (*Client, error) {
	httpClient := cfg.Client()

	if mode == ModeCookie && httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}

	return &Client{cfg: cfg, mode: mode, http: httpClient}, nil
}

// Mode returns the configured authentication mode.
func (c *Client) Mode() Mode {
	return c.mode
}

// Login authenticates with email and password. CSRF is not required
// for login itself: no session exists yet to forge against.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := api.Do(ctx, c.http, http.MethodPost, c.cfg.URL("/auth/login"), nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SignUp registers a new user. The account is not authenticated until
// confirmed and logged in.
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	var resp SignUpResponse
	if err := c.post(ctx, "/auth/signup", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConfirmSignUp confirms a registration with the emailed code.
func (c *Client) ConfirmSignUp(ctx context.Context, req ConfirmSignUpRequest) error {
	var resp MessageResponse
	return c.post(ctx, "/auth/confirm-signup", "", req, &resp)
}

// Refresh exchanges a refresh token for a fresh token set.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*LoginResponse, error) {
	var resp LoginResponse
	req := RefreshRequest{RefreshToken: refreshToken}
	if err := c.post(ctx, "/auth/refresh", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChangePassword changes the current user's password.
func (c *Client) ChangePassword(ctx context.Context, accessToken string, req ChangePasswordRequest) error {
	var resp MessageResponse
	return c.post(ctx, "/auth/change-password", accessToken, req, &resp)
}

// ForgotPassword starts a password reset.
func (c *Client) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error {
	var resp MessageResponse
	return c.post(ctx, "/auth/forgot-password", "", req, &resp)
}

// ConfirmForgotPassword completes a password reset with the emailed code.
func (c *Client) ConfirmForgotPassword(ctx context.Context, req ConfirmForgotPasswordRequest) error {
	var resp MessageResponse
	return c.post(ctx, "/auth/confirm-forgot-password", "", req, &resp)
}

// Me returns the current user. It requires a valid bearer token or an
// ambient session cookie; its success or failure is the source of
// truth for session restoration in cookie mode.
func (c *Client) Me(ctx context.Context, accessToken string) (*session.User, error) {
	var user session.User
	if err := api.Do(ctx, c.http, http.MethodGet, c.cfg.URL("/auth/me"), c.authHeader(accessToken), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout asks the backend to invalidate the server-side session or
// cookie. Callers clear local state regardless of the outcome.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	var resp MessageResponse
	return c.post(ctx, "/auth/logout", accessToken, nil, &resp)
}

// post performs a mutating request, negotiating a CSRF token first in
// cookie mode.
func (c *Client) post(ctx context.Context, path, accessToken string, in, out any) error {
	headers := c.authHeader(accessToken)

	if c.mode == ModeCookie {
		csrfToken, err := api.FetchCSRFToken(ctx, c.http, c.cfg.URL("/auth/csrf-token"))
		if err != nil {
			return err
		}
		if headers == nil {
			headers = http.Header{}
		}
		headers.Set(api.CSRFHeader, csrfToken)
	}

	return api.Do(ctx, c.http, http.MethodPost, c.cfg.URL(path), headers, in, out)
}

func (c *Client) authHeader(accessToken string) http.Header {
	if c.mode != ModeBearer || accessToken == "" {
		return nil
	}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+accessToken)
	return headers
}
