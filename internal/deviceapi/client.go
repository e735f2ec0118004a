// Package deviceapi is the client for the device registry endpoints:
// listing, claiming and reading telemetry. It shares the request and
// error plumbing of the auth client and layers bearer-token handling,
// read caching and bounded retry on top.
package deviceapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gregjones/httpcache"
	"github.com/rs/zerolog/log"

	"github.com/fieldsense/waterline/internal/api"
	"github.com/fieldsense/waterline/internal/token"
)

// TokenSource supplies the current access token. An empty string means
// no token is held (cookie mode, or unauthenticated).
type TokenSource interface {
	AccessToken() string
}

// Client calls the device registry endpoints.
type Client struct {
	cfg     api.Config
	http    *http.Client
	tokens  TokenSource
	evict   func()
	retry   bool
	csrfURL string
}

// Option configures the client.
type Option func(*Client)

// WithTokenSource attaches bearer authentication. evict is invoked
// when the held token is found expired locally or the backend answers
// 401; it should remove the persisted credentials. evict may be nil.
func WithTokenSource(ts TokenSource, evict func()) Option {
	return func(c *Client) {
		c.tokens = ts
		c.evict = evict
	}
}

// WithCookieSession enables cookie-session mode. The HTTP client must
// carry the jar holding the session cookie, and mutating requests
// first fetch a single-use anti-forgery token from csrfTokenURL and
// attach it as a header, the same dance the auth client performs.
func WithCookieSession(csrfTokenURL string) Option {
	return func(c *Client) {
		c.csrfURL = csrfTokenURL
	}
}

// WithCaching wraps the transport with an in-memory HTTP cache
// honouring Cache-Control on read endpoints.
func WithCaching() Option {
	return func(c *Client) {
		transport := httpcache.NewMemoryCacheTransport()
		transport.Transport = c.http.Transport
		c.http.Transport = transport
	}
}

// WithRetry enables bounded exponential-backoff retry of idempotent
// reads on transport failures and 5xx responses.
func WithRetry() Option {
	return func(c *Client) {
		c.retry = true
	}
}

// New creates a device API client.
func New(cfg api.Config, opts ...Option) *Client {
	c := &Client{
		cfg:  cfg,
		http: cfg.Client(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// List returns the devices visible to the current user.
func (c *Client) List(ctx context.Context) ([]Device, error) {
	var devices []Device
	if err := c.get(ctx, "/devices", &devices); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// Available returns devices still open for claiming.
func (c *Client) Available(ctx context.Context) ([]Device, error) {
	var devices []Device
	if err := c.get(ctx, "/devices/available", &devices); err != nil {
		return nil, fmt.Errorf("failed to list available devices: %w", err)
	}
	return devices, nil
}

// Get returns a single device.
func (c *Client) Get(ctx context.Context, deviceID string) (*Device, error) {
	var device Device
	if err := c.get(ctx, "/devices/"+deviceID, &device); err != nil {
		return nil, mapNotFound(err)
	}
	return &device, nil
}

// Claim associates an unclaimed device with the current user at the
// given position. A conflict response is authoritative: the device was
// claimed first by someone else, and the caller must be able to tell
// that apart from a generic failure.
func (c *Client) Claim(ctx context.Context, req ClaimRequest) (*Device, error) {
	headers, err := c.mutateHeaders(ctx)
	if err != nil {
		return nil, err
	}

	var device Device
	err = api.Do(ctx, c.http, http.MethodPost, c.cfg.URL("/devices/claim"), headers, req, &device)
	if err != nil {
		c.evictOn401(err)
		if apiErr, ok := asAPIError(err); ok {
			switch apiErr.Status {
			case http.StatusConflict:
				return nil, fmt.Errorf("%w: %s", api.ErrAlreadyClaimed, req.DeviceID)
			case http.StatusNotFound:
				return nil, fmt.Errorf("%w: %s", api.ErrDeviceNotFound, req.DeviceID)
			}
		}
		return nil, fmt.Errorf("failed to claim device: %w", err)
	}

	log.Info().
		Str("deviceId", req.DeviceID).
		Float64("lat", req.Lat).
		Float64("lon", req.Lon).
		Msg("device claimed")

	return &device, nil
}

// Latest returns the most recent reading for a device.
func (c *Client) Latest(ctx context.Context, deviceID string) (*LatestMetric, error) {
	var metric LatestMetric
	if err := c.get(ctx, "/devices/"+deviceID+"/latest", &metric); err != nil {
		return nil, mapNotFound(err)
	}
	return &metric, nil
}

// History returns up to limit readings from the past hours hours.
func (c *Client) History(ctx context.Context, deviceID string, hours, limit int) (*History, error) {
	path := fmt.Sprintf("/devices/%s/history?hours=%d&limit=%d", deviceID, hours, limit)
	var history History
	if err := c.get(ctx, path, &history); err != nil {
		return nil, mapNotFound(err)
	}
	return &history, nil
}

// Stats returns the dashboard aggregate for the current user.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.get(ctx, "/devices/stats", &stats); err != nil {
		return nil, fmt.Errorf("failed to fetch stats: %w", err)
	}
	return &stats, nil
}

// get performs an idempotent read, retrying transient failures when
// enabled.
func (c *Client) get(ctx context.Context, path string, out any) error {
	headers, err := c.preflight()
	if err != nil {
		return err
	}

	url := c.cfg.URL(path)

	do := func() error {
		err := api.Do(ctx, c.http, http.MethodGet, url, headers, nil, out)
		if err != nil {
			c.evictOn401(err)
		}
		return err
	}

	if !c.retry {
		return do()
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if err := do(); err != nil {
			if retryable(err) {
				return struct{}{}, err
			}
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
		backoff.WithMaxElapsedTime(30*time.Second),
	)

	return err
}

// preflight checks the held token before any network call. An expired
// token is evicted immediately rather than sent to the backend.
func (c *Client) preflight() (http.Header, error) {
	if c.tokens == nil {
		return nil, nil
	}

	accessToken := c.tokens.AccessToken()
	if accessToken == "" {
		return nil, nil
	}

	if token.Expired(accessToken) {
		log.Debug().Msg("access token expired, evicting credentials")
		if c.evict != nil {
			c.evict()
		}
		return nil, api.ErrTokenExpired
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+accessToken)
	return headers, nil
}

// mutateHeaders prepares headers for a mutating request: the bearer
// preflight, plus the CSRF token dance in cookie-session mode.
func (c *Client) mutateHeaders(ctx context.Context) (http.Header, error) {
	headers, err := c.preflight()
	if err != nil {
		return nil, err
	}

	if c.csrfURL == "" {
		return headers, nil
	}

	csrfToken, err := api.FetchCSRFToken(ctx, c.http, c.csrfURL)
	if err != nil {
		return nil, err
	}
	if headers == nil {
		headers = http.Header{}
	}
	headers.Set(api.CSRFHeader, csrfToken)
	return headers, nil
}

// evictOn401 treats an unauthorized response in bearer mode as
// authoritative and drops the local credentials.
func (c *Client) evictOn401(err error) {
	if c.tokens == nil || c.evict == nil {
		return
	}
	if apiErr, ok := asAPIError(err); ok && apiErr.Status == http.StatusUnauthorized {
		log.Debug().Msg("backend rejected credentials, evicting")
		c.evict()
	}
}

func mapNotFound(err error) error {
	if apiErr, ok := asAPIError(err); ok && apiErr.Status == http.StatusNotFound {
		return api.ErrDeviceNotFound
	}
	return err
}

func retryable(err error) bool {
	apiErr, ok := asAPIError(err)
	if !ok {
		// Transport failure.
		return true
	}
	return apiErr.Status >= 500
}

func asAPIError(err error) (*api.Error, bool) {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
