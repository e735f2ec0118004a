package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fieldsense/waterline/internal/api"
	"github.com/fieldsense/waterline/internal/auth"
	"github.com/fieldsense/waterline/internal/authapi"
	"github.com/fieldsense/waterline/internal/credentials"
	"github.com/fieldsense/waterline/internal/deviceapi"
	"github.com/fieldsense/waterline/internal/guard"
	"github.com/fieldsense/waterline/internal/session"
)

type Globals struct {
	Debug   bool
	Version string
}

// ClientFlags are the connection settings shared by every command.
type ClientFlags struct {
	Server         string        `help:"Backend base URL" default:"http://localhost:8003" env:"WATERLINE_SERVER"`
	Prefix         string        `help:"API path prefix for auth endpoints" default:"/api/v1" env:"WATERLINE_API_PREFIX"`
	Mode           string        `help:"Authentication mode" default:"bearer" env:"WATERLINE_AUTH_MODE" enum:"bearer,cookie"`
	CredentialsDir string        `help:"Directory holding stored credentials (default ~/.waterline)" default:"" env:"WATERLINE_CREDENTIALS_DIR"`
	Timeout        time.Duration `help:"Request timeout" default:"30s"`

	httpClient *http.Client
}

// client returns the HTTP client shared by the auth and device API
// clients. Sharing matters in cookie mode, where both must see the
// same cookie jar.
func (f *ClientFlags) client() *http.Client {
	if f.httpClient == nil {
		f.httpClient = &http.Client{Timeout: f.Timeout}
	}
	return f.httpClient
}

// apiConfig builds the shared client configuration.
func (f *ClientFlags) apiConfig() api.Config {
	return api.Config{
		BaseURL:    f.Server,
		Prefix:     f.Prefix,
		HTTPClient: f.client(),
	}
}

// deviceConfig is apiConfig without the auth prefix: device endpoints
// are served at the backend root.
func (f *ClientFlags) deviceConfig() api.Config {
	cfg := f.apiConfig()
	cfg.Prefix = ""
	return cfg
}

// manager wires the session store, auth client and credentials store.
func (f *ClientFlags) manager() (*auth.Manager, *credentials.Store, error) {
	mode := authapi.ModeBearer
	if f.Mode == "cookie" {
		mode = authapi.ModeCookie
	}

	client, err := authapi.New(f.apiConfig(), mode)
	if err != nil {
		return nil, nil, err
	}

	var creds *credentials.Store
	if mode == authapi.ModeBearer {
		creds, err = credentials.NewStore(f.CredentialsDir)
		if err != nil {
			return nil, nil, err
		}
	}

	return auth.NewManager(session.NewStore(), client, creds), creds, nil
}

// deviceClient builds a device API client bound to the manager's
// session. Eviction clears the persisted credentials and resets the
// session, so an expired token logs the user out everywhere at once.
func (f *ClientFlags) deviceClient(mgr *auth.Manager, creds *credentials.Store) *deviceapi.Client {
	opts := []deviceapi.Option{
		deviceapi.WithCaching(),
		deviceapi.WithRetry(),
	}

	if f.Mode == "cookie" {
		opts = append(opts, deviceapi.WithCookieSession(f.apiConfig().URL("/auth/csrf-token")))
	}

	if creds != nil {
		evict := func() {
			_ = creds.Delete()
			mgr.Store().Dispatch(session.LoggedOut{})
		}
		opts = append(opts, deviceapi.WithTokenSource(mgr, evict))
	}

	return deviceapi.New(f.deviceConfig(), opts...)
}

// requireSession initializes the session and gates the command the way
// a protected page would: unauthenticated users are turned away with a
// pointer at the login command.
func requireSession(ctx context.Context, mgr *auth.Manager) error {
	mgr.Initialize(ctx)

	result := guard.Evaluate(mgr.Store().State(), guard.Policy{RequireAuth: true})
	if result.Decision != guard.Allow {
		return errors.New("not logged in, run 'waterline-cli login' first")
	}

	return nil
}

// describeError turns API errors into messages fit for the terminal.
func describeError(err error) error {
	switch {
	case errors.Is(err, api.ErrAlreadyClaimed):
		return errors.New("that device has already been claimed by another account")
	case errors.Is(err, api.ErrDeviceNotFound):
		return errors.New("no such device")
	case errors.Is(err, api.ErrTokenExpired):
		return errors.New("your session has expired, run 'waterline-cli login' again")
	case errors.Is(err, api.ErrUnauthorized):
		return errors.New("not authorized, run 'waterline-cli login' first")
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return fmt.Errorf("request failed: %s", apiErr.Message)
	}

	return err
}
