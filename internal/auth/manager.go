// Package auth orchestrates the session lifecycle: it owns all network
// and storage I/O around the pure session state machine, translating
// call outcomes into session events.
package auth

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/fieldsense/waterline/internal/api"
	"github.com/fieldsense/waterline/internal/authapi"
	"github.com/fieldsense/waterline/internal/credentials"
	"github.com/fieldsense/waterline/internal/session"
	"github.com/fieldsense/waterline/internal/token"
)

// Manager drives the session state machine. All transitions flow
// through the injected store; Manager itself holds no session state.
type Manager struct {
	store  *session.Store
	client *authapi.Client
	creds  *credentials.Store
}

// NewManager creates a session manager. creds may be nil in cookie
// mode, where no token set is held client side.
func NewManager(store *session.Store, client *authapi.Client, creds *credentials.Store) *Manager {
	return &Manager{store: store, client: client, creds: creds}
}

// Store returns the injected session store for consumers that only
// need to read state or subscribe to changes.
func (m *Manager) Store() *session.Store {
	return m.store
}

// Initialize resolves an existing session. It runs once per process
// start, before any protected operation. Absence of a session is a
// silent failure: the error message stays empty.
//
// Cookie mode asks the backend who the ambient session cookie belongs
// to and trusts the answer. Bearer mode restores the persisted token
// set, checks expiry locally and decodes the identity token without
// further network validation.
func (m *Manager) Initialize(ctx context.Context) {
	gen := m.store.Begin()

	if m.client.Mode() == authapi.ModeCookie {
		user, err := m.client.Me(ctx, "")
		if err != nil {
			log.Debug().Err(err).Msg("no ambient session found")
			m.store.DispatchAt(gen, session.Failed{})
			return
		}
		m.store.DispatchAt(gen, session.Succeeded{User: user})
		return
	}

	set, err := m.creds.Load()
	if err != nil {
		if !errors.Is(err, credentials.ErrNoCredentials) {
			log.Debug().Err(err).Msg("discarding unreadable stored credentials")
			_ = m.creds.Delete()
		}
		m.store.DispatchAt(gen, session.Failed{})
		return
	}

	if set.Expired() {
		log.Debug().Msg("stored credentials expired")
		_ = m.creds.Delete()
		m.store.DispatchAt(gen, session.Failed{})
		return
	}

	user, err := identityFromSet(set)
	if err != nil {
		log.Debug().Err(err).Msg("stored identity token unparseable")
		_ = m.creds.Delete()
		m.store.DispatchAt(gen, session.Failed{})
		return
	}

	m.store.DispatchAt(gen, session.Succeeded{User: user, Tokens: set})
}

// Login authenticates with email and password. On failure the session
// settles as unauthenticated with a displayable message and the error
// is returned so the caller can react without losing its place.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	gen := m.store.Begin()
	m.store.DispatchAt(gen, session.Started{})

	resp, err := m.client.Login(ctx, authapi.LoginRequest{Email: email, Password: password})
	if err != nil {
		m.store.DispatchAt(gen, session.Failed{Message: displayMessage(err, "login failed")})
		return err
	}

	if m.client.Mode() == authapi.ModeCookie {
		// The session cookie is now established; the backend is the
		// source of truth for the identity.
		user, err := m.client.Me(ctx, "")
		if err != nil {
			m.store.DispatchAt(gen, session.Failed{Message: displayMessage(err, "login failed")})
			return err
		}
		m.store.DispatchAt(gen, session.Succeeded{User: user})
		return nil
	}

	set := &token.Set{
		AccessToken:  resp.AccessToken,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
	}

	if err := m.creds.Save(set); err != nil {
		m.store.DispatchAt(gen, session.Failed{Message: "failed to save credentials"})
		return err
	}

	user, err := identityFromSet(set)
	if err != nil {
		m.store.DispatchAt(gen, session.Failed{Message: displayMessage(err, "login failed")})
		return err
	}

	log.Info().Str("email", user.Email).Msg("logged in")

	m.store.DispatchAt(gen, session.Succeeded{User: user, Tokens: set})
	return nil
}

// SignUp registers a new account. This intentionally does not
// authenticate the user: the flow ends with a Completed event.
func (m *Manager) SignUp(ctx context.Context, req authapi.SignUpRequest) (*authapi.SignUpResponse, error) {
	gen := m.store.Begin()
	m.store.DispatchAt(gen, session.Started{})

	resp, err := m.client.SignUp(ctx, req)
	if err != nil {
		m.store.DispatchAt(gen, session.Failed{Message: displayMessage(err, "signup failed")})
		return nil, err
	}

	m.store.DispatchAt(gen, session.Completed{})
	return resp, nil
}

// ConfirmSignUp confirms a registration with the emailed code.
func (m *Manager) ConfirmSignUp(ctx context.Context, email, code string) error {
	gen := m.store.Begin()
	m.store.DispatchAt(gen, session.Started{})

	err := m.client.ConfirmSignUp(ctx, authapi.ConfirmSignUpRequest{Email: email, ConfirmationCode: code})
	if err != nil {
		m.store.DispatchAt(gen, session.Failed{Message: displayMessage(err, "confirmation failed")})
		return err
	}

	m.store.DispatchAt(gen, session.Completed{})
	return nil
}

// Refresh exchanges the stored refresh token for a fresh token set and
// replaces the user wholesale. Bearer mode only.
func (m *Manager) Refresh(ctx context.Context) error {
	if m.client.Mode() != authapi.ModeBearer {
		return errors.New("refresh is only available in bearer mode")
	}

	set, err := m.creds.Load()
	if err != nil {
		return err
	}
	if set.RefreshToken == "" {
		return credentials.ErrNoCredentials
	}

	gen := m.store.Begin()
	m.store.DispatchAt(gen, session.Started{})

	resp, err := m.client.Refresh(ctx, set.RefreshToken)
	if err != nil {
		m.store.DispatchAt(gen, session.Failed{Message: displayMessage(err, "session refresh failed")})
		return err
	}

	fresh := &token.Set{
		AccessToken: resp.AccessToken,
		IDToken:     resp.IDToken,
		// The identity provider may not rotate the refresh token.
		RefreshToken: resp.RefreshToken,
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = set.RefreshToken
	}

	if err := m.creds.Save(fresh); err != nil {
		m.store.DispatchAt(gen, session.Failed{Message: "failed to save credentials"})
		return err
	}

	user, err := identityFromSet(fresh)
	if err != nil {
		m.store.DispatchAt(gen, session.Failed{Message: displayMessage(err, "session refresh failed")})
		return err
	}

	m.store.DispatchAt(gen, session.Succeeded{User: user, Tokens: fresh})
	return nil
}

// Logout notifies the backend best-effort and always clears local
// state, even when the invalidation call fails.
func (m *Manager) Logout(ctx context.Context) {
	gen := m.store.Begin()

	if err := m.client.Logout(ctx, m.AccessToken()); err != nil {
		log.Warn().Err(err).Msg("backend logout failed, clearing local session anyway")
	}

	if m.creds != nil {
		if err := m.creds.Delete(); err != nil {
			log.Warn().Err(err).Msg("failed to delete stored credentials")
		}
	}

	m.store.DispatchAt(gen, session.LoggedOut{})
}

// ClearError drops the session error message.
func (m *Manager) ClearError() {
	m.store.Dispatch(session.ErrorCleared{})
}

// AccessToken returns the current access token, or empty when none is
// held (cookie mode, or not authenticated).
func (m *Manager) AccessToken() string {
	st := m.store.State()
	if st.Tokens == nil {
		return ""
	}
	return st.Tokens.AccessToken
}

// identityFromSet decodes the identity token's claims into a User.
func identityFromSet(set *token.Set) (*session.User, error) {
	claims, err := token.Decode(set.IDToken)
	if err != nil {
		return nil, err
	}

	return &session.User{
		Sub:        claims.Sub,
		Email:      claims.Email,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
		Username:   claims.Username,
		Groups:     claims.Groups,
		TokenUse:   claims.TokenUse,
		ClientID:   claims.ClientID,
	}, nil
}

// displayMessage extracts a user-displayable message from an API error
// or falls back to a generic one for transport failures.
func displayMessage(err error, fallback string) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
