package server

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrExpiredSession = errors.New("session expired")
	ErrInvalidCSRF    = errors.New("invalid CSRF token")
)

const sessionCookieName = "waterline_session"

// SessionData holds the authenticated user's session information as
// embedded in the signed cookie.
type SessionData struct {
	Email     string    `json:"email"`
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionIssuer signs and validates the HMAC cookie sessions and the
// bearer JWTs handed out by the development backend. Both share one
// signing secret; this backend stands in for a hosted identity
// provider during development only.
type SessionIssuer struct {
	secret     []byte
	sessionTTL time.Duration
	tokenTTL   time.Duration

	csrfMu     sync.Mutex
	csrfTokens map[string]time.Time
}

// NewSessionIssuer creates an issuer. The secret must be at least 32
// bytes.
func NewSessionIssuer(secret []byte, sessionTTL, tokenTTL time.Duration) (*SessionIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("signing secret must be at least 32 bytes")
	}
	if sessionTTL <= 0 || tokenTTL <= 0 {
		return nil, fmt.Errorf("session and token TTLs must be greater than 0")
	}

	return &SessionIssuer{
		secret:     secret,
		sessionTTL: sessionTTL,
		tokenTTL:   tokenTTL,
		csrfTokens: make(map[string]time.Time),
	}, nil
}

// CreateSessionToken creates an HMAC-signed session cookie value.
func (s *SessionIssuer) CreateSessionToken(user *User) (string, error) {
	session := SessionData{
		Email:     user.Email,
		UserID:    user.ID,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(s.sessionTTL),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	encoded := base64.URLEncoding.EncodeToString(data)

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encoded))
	signature := mac.Sum(nil)

	return encoded + "." + base64.URLEncoding.EncodeToString(signature), nil
}

// ValidateSessionToken validates and extracts the session data from an
// HMAC-signed cookie value.
func (s *SessionIssuer) ValidateSessionToken(tokenValue string) (*SessionData, error) {
	parts := strings.Split(tokenValue, ".")
	if len(parts) != 2 {
		log.Debug().Msg("invalid session token format")
		return nil, ErrInvalidSession
	}

	encoded := parts[0]
	receivedSig, err := base64.URLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidSession
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encoded))
	expectedSig := mac.Sum(nil)

	if !hmac.Equal(receivedSig, expectedSig) {
		log.Debug().Msg("session token signature validation failed")
		return nil, ErrInvalidSession
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidSession
	}

	var session SessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, ErrInvalidSession
	}

	if time.Now().After(session.ExpiresAt) {
		log.Debug().Str("user", session.Email).Msg("session expired")
		return nil, ErrExpiredSession
	}

	return &session, nil
}

// identityClaims is the claim shape of the issued JWTs, matching what
// the client decodes from the identity token.
type identityClaims struct {
	jwt.RegisteredClaims

	Email      string   `json:"email,omitempty"`
	GivenName  string   `json:"given_name,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	Username   string   `json:"cognito:username,omitempty"`
	Groups     []string `json:"cognito:groups,omitempty"`
	TokenUse   string   `json:"token_use"`
	ClientID   string   `json:"client_id,omitempty"`
}

// IssueTokens creates the access, identity and refresh JWTs for a
// user. All are HS256-signed with the shared secret.
func (s *SessionIssuer) IssueTokens(user *User) (access, id, refresh string, expiresIn int, err error) {
	now := time.Now()

	access, err = s.sign(identityClaims{
		RegisteredClaims: registered(user, now, s.tokenTTL),
		Email:            user.Email,
		TokenUse:         "access",
		ClientID:         "waterline-dev",
		Groups:           user.Groups,
	})
	if err != nil {
		return "", "", "", 0, err
	}

	id, err = s.sign(identityClaims{
		RegisteredClaims: registered(user, now, s.tokenTTL),
		Email:            user.Email,
		GivenName:        user.GivenName,
		FamilyName:       user.FamilyName,
		Username:         user.Email,
		Groups:           user.Groups,
		TokenUse:         "id",
	})
	if err != nil {
		return "", "", "", 0, err
	}

	refresh, err = s.sign(identityClaims{
		RegisteredClaims: registered(user, now, 30*24*time.Hour),
		Email:            user.Email,
		TokenUse:         "refresh",
	})
	if err != nil {
		return "", "", "", 0, err
	}

	return access, id, refresh, int(s.tokenTTL.Seconds()), nil
}

// VerifyToken parses and verifies a JWT, requiring the given token_use.
func (s *SessionIssuer) VerifyToken(raw, use string) (*identityClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &identityClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		log.Debug().Err(err).Msg("JWT parse error")
		return nil, ErrInvalidSession
	}

	claims, ok := parsed.Claims.(*identityClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	if claims.TokenUse != use {
		return nil, ErrInvalidSession
	}

	return claims, nil
}

// IssueCSRFToken creates a single-use anti-forgery token valid for a
// short window.
func (s *SessionIssuer) IssueCSRFToken() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	tok := base64.RawURLEncoding.EncodeToString(buf)

	s.csrfMu.Lock()
	defer s.csrfMu.Unlock()

	// Opportunistic cleanup of expired entries.
	now := time.Now()
	for k, exp := range s.csrfTokens {
		if now.After(exp) {
			delete(s.csrfTokens, k)
		}
	}

	s.csrfTokens[tok] = now.Add(15 * time.Minute)
	return tok
}

// ConsumeCSRFToken validates and burns a token. Each token is good for
// exactly one mutating request.
func (s *SessionIssuer) ConsumeCSRFToken(tok string) error {
	s.csrfMu.Lock()
	defer s.csrfMu.Unlock()

	exp, ok := s.csrfTokens[tok]
	if !ok || time.Now().After(exp) {
		return ErrInvalidCSRF
	}

	delete(s.csrfTokens, tok)
	return nil
}

func registered(user *User, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    "waterline-devserver",
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (s *SessionIssuer) sign(claims identityClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
