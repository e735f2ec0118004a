package server

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors
var (
	ErrUserExists       = errors.New("user already exists")
	ErrUserNotFound     = errors.New("user not found")
	ErrUserNotConfirmed = errors.New("account not confirmed")
	ErrWrongPassword    = errors.New("incorrect email or password")
	ErrBadCode          = errors.New("invalid confirmation code")
)

// User is a registered account in the development backend.
type User struct {
	ID         string
	Email      string
	GivenName  string
	FamilyName string
	Groups     []string
	Confirmed  bool
	CreatedAt  time.Time

	passwordHash     []byte
	confirmationCode string
	resetCode        string
}

// UserStore is an in-memory account registry. Data is lost on restart;
// this backend exists for local development only.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*User // keyed by email
}

// NewUserStore creates an empty user store.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*User)}
}

// Create registers a new unconfirmed account and returns it together
// with the confirmation code a real deployment would email out.
func (s *UserStore) Create(email, password, givenName, familyName string) (*User, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[email]; ok {
		return nil, "", ErrUserExists
	}

	code := shortCode()
	user := &User{
		ID:               uuid.NewString(),
		Email:            email,
		GivenName:        givenName,
		FamilyName:       familyName,
		Groups:           []string{"farmers"},
		CreatedAt:        time.Now().UTC(),
		passwordHash:     hash,
		confirmationCode: code,
	}
	s.users[email] = user

	log.Info().Str("email", email).Str("code", code).Msg("user registered, confirmation pending")

	snapshot := *user
	return &snapshot, code, nil
}

// Confirm marks an account as confirmed if the code matches.
func (s *UserStore) Confirm(email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok {
		return ErrUserNotFound
	}
	if user.Confirmed {
		return nil
	}
	if user.confirmationCode != code {
		return ErrBadCode
	}

	user.Confirmed = true
	user.confirmationCode = ""
	return nil
}

// Authenticate checks the password of a confirmed account. The
// returned user is a snapshot taken under the lock; the bcrypt
// comparison is deliberately slow and runs outside it.
func (s *UserStore) Authenticate(email, password string) (*User, error) {
	s.mu.RLock()
	user, ok := s.users[email]
	var snapshot User
	if ok {
		snapshot = *user
	}
	s.mu.RUnlock()

	if !ok {
		return nil, ErrWrongPassword
	}
	if err := bcrypt.CompareHashAndPassword(snapshot.passwordHash, []byte(password)); err != nil {
		return nil, ErrWrongPassword
	}
	if !snapshot.Confirmed {
		return nil, ErrUserNotConfirmed
	}

	return &snapshot, nil
}

// Get looks up an account by email and returns a snapshot of it.
func (s *UserStore) Get(email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	snapshot := *user
	return &snapshot, nil
}

// ChangePassword replaces the password of an account after verifying
// the old one.
func (s *UserStore) ChangePassword(email, oldPassword, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok {
		return ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword(user.passwordHash, []byte(oldPassword)); err != nil {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.passwordHash = hash
	return nil
}

// StartReset issues a password reset code.
func (s *UserStore) StartReset(email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok {
		return "", ErrUserNotFound
	}

	code := shortCode()
	user.resetCode = code

	log.Info().Str("email", email).Str("code", code).Msg("password reset requested")

	return code, nil
}

// CompleteReset sets a new password if the reset code matches.
func (s *UserStore) CompleteReset(email, code, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok {
		return ErrUserNotFound
	}
	if user.resetCode == "" || user.resetCode != code {
		return ErrBadCode
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.passwordHash = hash
	user.resetCode = ""
	return nil
}

// shortCode generates a short base58 code, standing in for the numeric
// codes a hosted identity provider emails out.
func shortCode() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return base58.Encode(buf)[:8]
}
