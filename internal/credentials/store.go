// Package credentials persists the token set issued at login so later
// CLI invocations can restore the session without logging in again.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fieldsense/waterline/internal/token"
)

// Sentinel errors
var (
	// ErrNoCredentials is returned when no token set has been saved.
	ErrNoCredentials = errors.New("no stored credentials")

	// ErrCorruptCredentials is returned when the stored file cannot be
	// parsed. Callers should delete the file and treat the session as
	// unauthenticated.
	ErrCorruptCredentials = errors.New("corrupt credentials file")
)

const credentialsFile = "credentials.json"

// stored is the on-disk shape of the credentials file.
type stored struct {
	Version int       `json:"version"`
	Tokens  token.Set `json:"tokens"`
	SavedAt time.Time `json:"saved_at"`
}

// Store manages the single durable-storage entry holding the
// serialized token set.
type Store struct {
	baseDir string
}

// NewStore creates a credentials store rooted at baseDir.
// If baseDir is empty, uses ~/.waterline/
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".waterline")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	log.Debug().Str("baseDir", baseDir).Msg("credentials store initialized")

	return &Store{baseDir: baseDir}, nil
}

// Load reads the stored token set. Returns ErrNoCredentials when no
// set has been saved and ErrCorruptCredentials when the file cannot be
// parsed.
func (s *Store) Load() (*token.Set, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var st stored
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCredentials, err)
	}

	if st.Tokens.AccessToken == "" && st.Tokens.IDToken == "" {
		return nil, ErrCorruptCredentials
	}

	return &st.Tokens, nil
}

// Save writes the token set atomically with 0600 permissions.
func (s *Store) Save(set *token.Set) error {
	st := stored{
		Version: 1,
		Tokens:  *set,
		SavedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	// Write to temp file first, then atomic rename
	path := s.path()
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	log.Debug().Str("path", path).Msg("credentials saved")

	return nil
}

// Delete removes the stored token set. Deleting when nothing is stored
// is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}

	log.Debug().Msg("credentials deleted")

	return nil
}

func (s *Store) path() string {
	return filepath.Join(s.baseDir, credentialsFile)
}
