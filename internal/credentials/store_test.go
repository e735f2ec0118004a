package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsense/waterline/internal/token"
)

func TestNewStore(t *testing.T) {
	t.Run("creates directory with correct permissions", func(t *testing.T) {
		tmpDir := t.TempDir()
		credDir := filepath.Join(tmpDir, "creds")

		store, err := NewStore(credDir)
		require.NoError(t, err)
		assert.NotNil(t, store)

		info, err := os.Stat(credDir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
	})
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	set := &token.Set{
		AccessToken:  "access-token",
		IDToken:      "id-token",
		RefreshToken: "refresh-token",
	}

	require.NoError(t, store.Save(set))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, set, loaded)
}

func TestStoreFilePermissions(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(&token.Set{AccessToken: "a", IDToken: "b"}))

	info, err := os.Stat(filepath.Join(dir, credentialsFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestStoreLoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load()
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestStoreLoadCorrupt(t *testing.T) {
	t.Run("invalid JSON", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewStore(dir)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(filepath.Join(dir, credentialsFile), []byte("{not json"), 0600))

		_, err = store.Load()
		require.ErrorIs(t, err, ErrCorruptCredentials)
	})

	t.Run("empty token set", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewStore(dir)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(filepath.Join(dir, credentialsFile), []byte(`{"version":1,"tokens":{}}`), 0600))

		_, err = store.Load()
		require.ErrorIs(t, err, ErrCorruptCredentials)
	})
}

func TestStoreDelete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(&token.Set{AccessToken: "a", IDToken: "b"}))
	require.NoError(t, store.Delete())

	_, err = store.Load()
	require.ErrorIs(t, err, ErrNoCredentials)

	// Deleting again is not an error.
	require.NoError(t, store.Delete())
}
