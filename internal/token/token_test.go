package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-signing-secret-minimum-32-characters")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return raw
}

func TestExpired(t *testing.T) {
	t.Run("future exp is not expired", func(t *testing.T) {
		raw := signToken(t, jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		assert.False(t, Expired(raw))
	})

	t.Run("past exp is expired", func(t *testing.T) {
		raw := signToken(t, jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		assert.True(t, Expired(raw))
	})

	t.Run("missing exp claim counts as expired", func(t *testing.T) {
		raw := signToken(t, jwt.MapClaims{
			"sub": "user-1",
		})
		assert.True(t, Expired(raw))
	})

	t.Run("malformed token counts as expired", func(t *testing.T) {
		assert.True(t, Expired("not-a-jwt"))
		assert.True(t, Expired(""))
		assert.True(t, Expired("a.b"))
	})

	t.Run("garbage payload counts as expired", func(t *testing.T) {
		assert.True(t, Expired("eyJhbGciOiJIUzI1NiJ9.%%%%.sig"))
	})
}

func TestSetExpired(t *testing.T) {
	fresh := signToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	stale := signToken(t, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})

	t.Run("both tokens fresh", func(t *testing.T) {
		set := &Set{AccessToken: fresh, IDToken: fresh, RefreshToken: stale}
		assert.False(t, set.Expired(), "refresh token expiry must not count")
	})

	t.Run("expired access token", func(t *testing.T) {
		set := &Set{AccessToken: stale, IDToken: fresh}
		assert.True(t, set.Expired())
	})

	t.Run("expired id token", func(t *testing.T) {
		set := &Set{AccessToken: fresh, IDToken: stale}
		assert.True(t, set.Expired())
	})
}

func TestDecode(t *testing.T) {
	t.Run("extracts identity claims", func(t *testing.T) {
		raw := signToken(t, jwt.MapClaims{
			"sub":              "user-42",
			"email":            "grazier@example.com",
			"given_name":       "Alex",
			"family_name":      "Mason",
			"cognito:username": "alex.mason",
			"cognito:groups":   []string{"farmers"},
			"token_use":        "id",
			"exp":              time.Now().Add(time.Hour).Unix(),
		})

		claims, err := Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, "user-42", claims.Sub)
		assert.Equal(t, "grazier@example.com", claims.Email)
		assert.Equal(t, "Alex", claims.GivenName)
		assert.Equal(t, "Mason", claims.FamilyName)
		assert.Equal(t, "alex.mason", claims.Username)
		assert.Equal(t, []string{"farmers"}, claims.Groups)
		assert.Equal(t, "id", claims.TokenUse)
	})

	t.Run("malformed token", func(t *testing.T) {
		_, err := Decode("not-a-jwt")
		require.ErrorIs(t, err, ErrMalformed)
	})
}
