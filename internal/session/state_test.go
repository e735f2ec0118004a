package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldsense/waterline/internal/token"
)

func TestInitial(t *testing.T) {
	st := Initial()
	assert.True(t, st.Loading)
	assert.False(t, st.Authenticated)
	assert.Nil(t, st.User)
	assert.Nil(t, st.Tokens)
	assert.Empty(t, st.Err)
}

func TestApply(t *testing.T) {
	user := &User{Sub: "user-1", Email: "grazier@example.com"}
	tokens := &token.Set{AccessToken: "access", IDToken: "id", RefreshToken: "refresh"}

	t.Run("started sets loading and clears error", func(t *testing.T) {
		st := Apply(State{Err: "previous failure"}, Started{})
		assert.True(t, st.Loading)
		assert.Empty(t, st.Err)
	})

	t.Run("succeeded replaces identity wholesale", func(t *testing.T) {
		st := Apply(Initial(), Succeeded{User: user, Tokens: tokens})
		assert.True(t, st.Authenticated)
		assert.Equal(t, user, st.User)
		assert.Equal(t, tokens, st.Tokens)
		assert.False(t, st.Loading)
		assert.Empty(t, st.Err)
	})

	t.Run("succeeded with nil tokens in cookie mode", func(t *testing.T) {
		st := Apply(Initial(), Succeeded{User: user})
		assert.True(t, st.Authenticated)
		assert.Nil(t, st.Tokens)
	})

	t.Run("failed clears identity and records message", func(t *testing.T) {
		authed := Apply(Initial(), Succeeded{User: user, Tokens: tokens})
		st := Apply(authed, Failed{Message: "incorrect email or password"})
		assert.False(t, st.Authenticated)
		assert.Nil(t, st.User)
		assert.Nil(t, st.Tokens)
		assert.False(t, st.Loading)
		assert.Equal(t, "incorrect email or password", st.Err)
	})

	t.Run("silent failure leaves no message", func(t *testing.T) {
		st := Apply(Initial(), Failed{})
		assert.False(t, st.Authenticated)
		assert.Empty(t, st.Err)
		assert.False(t, st.Loading)
	})

	t.Run("logged out resets everything but keeps no error", func(t *testing.T) {
		authed := Apply(Initial(), Succeeded{User: user, Tokens: tokens})
		st := Apply(authed, LoggedOut{})
		assert.False(t, st.Authenticated)
		assert.Nil(t, st.User)
		assert.Nil(t, st.Tokens)
		assert.Empty(t, st.Err)
	})

	t.Run("error cleared preserves identity", func(t *testing.T) {
		st := State{Authenticated: true, User: user, Tokens: tokens, Err: "stale"}
		st = Apply(st, ErrorCleared{})
		assert.Empty(t, st.Err)
		assert.True(t, st.Authenticated)
		assert.Equal(t, user, st.User)
	})

	t.Run("completed ends loading without authenticating", func(t *testing.T) {
		st := Apply(Apply(Initial(), Started{}), Completed{})
		assert.False(t, st.Loading)
		assert.False(t, st.Authenticated)
		assert.Empty(t, st.Err)
	})

	t.Run("apply does not mutate its input", func(t *testing.T) {
		before := State{Err: "boom"}
		_ = Apply(before, ErrorCleared{})
		assert.Equal(t, "boom", before.Err)
	})
}
