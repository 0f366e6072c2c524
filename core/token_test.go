package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken(t *testing.T) {
	secret := []byte("secret")
	user := UserWithoutSecrets{
		ID:       7,
		Username: "username",
		Role:     RoleModerator,
	}
	t.Run("valid token", func(t *testing.T) {
		before := time.Now()
		token, expiresAt, err := NewToken(user, time.Hour, secret)
		require.Nil(t, err)
		require.NotEmpty(t, token)
		require.False(t, expiresAt.Before(before.Add(time.Hour)))
		// verify token
		claims, err := VerifyToken(token, secret)
		require.Nil(t, err)
		assert.Equal(t, user.Username, claims.Username)
		p, err := claims.Principal()
		require.NoError(t, err)
		assert.Equal(t, Principal{ID: 7, Role: RoleModerator}, p)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := NewToken(user, time.Hour, secret)
		require.NoError(t, err)
		_, err = VerifyToken(token, []byte("other"))
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("expired token", func(t *testing.T) {
		token, _, err := NewToken(user, -time.Minute, secret)
		require.NoError(t, err)
		_, err = VerifyToken(token, secret)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("malformed token", func(t *testing.T) {
		_, err := VerifyToken("not-a-token", secret)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}
