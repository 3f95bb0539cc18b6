package auth

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := NewToken(42, "test-secret", 30*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := ParseToken(token, "test-secret")
	require.NoError(t, err)
	require.EqualValues(t, 42, userID)
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := NewToken(42, "test-secret", 30*time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "other-secret")
	require.True(t, errors.Is(err, ErrInvalidToken))
}

func TestParseTokenExpired(t *testing.T) {
	token, err := NewToken(42, "test-secret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "test-secret")
	require.True(t, errors.Is(err, ErrInvalidToken))
}

func TestParseTokenGarbage(t *testing.T) {
	_, err := ParseToken("not.a.token", "test-secret")
	require.True(t, errors.Is(err, ErrInvalidToken))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cretpass")
	require.NoError(t, err)
	require.NotEqual(t, "s3cretpass", hash)

	require.True(t, CheckPassword(hash, "s3cretpass"))
	require.False(t, CheckPassword(hash, "wrongpass"))
}
