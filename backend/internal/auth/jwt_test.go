package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParse(t *testing.T) {
	s := NewSigner("secret")
	token, exp, err := s.Sign(7, "mapper", TypeAccess, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Second)

	claims, err := s.ParseEditor(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), claims.UserID)
	assert.Equal(t, "mapper", claims.Username)
}

func TestParseRejects(t *testing.T) {
	s := NewSigner("secret")

	expired, _, err := s.Sign(1, "a", TypeAccess, -time.Minute)
	require.NoError(t, err)
	_, err = s.Parse(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	other, _, err := NewSigner("other").Sign(1, "a", TypeAccess, time.Hour)
	require.NoError(t, err)
	_, err = s.Parse(other)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	refresh, _, err := s.Sign(1, "a", "refresh", time.Hour)
	require.NoError(t, err)
	_, err = s.ParseEditor(refresh)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}
