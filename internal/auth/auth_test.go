package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activityhub/pkg/types"
)

const testSecret = "test-secret"

func TestHMACVerifier_RoundTrip(t *testing.T) {
	token, err := Sign(testSecret, Identity{UserID: "admin-1", Name: "Ada", Role: types.RoleAdmin}, time.Minute)
	require.NoError(t, err)

	id, err := NewHMACVerifier(testSecret).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", id.UserID)
	assert.Equal(t, "Ada", id.Name)
	assert.Equal(t, types.RoleAdmin, id.Role)
	assert.True(t, id.IsAdmin())
}

func TestHMACVerifier_EmptyToken(t *testing.T) {
	_, err := NewHMACVerifier(testSecret).Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHMACVerifier_WrongSecret(t *testing.T) {
	token, err := Sign("other-secret", Identity{UserID: "u1", Role: types.RoleCustomer}, time.Minute)
	require.NoError(t, err)

	_, err = NewHMACVerifier(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHMACVerifier_ExpiredToken(t *testing.T) {
	token, err := Sign(testSecret, Identity{UserID: "u1", Role: types.RoleCustomer}, -time.Minute)
	require.NoError(t, err)

	_, err = NewHMACVerifier(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHMACVerifier_UnknownRole(t *testing.T) {
	token, err := Sign(testSecret, Identity{UserID: "u1", Role: "root"}, time.Minute)
	require.NoError(t, err)

	_, err = NewHMACVerifier(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrMissingClaims)
}

func TestHMACVerifier_GarbageToken(t *testing.T) {
	_, err := NewHMACVerifier(testSecret).Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentity_IsAdmin(t *testing.T) {
	assert.True(t, Identity{Role: types.RoleAdmin}.IsAdmin())
	assert.False(t, Identity{Role: types.RoleCustomer}.IsAdmin())
	assert.False(t, Identity{}.IsAdmin())
}
