package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/otc-settlement/internal/auth"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc := auth.NewService("test-secret")
	svc.RegisterAPICredentials("key-1", "secret-1", "alice-addr")

	token, err := svc.GenerateToken(auth.Credentials{APIKey: "key-1", APISecret: "secret-1"})
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)

	claims, err := svc.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice-addr", claims.Address)
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	svc := auth.NewService("test-secret")
	svc.RegisterAPICredentials("key-1", "secret-1", "alice-addr")

	_, err := svc.GenerateToken(auth.Credentials{APIKey: "key-1", APISecret: "wrong"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.GenerateToken(auth.Credentials{APIKey: "unknown", APISecret: "secret-1"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	svc := auth.NewService("test-secret")
	svc.RegisterAPICredentials("key-1", "secret-1", "alice-addr")

	token, err := svc.GenerateToken(auth.Credentials{APIKey: "key-1", APISecret: "secret-1"})
	require.NoError(t, err)

	other := auth.NewService("different-secret")
	_, err = other.ValidateToken(token.Token)
	assert.Error(t, err)
}
