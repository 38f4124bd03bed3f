package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthTokenCmd_NoSecretConfiguredErrors(t *testing.T) {
	cmd := newAuthTokenCmd()
	err := cmd.RunE(cmd, []string{"client-a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT secret")
}

func TestAuthTokenCmd_MintsTokenWhenSecretConfigured(t *testing.T) {
	t.Setenv("BATCHQUEUE_AUTH_JWT_SECRET", "test-secret")

	cmd := newAuthTokenCmd()
	require.NoError(t, cmd.Flags().Set("roles", "admin,operator"))
	err := cmd.RunE(cmd, []string{"client-a"})
	assert.NoError(t, err)
}
