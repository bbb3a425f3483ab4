package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freeeve/banditlab/internal/auth"
)

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	out := execute(t, "token", "--client", "ci", "--scope", "runs:read,runs:write")

	claims, err := auth.NewJWTManager("cli-secret").ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ci", claims.Subject)
	assert.True(t, claims.HasScope(auth.ScopeRun))
	assert.True(t, claims.HasScope(auth.ScopeRead))
}

func TestTokenRejectsUnknownScope(t *testing.T) {
	rootCmd.SetArgs([]string{"token", "--client", "ci", "--scope", "admin"})
	assert.Error(t, rootCmd.Execute())
	tokenScopes = []string{auth.ScopeRead}
}
