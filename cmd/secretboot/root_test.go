package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/vitudev/secretboot/internal/errors"
)

// TestExecute_ConfigurationFailureExitCode verifies that a failure before the
// runner starts still exits with the class-specific code: a missing
// VAULT_ADDR must surface as a configuration failure, not a generic one.
func TestExecute_ConfigurationFailureExitCode(t *testing.T) {
	t.Setenv("VAULT_ADDR", "")
	t.Setenv("DECRYPT_BACKEND", "vault")

	rootCmd.SetArgs([]string{"run"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	code := Execute()
	assert.Equal(t, apperrors.ExitConfiguration, code)
}

// TestExecute_VersionSucceeds verifies the happy path exits zero.
func TestExecute_VersionSucceeds(t *testing.T) {
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	assert.Equal(t, 0, Execute())
}
