package wiring_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitudev/secretboot/internal/bootstrap"
	apperrors "github.com/vitudev/secretboot/internal/errors"
	infraconfig "github.com/vitudev/secretboot/internal/infra/config"
	"github.com/vitudev/secretboot/internal/wiring"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func localConfig(t *testing.T) *infraconfig.Config {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	dir := t.TempDir()
	return &infraconfig.Config{
		StepTimeout: 5 * time.Second,
		JWT:         infraconfig.JWTConfig{Path: filepath.Join(dir, "token")},
		Vault:       infraconfig.VaultConfig{Role: "sops", AuthMount: "kubernetes", TransitMount: "sops", TransitKey: "vitubot", Timeout: 5 * time.Second},
		Decrypt:     infraconfig.DecryptConfig{Backend: infraconfig.BackendLocal},
		Source:      infraconfig.SourceConfig{Type: infraconfig.SourceFile, Path: filepath.Join(dir, "config.enc")},
		Output:      infraconfig.OutputConfig{Path: filepath.Join(dir, "config")},
		Local:       infraconfig.LocalConfig{MasterKey: base64.StdEncoding.EncodeToString(key)},
	}
}

// TestBuildRunner_LocalEndToEnd encrypts a plaintext config with the local
// backend, then runs the full bootstrap and checks the output reproduces it.
func TestBuildRunner_LocalEndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := localConfig(t)
	plaintext := []byte("db_host=127.0.0.1\n")

	backend, err := wiring.BuildBackend(ctx, cfg, testLogger())
	require.NoError(t, err)

	env, err := backend.Encrypt(ctx, plaintext)
	require.NoError(t, err)
	encoded, err := env.Encode()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfg.Source.Path, encoded, 0o600))

	runner, err := wiring.BuildRunner(ctx, cfg, testLogger())
	require.NoError(t, err)
	require.Nil(t, runner.Run(ctx))
	assert.Equal(t, bootstrap.StateDone, runner.State())

	got, err := os.ReadFile(cfg.Output.Path)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

// TestBuildBackend_Unknown verifies an unsupported backend is refused.
func TestBuildBackend_Unknown(t *testing.T) {
	cfg := localConfig(t)
	cfg.Decrypt.Backend = "pgp"

	_, err := wiring.BuildBackend(context.Background(), cfg, testLogger())
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
}

// TestBuildRunner_UnknownSource verifies an unsupported source is refused.
func TestBuildRunner_UnknownSource(t *testing.T) {
	cfg := localConfig(t)
	cfg.Source.Type = "ftp"

	_, err := wiring.BuildRunner(context.Background(), cfg, testLogger())
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
}

// TestBuildBackend_LocalBadKey verifies master key errors surface at build
// time, not at decrypt time.
func TestBuildBackend_LocalBadKey(t *testing.T) {
	cfg := localConfig(t)
	cfg.Local.MasterKey = "not base64!!!"

	_, err := wiring.BuildBackend(context.Background(), cfg, testLogger())
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
}
