package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	apperrors "github.com/vitudev/secretboot/internal/errors"
	infraconfig "github.com/vitudev/secretboot/internal/infra/config"
	"github.com/vitudev/secretboot/internal/wiring"
	"github.com/vitudev/secretboot/pkg/memory"
)

var (
	encryptIn  string
	encryptOut string
)

// encryptCmd is the out-of-band workflow that produces the encrypted config
// blob consumed by `secretboot run`.
var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt a plaintext config file into the envelope format",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := infraconfig.Load(configFile)
		if err != nil {
			return err
		}

		out := encryptOut
		if out == "" {
			out = cfg.Source.Path
		}

		if err := encryptFile(cmd.Context(), cfg, encryptIn, out); err != nil {
			return err
		}

		fmt.Printf("encrypted %s -> %s (backend: %s)\n", encryptIn, out, cfg.Decrypt.Backend)
		return nil
	},
}

func init() {
	encryptCmd.Flags().StringVar(&encryptIn, "in", "", "plaintext config file to encrypt (required)")
	encryptCmd.Flags().StringVar(&encryptOut, "out", "", "envelope output path (default: the configured source path)")
	_ = encryptCmd.MarkFlagRequired("in")
}

// encryptFile reads a plaintext config, encrypts it with the configured
// backend and writes the envelope. The plaintext buffer is wiped afterwards.
func encryptFile(ctx context.Context, cfg *infraconfig.Config, in, out string) error {
	plaintext, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("%w: cannot read plaintext config at %s: %w", apperrors.ErrConfiguration, in, err)
	}
	defer memory.Wipe(plaintext)

	backend, err := wiring.BuildBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if err := backend.Login(ctx); err != nil {
		return err
	}

	env, err := backend.Encrypt(ctx, plaintext)
	if err != nil {
		return err
	}

	encoded, err := env.Encode()
	if err != nil {
		return err
	}

	if err := os.WriteFile(out, encoded, 0o600); err != nil {
		return fmt.Errorf("%w: cannot write envelope to %s: %w", apperrors.ErrIO, out, err)
	}

	return nil
}
