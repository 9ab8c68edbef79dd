package main

import (
	"github.com/spf13/cobra"

	infraconfig "github.com/vitudev/secretboot/internal/infra/config"
	"github.com/vitudev/secretboot/internal/wiring"
)

// runCmd executes the bootstrap sequence once and exits. The supervisor
// launches the main process only when this succeeds.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Acquire a Vault token, decrypt the config blob, write the plaintext config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := infraconfig.Load(configFile)
		if err != nil {
			return err
		}

		runner, err := wiring.BuildRunner(ctx, cfg, logger)
		if err != nil {
			return err
		}

		if classified := runner.Run(ctx); classified != nil {
			return classified
		}

		return nil
	},
}
