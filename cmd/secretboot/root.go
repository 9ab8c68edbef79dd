package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	apperrors "github.com/vitudev/secretboot/internal/errors"
)

// Build information (set from main.go)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Global flags
var (
	configFile string
	logLevel   string
)

// logger is initialized once flags are parsed.
var logger *slog.Logger

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "secretboot",
	Short: "Secret-provisioning bootstrap for Vault-encrypted configuration",
	Long: `secretboot runs once before the main application process. It exchanges the
pod's Kubernetes service-account JWT for a short-lived Vault token, decrypts
the at-rest encrypted configuration blob through the configured backend, and
atomically writes the plaintext config file for the main process.

The supervisor chains it with the application launch:

  secretboot run && exec /app/server

Environment variables:
  JWT_PATH            Service-account token path
                      (default: /var/run/secrets/kubernetes.io/serviceaccount/token)
  VAULT_ADDR          Vault base URL (required for the vault backend)
  VAULT_ROLE          Kubernetes auth role (default: sops)
  VAULT_TRANSIT_MOUNT Transit mount for sops keys (default: sops)
  VAULT_TRANSIT_KEY   Transit key name (default: vitubot)
  DECRYPT_BACKEND     vault, awskms or local (default: vault)
  SOURCE_PATH         Encrypted config blob path (default: /vitubot/config.enc)
  OUTPUT_PATH         Decrypted config path (default: /vitubot/config)`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = newLogger(logLevel)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("secretboot %s\n", Version)
		fmt.Printf("  commit:     %s\n", Commit)
		fmt.Printf("  built:      %s\n", BuildTime)
		fmt.Printf("  go version: %s\n", runtime.Version())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (optional, env vars win)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(encryptCmd)
}

// Execute runs the root command and returns the process exit code. Failures
// carry a class-specific code so the supervisor can distinguish them.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	if logger == nil {
		logger = newLogger(logLevel)
	}

	ctx := rootCmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	classifier := apperrors.NewErrorClassifier(logger)

	var classified *apperrors.ClassifiedError
	if !errors.As(err, &classified) {
		// Failures before the runner starts (config load, wiring) carry the
		// sentinel taxonomy but no step yet. Classify them here so the exit
		// code stays category-specific.
		classified = classifier.Classify(err, "configure")
	}

	return classifier.LogFailure(ctx, classified)
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
