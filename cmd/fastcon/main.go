// Gray Logic Fastcon - BLE mesh lighting bridge
//
// This is the main entry point for the Fastcon bridge. It drives Fastcon
// (BRMesh) lights by broadcasting encrypted BLE advertisements, one command
// at a time, and exposes the mesh over MQTT and a REST API.
//
// Subcommands:
//   - run: start the bridge (default)
//   - encode / decode: offline packet tools
//   - console: interactive control of a running bridge over MQTT
//   - hash-secret: hash an API client secret for the config file
//   - version: print build information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C or SIGTERM so run() can shut down cleanly
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. A fresh tree per call keeps tests
// independent of each other's flags.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "fastcon",
		Short:         "Gray Logic Fastcon BLE mesh bridge",
		Long:          "Drives Fastcon BLE mesh lights and bridges them to MQTT and a REST API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $GRAYLOGIC_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the bridge",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), resolveConfigPath(configPath))
			},
		},
		newEncodeCmd(),
		newDecodeCmd(),
		newConsoleCmd(&configPath),
		newHashSecretCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "fastcon %s (commit %s, built %s)\n", version, commit, date)
			},
		},
	)
	return root
}

// resolveConfigPath prefers the flag, then GRAYLOGIC_CONFIG, then the default.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
