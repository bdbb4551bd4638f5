// Package cli implements the cobra-based CLI commands for superpose.
//
// Each subcommand (init, regen, doctor, list) is defined in its own file
// within this package. This file defines the root command that serves as the
// parent for all subcommands and handles global flags and configuration.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mmr-tortoise/superpose/internal/model"
)

// Global flag variables shared across all subcommands. These are bound to
// cobra persistent flags on the root command, which makes them available to
// every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	jsonOutput bool

	// verbose enables detailed logging output on stderr.
	verbose bool
)

// Version, Commit, and Date are set at build time via ldflags and injected
// from the main package.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Configuration keys resolved through viper. Each can come from a flag, the
// SUPERPOSE_* environment, or ~/.superpose.yaml, in that priority order.
const (
	configKeyCatalog    = "catalog"
	configKeyOutput     = "output"
	configKeyPortOffset = "port-offset"
)

// NewRootCommand creates and configures the root cobra command. The root
// command itself performs no action; functionality lives in the
// subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "superpose",
		Short: "Composable, reproducible dev container configuration",
		Long: `superpose composes a dev container configuration from a base template and
a set of overlays (language runtimes, databases, observability stacks, dev
tools), then keeps it reproducible: the selection is recorded in a manifest
and the generated tree can be regenerated byte-for-byte at any time.

Hand-written changes go in the custom directory, which is merged last and
survives every regeneration.`,

		// Errors are formatted by Execute (text or JSON based on --json),
		// so cobra's automatic output is silenced.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewRegenCommand())
	rootCmd.AddCommand(NewDoctorCommand())
	rootCmd.AddCommand(NewListCommand())

	return rootCmd
}

// initConfig wires viper: defaults, an optional ~/.superpose.yaml, and the
// SUPERPOSE_* environment. Flags still win because subcommands consult the
// flag value first when it was explicitly set.
func initConfig() {
	viper.SetDefault(configKeyCatalog, "catalog")
	viper.SetDefault(configKeyOutput, ".devcontainer")
	viper.SetDefault(configKeyPortOffset, 0)

	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigName(".superpose")
		viper.SetConfigType("yaml")
		// A missing config file is the normal case.
		_ = viper.ReadInConfig()
	}

	viper.SetEnvPrefix("SUPERPOSE")
	viper.AutomaticEnv()
}

// Execute runs the root command and translates errors into OS exit codes.
// This is the main entry point called from main.go.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(int(model.ExitCodeFor(err)))
	}
}

// printError outputs an error in the appropriate format (JSON or text)
// based on the --json global flag. Errors always go to stderr; stdout is
// reserved for successful command output.
func printError(err error) {
	if jsonOutput {
		errObj := map[string]any{
			"error": map[string]any{
				"message":  err.Error(),
				"exitCode": model.ExitCodeFor(err),
			},
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// VerboseLog prints a message to stderr only when verbose mode is enabled.
func VerboseLog(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput returns whether the --json flag is set. Subcommands use this
// to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}
