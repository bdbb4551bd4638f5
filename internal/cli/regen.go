// Package cli — regen.go implements the "superpose regen" command.
//
// Regen reloads the persisted manifest and re-runs the full pipeline.
// With an unchanged catalog and custom directory the output is
// byte-identical to the previous generation; catalog updates flow in while
// custom patches keep winning their conflicts.
package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mmr-tortoise/superpose/internal/catalog"
	"github.com/mmr-tortoise/superpose/internal/generate"
	"github.com/mmr-tortoise/superpose/internal/manifest"
)

// regenFlags holds the flag values for the regen command.
type regenFlags struct {
	manifestPath string // --from-manifest: manifest file location
	catalogDir   string // --catalog
}

// NewRegenCommand creates the "regen" cobra command.
func NewRegenCommand() *cobra.Command {
	flags := &regenFlags{}

	cmd := &cobra.Command{
		Use:   "regen",
		Short: "Regenerate the configuration from the recorded manifest",
		Long: `Regenerate the dev container configuration from superposition.json.

The previous output tree is backed up to a timestamped sibling directory
before writing; a write failure restores it. Custom patches are re-applied
last, so hand-written overrides survive.

Examples:
  superpose regen
  superpose regen --from-manifest build/.devcontainer/superposition.json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegen(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.manifestPath, "from-manifest", "",
		"Manifest path (default: <output>/"+manifest.FileName+")")
	cmd.Flags().StringVar(&flags.catalogDir, "catalog", "", "Catalog directory (default from config)")

	return cmd
}

func runRegen(cmd *cobra.Command, flags *regenFlags) error {
	catalogDir := resolveConfig(cmd, "catalog", flags.catalogDir, configKeyCatalog)

	manifestPath := flags.manifestPath
	if manifestPath == "" {
		manifestPath = filepath.Join(viper.GetString(configKeyOutput), manifest.FileName)
	}
	VerboseLog("Manifest: %s", manifestPath)

	cat, err := catalog.Open(catalogDir)
	if err != nil {
		return err
	}

	ctrl := generate.New(generate.Config{
		Catalog: cat,
		Logf:    VerboseLog,
	})
	summary, err := ctrl.Regenerate(manifestPath)
	if err != nil {
		return err
	}

	printSummary(summary)
	return nil
}
