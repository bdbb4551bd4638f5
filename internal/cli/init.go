// Package cli — init.go implements the "superpose init" command.
//
// The init command is the primary user-facing operation. It turns a
// template + overlay selection into a manifest, runs the full generation
// pipeline, and writes the composed .devcontainer tree.
//
// Orchestration steps:
//  1. Resolve catalog and output paths (flags > env > config file)
//  2. Validate the selection against the catalog
//  3. Build the manifest with a stable overlay order
//  4. Run the generation pipeline (merge, allocate, custom patches, write)
//  5. Output the summary (text or JSON)
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mmr-tortoise/superpose/internal/catalog"
	"github.com/mmr-tortoise/superpose/internal/generate"
	"github.com/mmr-tortoise/superpose/internal/manifest"
	"github.com/mmr-tortoise/superpose/internal/model"
)

// initFlags holds the flag values for the init command.
type initFlags struct {
	template      string   // --template: base template id
	stacks        []string // --stack: overlays of any category
	languages     []string // --language
	databases     []string // --database
	observability []string // --observability
	tools         []string // --tool
	options       []string // --option: <overlay>.<key>=<value>
	portOffset    int      // --port-offset
	target        string   // --target
	catalogDir    string   // --catalog
	outputDir     string   // --output
}

// NewInitCommand creates the "init" cobra command.
func NewInitCommand() *cobra.Command {
	flags := &initFlags{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Compose a dev container configuration from template and overlays",
		Long: `Compose a dev container configuration from a base template and a set of
catalog overlays, record the selection in superposition.json, and write the
generated tree to the output directory.

The category flags (--language, --database, --observability, --tool) and the
generic --stack flag all select overlays by id; the categories only control
ordering and reporting.

Examples:
  superpose init --template web-service --language go --database postgres
  superpose init --template web-service --database postgres --database redis --port-offset 100
  superpose init --template web-service --stack go --stack postgres --option postgres.version=16`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.template, "template", "", "Base template id (required)")
	cmd.Flags().StringArrayVar(&flags.stacks, "stack", nil, "Overlay id to apply (repeatable, any category)")
	cmd.Flags().StringArrayVar(&flags.languages, "language", nil, "Language overlay id (repeatable)")
	cmd.Flags().StringArrayVar(&flags.databases, "database", nil, "Database overlay id (repeatable)")
	cmd.Flags().StringArrayVar(&flags.observability, "observability", nil, "Observability overlay id (repeatable)")
	cmd.Flags().StringArrayVar(&flags.tools, "tool", nil, "Dev tool overlay id (repeatable)")
	cmd.Flags().StringArrayVar(&flags.options, "option", nil, "Overlay option as <overlay>.<key>=<value> (repeatable)")
	cmd.Flags().IntVar(&flags.portOffset, "port-offset", 0, "Global offset added to every declared overlay port")
	cmd.Flags().StringVar(&flags.target, "target", "local", "Target host: local, codespaces, remote")
	cmd.Flags().StringVar(&flags.catalogDir, "catalog", "", "Catalog directory (default from config)")
	cmd.Flags().StringVar(&flags.outputDir, "output", "", "Output directory (default from config)")
	_ = cmd.MarkFlagRequired("template")

	return cmd
}

// runInit is the main orchestration function for the init command.
func runInit(cmd *cobra.Command, flags *initFlags) error {
	catalogDir := resolveConfig(cmd, "catalog", flags.catalogDir, configKeyCatalog)
	outputDir := resolveConfig(cmd, "output", flags.outputDir, configKeyOutput)
	portOffset := flags.portOffset
	if !cmd.Flags().Changed("port-offset") {
		portOffset = viper.GetInt(configKeyPortOffset)
	}

	target, err := model.ParseTarget(flags.target)
	if err != nil {
		return model.WrapCLIError(model.ExitSchemaError, "invalid --target", err)
	}

	cat, err := catalog.Open(catalogDir)
	if err != nil {
		return err
	}
	VerboseLog("Catalog: %s", cat.Dir())

	options, err := parseOptions(flags.options)
	if err != nil {
		return err
	}

	// Order is not the user's flag order: entries are sorted by category
	// then id so the same selection always produces the same manifest.
	var entries []model.OverlayEntry
	for _, id := range collectSelection(flags) {
		entries = append(entries, model.OverlayEntry{ID: id, Options: options[id]})
	}
	categories, err := cat.Categories()
	if err != nil {
		return err
	}
	manifest.SortOverlays(entries, categories)

	m := &model.Manifest{
		SchemaVersion: model.ManifestSchemaVersion,
		TemplateID:    flags.template,
		Overlays:      entries,
		PortOffset:    portOffset,
		Target:        target,
	}
	if err := m.Validate(); err != nil {
		return err
	}

	ctrl := generate.New(generate.Config{
		Catalog:   cat,
		OutputDir: outputDir,
		Logf:      VerboseLog,
	})
	summary, err := ctrl.Generate(m)
	if err != nil {
		return err
	}

	printSummary(summary)
	return nil
}

// resolveConfig picks the flag value when explicitly set, falling back to
// the viper-resolved default (env var or config file).
func resolveConfig(cmd *cobra.Command, flagName, flagValue, configKey string) string {
	if cmd.Flags().Changed(flagName) {
		return flagValue
	}
	return viper.GetString(configKey)
}

// collectSelection flattens the category flags into one ordered id list.
// Flag order within and across categories does not matter; the manifest
// sort decides the final order.
func collectSelection(flags *initFlags) []string {
	var ids []string
	ids = append(ids, flags.languages...)
	ids = append(ids, flags.databases...)
	ids = append(ids, flags.observability...)
	ids = append(ids, flags.tools...)
	ids = append(ids, flags.stacks...)
	return ids
}

// parseOptions parses repeated --option flags of the form
// <overlay>.<key>=<value> into a per-overlay map.
func parseOptions(raw []string) (map[string]map[string]string, error) {
	options := make(map[string]map[string]string)
	for _, opt := range raw {
		keyPart, value, ok := strings.Cut(opt, "=")
		if !ok {
			return nil, model.NewCLIError(model.ExitSchemaError,
				fmt.Sprintf("invalid --option %q: expected <overlay>.<key>=<value>", opt))
		}
		overlay, key, ok := strings.Cut(keyPart, ".")
		if !ok || overlay == "" || key == "" {
			return nil, model.NewCLIError(model.ExitSchemaError,
				fmt.Sprintf("invalid --option %q: expected <overlay>.<key>=<value>", opt))
		}
		if options[overlay] == nil {
			options[overlay] = make(map[string]string)
		}
		options[overlay][key] = value
	}
	return options, nil
}
