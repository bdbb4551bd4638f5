// Package cli — doctor.go implements the "superpose doctor" command.
//
// Doctor checks the health of an existing setup without modifying anything:
// manifest validity, catalog coherence, output-tree parseability, and an
// advisory container-runtime reachability probe. It never fixes; regen is
// the only writer.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/superpose/internal/catalog"
	"github.com/mmr-tortoise/superpose/internal/docker"
	"github.com/mmr-tortoise/superpose/internal/manifest"
	"github.com/mmr-tortoise/superpose/internal/model"
)

// doctorFlags holds the flag values for the doctor command.
type doctorFlags struct {
	manifestPath string // --from-manifest
	catalogDir   string // --catalog
}

// checkResult is one doctor finding. Level is "ok", "warn", or "fail";
// warnings never affect the exit code.
type checkResult struct {
	Name    string `json:"name"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// NewDoctorCommand creates the "doctor" cobra command.
func NewDoctorCommand() *cobra.Command {
	flags := &doctorFlags{}

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check manifest, catalog, and output tree health",
		Long: `Check the health of a generated configuration: the manifest parses and
every selected overlay still exists in the catalog, the generated artifacts
parse, and (advisory only) a container runtime is reachable.

Doctor only reports. Run "superpose regen" to repair a drifted tree.`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.manifestPath, "from-manifest", "",
		"Manifest path (default: <output>/"+manifest.FileName+")")
	cmd.Flags().StringVar(&flags.catalogDir, "catalog", "", "Catalog directory (default from config)")

	return cmd
}

func runDoctor(cmd *cobra.Command, flags *doctorFlags) error {
	manifestPath := flags.manifestPath
	if manifestPath == "" {
		manifestPath = filepath.Join(viper.GetString(configKeyOutput), manifest.FileName)
	}
	outputDir := filepath.Dir(manifestPath)

	var results []checkResult
	failed := false
	report := func(name, level, message string) {
		results = append(results, checkResult{Name: name, Level: level, Message: message})
		if level == "fail" {
			failed = true
		}
	}

	// Manifest: must load and validate. Without it nothing else is
	// checkable, so a failure here is terminal.
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}
	report("manifest", "ok", fmt.Sprintf("%s parses (schema v%d, template %q, %d overlays)",
		manifestPath, m.SchemaVersion, m.TemplateID, len(m.Overlays)))

	// Catalog coherence: every selected overlay must still exist, or the
	// next regen would fail (deliberately, rather than silently drifting).
	catalogDir := resolveConfig(cmd, "catalog", flags.catalogDir, configKeyCatalog)
	cat, err := catalog.Open(catalogDir)
	if err != nil {
		report("catalog", "fail", err.Error())
	} else {
		checkCatalog(cat, m, report)
	}

	checkOutputTree(outputDir, report)

	if m.PortOffset == 0 {
		report("port-offset", "warn",
			"portOffset is 0; overlay service ports keep their conventional defaults")
	}

	// Runtime reachability is advisory: generation never talks to a
	// daemon, so an unreachable one only matters when the user is about to
	// start the environment.
	checkDockerDaemon(cmd, report)

	printDoctorResults(results)
	if failed {
		return model.NewCLIError(model.ExitGeneralError, "doctor found problems")
	}
	return nil
}

func checkCatalog(cat *catalog.Catalog, m *model.Manifest, report func(name, level, message string)) {
	available, err := cat.ListOverlays()
	if err != nil {
		report("catalog", "fail", err.Error())
		return
	}
	missing := 0
	for _, id := range m.OverlayIDs() {
		if _, ok := available[id]; !ok {
			report("catalog", "fail", fmt.Sprintf("overlay %q is selected but not present in %s", id, cat.Dir()))
			missing++
		}
	}
	if _, err := cat.LoadTemplate(m.TemplateID); err != nil {
		report("catalog", "fail", fmt.Sprintf("template %q: %v", m.TemplateID, err))
		missing++
	}
	if missing == 0 {
		report("catalog", "ok", fmt.Sprintf("template and all %d overlays present in %s", len(m.Overlays), cat.Dir()))
	}
}

// checkOutputTree verifies the generated artifacts exist and parse.
func checkOutputTree(outputDir string, report func(name, level, message string)) {
	devPath := filepath.Join(outputDir, "devcontainer.json")
	data, err := os.ReadFile(devPath)
	switch {
	case err != nil:
		report("output", "fail", fmt.Sprintf("%s: %v (run `superpose regen`)", devPath, err))
	default:
		var doc map[string]any
		if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
			report("output", "fail", fmt.Sprintf("%s does not parse: %v", devPath, err))
		} else {
			report("output", "ok", devPath+" parses")
		}
	}

	composePath := filepath.Join(outputDir, "compose.yaml")
	if data, err := os.ReadFile(composePath); err == nil {
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			report("output", "fail", fmt.Sprintf("%s does not parse: %v", composePath, err))
		} else {
			report("output", "ok", composePath+" parses")
		}
	}
}

func checkDockerDaemon(cmd *cobra.Command, report func(name, level, message string)) {
	cli, err := docker.NewClient()
	if err != nil {
		report("docker", "warn", err.Error())
		return
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(cmd.Context()); err != nil {
		report("docker", "warn", err.Error())
		return
	}
	report("docker", "ok", "container runtime is reachable")
}

// printDoctorResults outputs the findings in text or JSON format.
func printDoctorResults(results []checkResult) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]any{"checks": results}, "", "  ")
		fmt.Println(string(data))
		return
	}
	for _, r := range results {
		marker := map[string]string{"ok": "✓", "warn": "!", "fail": "✗"}[r.Level]
		fmt.Printf("%s %-12s %s\n", marker, r.Name, r.Message)
	}
}
