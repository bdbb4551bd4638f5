// Package cli — summary.go renders the generation summary shared by the
// init and regen commands.
package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mmr-tortoise/superpose/internal/model"
)

// printSummary outputs the generation summary in text or JSON format,
// depending on the global --json flag.
func printSummary(summary *model.GenerationSummary) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(data))
		return
	}
	printSummaryText(summary)
}

// printSummaryText outputs the summary as human-readable text:
//
//	Generated .devcontainer from template "web-service"
//	  Overlays:  go, postgres, redis
//	  Ports:
//	    postgres/postgres: 5432 → 5532/postgres  (postgresql://localhost:5532/postgres)
//	  Files:     devcontainer.json, compose.yaml, .env, superposition.json
func printSummaryText(summary *model.GenerationSummary) {
	fmt.Printf("Generated %s from template %q\n", summary.OutputDir, summary.TemplateID)
	if len(summary.Overlays) > 0 {
		fmt.Printf("  Overlays:  %s\n", strings.Join(summary.Overlays, ", "))
	}

	if len(summary.Ports) > 0 {
		fmt.Println("  Ports:")
		for i := range summary.Ports {
			p := &summary.Ports[i]
			line := fmt.Sprintf("    %s", p.String())
			if addr := portAddress(p); addr != "" {
				line += "  (" + addr + ")"
			}
			fmt.Println(line)
		}
	}

	if len(summary.Files) > 0 {
		fmt.Printf("  Files:     %s\n", strings.Join(summary.Files, ", "))
	}
	if summary.BackupDir != "" {
		fmt.Printf("  Backup:    %s\n", summary.BackupDir)
	}
	for _, w := range summary.Warnings {
		fmt.Printf("  Warning:   %s\n", w)
	}
}

// portAddress picks the most useful derived address for display: the URL
// for web ports, the connection string for everything else.
func portAddress(p *model.NormalizedPort) string {
	if p.URL != "" {
		return p.URL
	}
	return p.ConnectionString
}
