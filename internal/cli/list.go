// Package cli — list.go implements the "superpose list" command.
//
// The list command displays the overlays available in the catalog, grouped
// by category, as a text table or JSON array depending on the --json flag.
// An optional --category flag filters the output.
package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/superpose/internal/catalog"
	"github.com/mmr-tortoise/superpose/internal/model"
)

// listFlags holds the flag values for the list command.
type listFlags struct {
	// category filters overlays by category ("all" shows everything).
	category   string
	catalogDir string
}

// NewListCommand creates the "list" cobra command.
func NewListCommand() *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available catalog overlays",
		Long: `List the overlays available in the catalog with their category and
declared service ports.

Examples:
  superpose list
  superpose list --category database
  superpose list --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.category, "category", "all",
		"Filter by category: language, database, observability, tool, all")
	cmd.Flags().StringVar(&flags.catalogDir, "catalog", "", "Catalog directory (default from config)")

	return cmd
}

// listEntry pairs an overlay id with its metadata for sorting and output.
type listEntry struct {
	ID       string                  `json:"id"`
	Name     string                  `json:"name"`
	Category string                  `json:"category"`
	Ports    []model.PortDeclaration `json:"ports,omitempty"`
}

func runList(cmd *cobra.Command, flags *listFlags) error {
	catalogDir := resolveConfig(cmd, "catalog", flags.catalogDir, configKeyCatalog)
	cat, err := catalog.Open(catalogDir)
	if err != nil {
		return err
	}

	available, err := cat.ListOverlays()
	if err != nil {
		return err
	}

	entries := make([]listEntry, 0, len(available))
	for id, meta := range available {
		if flags.category != "all" && meta.Category != flags.category {
			continue
		}
		entries = append(entries, listEntry{
			ID:       id,
			Name:     meta.Name,
			Category: meta.Category,
			Ports:    meta.Ports,
		})
	}

	// Category then id, matching the manifest's overlay order.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Category != entries[j].Category {
			return entries[i].Category < entries[j].Category
		}
		return entries[i].ID < entries[j].ID
	})

	printListResult(entries)
	return nil
}

// printListResult outputs the overlay list in text or JSON format.
func printListResult(entries []listEntry) {
	if IsJSONOutput() {
		// An empty slice renders as [] instead of null.
		result := map[string]any{"overlays": entries}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(entries) == 0 {
		fmt.Println("No overlays found.")
		return
	}

	fmt.Printf("%-16s %-14s %-10s %s\n", "ID", "CATEGORY", "PORTS", "NAME")
	for _, e := range entries {
		fmt.Printf("%-16s %-14s %-10s %s\n", e.ID, e.Category, FormatPortsList(e.Ports), e.Name)
	}
}

// FormatPortsList converts declared ports into a comma-separated string of
// port numbers, sorted numerically. Returns "-" when none are declared.
//
// Example:
//
//	[{Port: 6379}, {Port: 5432}] → "5432,6379"
//	[]                           → "-"
func FormatPortsList(decls []model.PortDeclaration) string {
	if len(decls) == 0 {
		return "-"
	}

	nums := make([]int, 0, len(decls))
	for _, d := range decls {
		nums = append(nums, d.DeclaredPort)
	}
	sort.Ints(nums)

	ports := make([]string, 0, len(nums))
	for _, p := range nums {
		ports = append(ports, strconv.Itoa(p))
	}
	return strings.Join(ports, ",")
}
