package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mmr-tortoise/superpose/internal/model"
)

// FileName is the manifest filename inside the output directory.
const FileName = "superposition.json"

// Path returns the manifest path within an output .devcontainer directory.
func Path(devcontainerDir string) string {
	return filepath.Join(devcontainerDir, FileName)
}

// Load reads and validates a manifest file.
//
// A missing file maps to ExitManifestNotFound so callers can distinguish
// "never initialized" from a corrupt manifest.
func Load(path string) (*model.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(
				model.ExitManifestNotFound,
				fmt.Sprintf("manifest not found: %s (run `superpose init` first)", path),
				err,
			)
		}
		return nil, &model.IOError{Op: "read", Path: path, Err: err}
	}

	var m model.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &model.SchemaError{
			Source:  "manifest",
			Path:    path,
			Message: fmt.Sprintf("invalid JSON: %v", err),
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes the manifest with 2-space indentation and a trailing
// newline, creating parent directories as needed.
func Save(path string, m *model.Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &model.IOError{Op: "write", Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &model.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// categoryRank orders overlay categories the way the init flow presents
// them: language runtimes first, then databases, observability stacks, and
// dev tools. Unknown categories sort last, alphabetically by id within
// each rank.
var categoryRank = map[string]int{
	"language":      0,
	"database":      1,
	"observability": 2,
	"tool":          3,
}

// SortOverlays orders manifest entries by (category rank, id). The order
// is total, so the same selection yields the same manifest regardless of
// flag order.
func SortOverlays(entries []model.OverlayEntry, categories map[string]string) {
	rank := func(id string) int {
		if r, ok := categoryRank[categories[id]]; ok {
			return r
		}
		return len(categoryRank)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		ri, rj := rank(entries[i].ID), rank(entries[j].ID)
		if ri != rj {
			return ri < rj
		}
		return entries[i].ID < entries[j].ID
	})
}
