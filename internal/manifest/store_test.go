package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/superpose/internal/model"
)

func testManifest() *model.Manifest {
	return &model.Manifest{
		SchemaVersion: model.ManifestSchemaVersion,
		TemplateID:    "web-service",
		Overlays: []model.OverlayEntry{
			{ID: "go"},
			{ID: "postgres", Options: map[string]string{"version": "16"}},
		},
		PortOffset:  100,
		Target:      model.TargetLocal,
		GeneratedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".devcontainer", FileName)

	want := testManifest()
	require.NoError(t, Save(path, want), "save should create parent directories")

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want.TemplateID, got.TemplateID)
	assert.Equal(t, want.Overlays, got.Overlays)
	assert.Equal(t, want.PortOffset, got.PortOffset)
	assert.Equal(t, want.Target, got.Target)
}

func TestSaveWritesTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, Save(path, testManifest()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1], "manifest file should end with a newline")
}

func TestLoadMissingManifest(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	require.Error(t, err)
	assert.Equal(t, model.ExitManifestNotFound, model.ExitCodeFor(err))
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	var schemaErr *model.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestLoadRejectsUnsupportedSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"schemaVersion": 99, "templateId": "x", "target": "local"}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestSortOverlays(t *testing.T) {
	entries := []model.OverlayEntry{
		{ID: "prometheus"},
		{ID: "redis"},
		{ID: "go"},
		{ID: "direnv"},
		{ID: "postgres"},
	}
	categories := map[string]string{
		"go":         "language",
		"postgres":   "database",
		"redis":      "database",
		"prometheus": "observability",
		"direnv":     "tool",
	}

	SortOverlays(entries, categories)

	got := make([]string, len(entries))
	for i, e := range entries {
		got[i] = e.ID
	}
	assert.Equal(t, []string{"go", "postgres", "redis", "prometheus", "direnv"}, got)
}

func TestSortOverlaysUnknownCategoryLast(t *testing.T) {
	entries := []model.OverlayEntry{
		{ID: "mystery"},
		{ID: "go"},
	}
	SortOverlays(entries, map[string]string{"go": "language"})
	assert.Equal(t, "go", entries[0].ID)
	assert.Equal(t, "mystery", entries[1].ID)
}
