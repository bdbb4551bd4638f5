package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validManifest() Manifest {
	return Manifest{
		SchemaVersion: ManifestSchemaVersion,
		TemplateID:    "web-service",
		Overlays:      []OverlayEntry{{ID: "go"}, {ID: "postgres"}},
		PortOffset:    100,
		Target:        TargetLocal,
	}
}

func TestManifestValidate(t *testing.T) {
	m := validManifest()
	assert.NoError(t, m.Validate())
}

func TestManifestValidate_UnsupportedSchemaVersion(t *testing.T) {
	m := validManifest()
	m.SchemaVersion = ManifestSchemaVersion + 1
	err := m.Validate()
	require.Error(t, err)
	assert.Equal(t, ExitSchemaError, ExitCodeFor(err))
}

func TestManifestValidate_EmptyTemplate(t *testing.T) {
	m := validManifest()
	m.TemplateID = ""
	assert.Error(t, m.Validate())
}

func TestManifestValidate_NegativeOffset(t *testing.T) {
	m := validManifest()
	m.PortOffset = -10
	assert.Error(t, m.Validate())
}

func TestManifestValidate_DuplicateOverlay(t *testing.T) {
	m := validManifest()
	m.Overlays = append(m.Overlays, OverlayEntry{ID: "go"})
	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"go"`)
}

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget("Codespaces")
	require.NoError(t, err)
	assert.Equal(t, TargetCodespaces, target)

	_, err = ParseTarget("cloud")
	assert.Error(t, err)
}

func TestValidateOverlayID(t *testing.T) {
	assert.NoError(t, ValidateOverlayID("postgres"))
	assert.NoError(t, ValidateOverlayID("node-18"))
	assert.NoError(t, ValidateOverlayID("x"))

	assert.Error(t, ValidateOverlayID(""))
	assert.Error(t, ValidateOverlayID("Postgres"))
	assert.Error(t, ValidateOverlayID("-redis"))
	assert.Error(t, ValidateOverlayID("redis-"))
	assert.Error(t, ValidateOverlayID("my overlay"))
	assert.Error(t, ValidateOverlayID(CustomFragmentID),
		"the custom fragment id is reserved")
}

func TestValidatePortDeclarations(t *testing.T) {
	assert.NoError(t, ValidatePortDeclarations([]PortDeclaration{
		{DeclaredPort: 5432, Protocol: "postgres"},
		{DeclaredPort: 5433},
	}, "postgres"))

	assert.Error(t, ValidatePortDeclarations([]PortDeclaration{{DeclaredPort: 0}}, "x"),
		"port below range should fail")
	assert.Error(t, ValidatePortDeclarations([]PortDeclaration{{DeclaredPort: 70000}}, "x"),
		"port above range should fail")
	assert.Error(t, ValidatePortDeclarations([]PortDeclaration{
		{DeclaredPort: 5432, Protocol: "gopher"},
	}, "x"), "unknown protocol should fail")
	assert.Error(t, ValidatePortDeclarations([]PortDeclaration{
		{DeclaredPort: 5432}, {DeclaredPort: 5432},
	}, "x"), "duplicate declared port should fail")
}

// TestExitCodeFor verifies every taxonomy error maps to its exit code,
// including through wrapping.
func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCodeFor(nil))
	assert.Equal(t, ExitGeneralError, ExitCodeFor(fmt.Errorf("plain")))
	assert.Equal(t, ExitSchemaError, ExitCodeFor(&SchemaError{Source: "x"}))
	assert.Equal(t, ExitConflictError, ExitCodeFor(&ConflictError{Path: "p"}))
	assert.Equal(t, ExitIOError, ExitCodeFor(&IOError{Op: "write"}))
	assert.Equal(t, ExitCustomPatchError, ExitCodeFor(&CustomPatchError{File: "f"}))
	assert.Equal(t, ExitManifestNotFound, ExitCodeFor(NewCLIError(ExitManifestNotFound, "missing")))

	wrapped := fmt.Errorf("context: %w", &SchemaError{Source: "x"})
	assert.Equal(t, ExitSchemaError, ExitCodeFor(wrapped), "exit code should survive wrapping")
}

func TestNormalizedPortString(t *testing.T) {
	p := NormalizedPort{
		OverlayID:    "postgres",
		ServiceName:  "postgres",
		DeclaredPort: 5432,
		ActualPort:   5532,
		Protocol:     "postgres",
	}
	assert.Equal(t, "postgres/postgres: 5432 → 5532/postgres", p.String())
}
