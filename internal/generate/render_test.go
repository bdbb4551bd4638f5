package generate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/superpose/internal/model"
)

func TestInjectForwardPorts(t *testing.T) {
	doc := map[string]any{"forwardPorts": []any{int64(3000)}}
	injectForwardPorts(doc, []model.NormalizedPort{
		{OverlayID: "postgres", ActualPort: 5532, Protocol: "postgres", Label: "pg"},
		{OverlayID: "web", ActualPort: 3000, Protocol: "http"},
	})

	assert.Equal(t, []any{int64(3000), int64(5532)}, doc["forwardPorts"],
		"already-forwarded ports are not duplicated")

	attrs := doc["portsAttributes"].(map[string]any)
	assert.Equal(t, "pg", attrs["5532"].(map[string]any)["label"])
	assert.Equal(t, "http", attrs["3000"].(map[string]any)["protocol"])
}

func TestInjectForwardPorts_NoAllocations(t *testing.T) {
	doc := map[string]any{"name": "x"}
	injectForwardPorts(doc, nil)
	assert.NotContains(t, doc, "forwardPorts")
}

func TestRewriteShortSyntax(t *testing.T) {
	tests := []struct {
		entry   string
		want    string
		matched bool
	}{
		{"5432:5432", "5532:5432", true},
		{"5432", "5532:5432", true},
		{"127.0.0.1:5432:5432", "127.0.0.1:5532:5432", true},
		{"5432:5432/tcp", "5532:5432/tcp", true},
		// Custom host mapping for the same container port: untouched but
		// counted as a match so nothing extra is appended.
		{"9999:5432", "9999:5432", true},
		// Different container port: not this declaration's business.
		{"6379:6379", "", false},
		{"not-a-port", "", false},
	}
	for _, tt := range tests {
		got, ok := rewriteShortSyntax(tt.entry, 5432, 5532)
		assert.Equal(t, tt.matched, ok, "entry %q", tt.entry)
		if tt.matched {
			assert.Equal(t, tt.want, got, "entry %q", tt.entry)
		}
	}
}

func TestRewriteComposePorts_AppendsWhenMissing(t *testing.T) {
	doc := map[string]any{
		"services": map[string]any{
			"postgres": map[string]any{"image": "postgres:16"},
		},
	}
	rewriteComposePorts(doc, []model.NormalizedPort{
		{OverlayID: "postgres", ServiceName: "postgres", DeclaredPort: 5432, ActualPort: 5532, Protocol: "postgres"},
	})

	pg := doc["services"].(map[string]any)["postgres"].(map[string]any)
	assert.Equal(t, []any{"5532:5432"}, pg["ports"])
}

func TestRewriteComposePorts_LongSyntax(t *testing.T) {
	doc := map[string]any{
		"services": map[string]any{
			"web": map[string]any{
				"ports": []any{
					map[string]any{"target": int64(80), "published": int64(80), "protocol": "tcp"},
				},
			},
		},
	}
	rewriteComposePorts(doc, []model.NormalizedPort{
		{OverlayID: "web", ServiceName: "web", DeclaredPort: 80, ActualPort: 8180, Protocol: "http"},
	})

	ports := doc["services"].(map[string]any)["web"].(map[string]any)["ports"].([]any)
	entry := ports[0].(map[string]any)
	assert.Equal(t, int64(8180), entry["published"])
	assert.Equal(t, int64(80), entry["target"], "container side never changes")
}

func TestRewriteComposePorts_UnknownServiceSkipped(t *testing.T) {
	doc := map[string]any{
		"services": map[string]any{
			"app": map[string]any{"image": "app:dev"},
		},
	}
	rewriteComposePorts(doc, []model.NormalizedPort{
		{OverlayID: "postgres", ServiceName: "postgres", DeclaredPort: 5432, ActualPort: 5532},
	})

	assert.NotContains(t, doc["services"].(map[string]any), "postgres",
		"ports never create services out of thin air")
}

func TestRenderEnv_GroupsBySource(t *testing.T) {
	data := renderEnv([]model.EnvEntry{
		{Key: "GOFLAGS", Value: "-mod=mod", Source: "go"},
		{Key: "CGO_ENABLED", Value: "0", Source: "go"},
		{Key: "POSTGRES_USER", Value: "dev", Source: "postgres"},
	})

	want := "# Generated by superpose. DO NOT EDIT.\n" +
		"# Edit the custom directory and run `superpose regen` instead.\n" +
		"\n# go\nGOFLAGS=-mod=mod\nCGO_ENABLED=0\n" +
		"\n# postgres\nPOSTGRES_USER=dev\n"
	assert.Equal(t, want, string(data))
}

func TestRenderTree_AuxFilesCannotShadowArtifacts(t *testing.T) {
	merged := &model.MergedConfig{
		Devcontainer: map[string]any{"name": "x"},
		AuxFiles: []model.AuxFile{
			{Path: "devcontainer.json", Data: []byte("rogue")},
		},
	}
	m := &model.Manifest{
		SchemaVersion: model.ManifestSchemaVersion,
		TemplateID:    "t",
		Target:        model.TargetLocal,
	}

	files, err := renderTree(merged, m)
	require.NoError(t, err)

	// The generated artifact comes after the aux file, so it wins the
	// write order.
	var indices []int
	for i, f := range files {
		if f.Path == "devcontainer.json" {
			indices = append(indices, i)
		}
	}
	require.Len(t, indices, 2)
	assert.NotEqual(t, []byte("rogue"), files[indices[1]].Data)
}

func TestExpandEnvOptions(t *testing.T) {
	entries := []model.EnvEntry{
		{Key: "PG_VERSION", Value: "${option.version}", Source: "postgres"},
		{Key: "OTHER", Value: "${option.version}", Source: "redis"},
	}
	expandEnvOptions(entries, []model.OverlayFragment{
		{ID: "postgres", Options: map[string]string{"version": "16"}},
		{ID: "redis"},
	})

	assert.Equal(t, "16", entries[0].Value)
	assert.Equal(t, "${option.version}", entries[1].Value,
		"placeholders without a matching option pass through")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "merging", StateMerging.String())
	assert.Equal(t, "writing-output", StateWritingOutput.String())
	assert.Equal(t, "failed", StateFailed.String())
}
