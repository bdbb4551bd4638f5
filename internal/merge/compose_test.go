package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/superpose/internal/model"
)

func serviceFrag(id string, services map[string]any) model.OverlayFragment {
	return model.OverlayFragment{
		ID:              id,
		ServiceFragment: map[string]any{"services": services},
	}
}

// TestMerge_ComposeServicesByName verifies service maps merge per service
// name: distinct services coexist, same-name services deep-merge.
func TestMerge_ComposeServicesByName(t *testing.T) {
	merged, err := NewEngine().Merge([]model.OverlayFragment{
		serviceFrag("postgres", map[string]any{
			"postgres": map[string]any{
				"image":       "postgres:16",
				"environment": map[string]any{"POSTGRES_USER": "dev"},
			},
		}),
		serviceFrag("redis", map[string]any{
			"redis": map[string]any{"image": "redis:7"},
		}),
		serviceFrag("tuning", map[string]any{
			"postgres": map[string]any{
				"environment": map[string]any{"POSTGRES_MAX_CONNECTIONS": "200"},
			},
		}),
	})
	require.NoError(t, err)

	services := merged.Compose["services"].(map[string]any)
	require.Len(t, services, 2)

	pg := services["postgres"].(map[string]any)
	assert.Equal(t, "postgres:16", pg["image"])
	env := pg["environment"].(map[string]any)
	assert.Equal(t, "dev", env["POSTGRES_USER"], "environment blocks merge as maps")
	assert.Equal(t, "200", env["POSTGRES_MAX_CONNECTIONS"])
}

// TestMerge_ComposeVolumesByTarget verifies long-syntax volume objects
// sharing a mount target deep-merge instead of duplicating, while string
// short-syntax volumes keep plain list semantics.
func TestMerge_ComposeVolumesByTarget(t *testing.T) {
	merged, err := NewEngine().Merge([]model.OverlayFragment{
		serviceFrag("postgres", map[string]any{
			"postgres": map[string]any{
				"volumes": []any{
					map[string]any{"type": "volume", "source": "data", "target": "/var/lib/data"},
				},
			},
		}),
		serviceFrag("tuning", map[string]any{
			"postgres": map[string]any{
				"volumes": []any{
					map[string]any{"target": "/var/lib/data", "read_only": true},
					map[string]any{"type": "bind", "source": "./conf", "target": "/etc/conf"},
				},
			},
		}),
	})
	require.NoError(t, err)

	pg := merged.Compose["services"].(map[string]any)["postgres"].(map[string]any)
	volumes := pg["volumes"].([]any)
	require.Len(t, volumes, 2, "same target should merge, new target should append")

	data := volumes[0].(map[string]any)
	assert.Equal(t, "data", data["source"], "earlier fields survive the keyed merge")
	assert.Equal(t, true, data["read_only"], "later fields join the same entry")

	conf := volumes[1].(map[string]any)
	assert.Equal(t, "/etc/conf", conf["target"])
}

// TestMerge_ComposeVolumesShortSyntaxStaysList verifies string volume
// entries concatenate with first-seen dedupe.
func TestMerge_ComposeVolumesShortSyntaxStaysList(t *testing.T) {
	merged, err := NewEngine().Merge([]model.OverlayFragment{
		serviceFrag("a", map[string]any{
			"app": map[string]any{"volumes": []any{"data:/var/lib/data"}},
		}),
		serviceFrag("b", map[string]any{
			"app": map[string]any{"volumes": []any{"data:/var/lib/data", "./conf:/etc/conf"}},
		}),
	})
	require.NoError(t, err)

	app := merged.Compose["services"].(map[string]any)["app"].(map[string]any)
	assert.Equal(t, []any{"data:/var/lib/data", "./conf:/etc/conf"}, app["volumes"])
}

// TestMerge_HostPortConflictAcrossOverlays verifies two different overlays
// publishing the same host port is a ConflictError naming both, never a
// silent overwrite.
func TestMerge_HostPortConflictAcrossOverlays(t *testing.T) {
	_, err := NewEngine().Merge([]model.OverlayFragment{
		serviceFrag("postgres", map[string]any{
			"postgres": map[string]any{"ports": []any{"5432:5432"}},
		}),
		serviceFrag("timescale", map[string]any{
			"timescale": map[string]any{"ports": []any{"5432:5432"}},
		}),
	})
	require.Error(t, err)

	var conflict *model.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "postgres", conflict.First)
	assert.Equal(t, "timescale", conflict.Second)
	assert.Equal(t, "host port 5432/tcp", conflict.Path)
}

// TestMerge_HostPortSameOverlayIsFine verifies host-port policing only
// fires across overlays; one overlay publishing the same host port from
// two of its own services is its own business.
func TestMerge_HostPortSameOverlayIsFine(t *testing.T) {
	_, err := NewEngine().Merge([]model.OverlayFragment{
		serviceFrag("postgres", map[string]any{
			"postgres":    map[string]any{"ports": []any{"5432:5432"}},
			"postgres-ro": map[string]any{"ports": []any{"5432:5432"}},
		}),
	})
	assert.NoError(t, err)
}

// TestMerge_CustomPatchTakesOverHostPort verifies the custom patch may
// republish a host port owned by an overlay; the claim transfers with a
// warning instead of a conflict.
func TestMerge_CustomPatchTakesOverHostPort(t *testing.T) {
	merged, err := NewEngine().Merge([]model.OverlayFragment{
		serviceFrag("postgres", map[string]any{
			"postgres": map[string]any{"ports": []any{"5432:5432"}},
		}),
		serviceFrag(model.CustomFragmentID, map[string]any{
			"pgbouncer": map[string]any{"ports": []any{"5432:6432"}},
		}),
	})
	require.NoError(t, err)

	require.Len(t, merged.Warnings, 1)
	assert.Contains(t, merged.Warnings[0], "takes over host port 5432/tcp")
	assert.Contains(t, merged.Warnings[0], `"postgres"`)
}

// TestMerge_LongSyntaxPortsClaimHost verifies long-syntax port objects
// participate in host-port conflict detection via their published field.
func TestMerge_LongSyntaxPortsClaimHost(t *testing.T) {
	_, err := NewEngine().Merge([]model.OverlayFragment{
		serviceFrag("web", map[string]any{
			"web": map[string]any{
				"ports": []any{
					map[string]any{"target": 80, "published": 8080, "protocol": "tcp"},
				},
			},
		}),
		serviceFrag("proxy", map[string]any{
			"proxy": map[string]any{"ports": []any{"8080:3128"}},
		}),
	})
	require.Error(t, err)

	var conflict *model.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

// TestMerge_ContainerOnlyPortClaimsNothing verifies bare container ports
// ("5432") publish no host port and therefore never conflict.
func TestMerge_ContainerOnlyPortClaimsNothing(t *testing.T) {
	_, err := NewEngine().Merge([]model.OverlayFragment{
		serviceFrag("a", map[string]any{
			"a": map[string]any{"ports": []any{"5432"}},
		}),
		serviceFrag("b", map[string]any{
			"b": map[string]any{"ports": []any{"5432"}},
		}),
	})
	assert.NoError(t, err)
}

// TestMerge_UDPAndTCPShareHostPort verifies the claim table is keyed per
// transport protocol.
func TestMerge_UDPAndTCPShareHostPort(t *testing.T) {
	_, err := NewEngine().Merge([]model.OverlayFragment{
		serviceFrag("dns", map[string]any{
			"dns": map[string]any{"ports": []any{"5353:5353/udp"}},
		}),
		serviceFrag("svc", map[string]any{
			"svc": map[string]any{"ports": []any{"5353:5353"}},
		}),
	})
	assert.NoError(t, err)
}

// TestMerge_IPPrefixedShortSyntax verifies host ports bound to a specific
// interface are still claimed.
func TestMerge_IPPrefixedShortSyntax(t *testing.T) {
	_, err := NewEngine().Merge([]model.OverlayFragment{
		serviceFrag("redis", map[string]any{
			"redis": map[string]any{"ports": []any{"127.0.0.1:6379:6379"}},
		}),
		serviceFrag("keydb", map[string]any{
			"keydb": map[string]any{"ports": []any{"6379:6379"}},
		}),
	})
	require.Error(t, err)

	var conflict *model.ConflictError
	assert.ErrorAs(t, err, &conflict)
}
