package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/superpose/internal/model"
)

func decl(overlay string, port int, protocol string) Declared {
	return Declared{
		OverlayID: overlay,
		PortDeclaration: model.PortDeclaration{
			DeclaredPort: port,
			Protocol:     protocol,
		},
	}
}

// TestAllocate_OffsetFormula verifies the core contract: actualPort is
// always declaredPort + offset, per declaration, with no renumbering.
// postgres 5432 and redis 6379 at offset 100 become 5532 and 6479.
func TestAllocate_OffsetFormula(t *testing.T) {
	result, err := Allocate([]Declared{
		decl("postgres", 5432, "postgres"),
		decl("redis", 6379, "redis"),
	}, 100)
	require.NoError(t, err)
	require.Len(t, result.Ports, 2)

	assert.Equal(t, 5532, result.Ports[0].ActualPort, "postgres should shift by 100")
	assert.Equal(t, 5432, result.Ports[0].DeclaredPort, "declared port should remain unchanged")
	assert.Equal(t, 6479, result.Ports[1].ActualPort, "redis should shift by 100")
}

// TestAllocate_ZeroOffset verifies that offset 0 is valid (single-environment
// setup) but produces an advisory warning when ports are declared.
func TestAllocate_ZeroOffset(t *testing.T) {
	result, err := Allocate([]Declared{decl("postgres", 5432, "postgres")}, 0)
	require.NoError(t, err)

	assert.Equal(t, 5432, result.Ports[0].ActualPort)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "portOffset is 0")
}

func TestAllocate_NoDeclarationsNoWarning(t *testing.T) {
	result, err := Allocate(nil, 0)
	require.NoError(t, err)
	assert.Empty(t, result.Ports)
	assert.Empty(t, result.Warnings)
}

// TestAllocate_CollisionNamesBothOverlays verifies that two overlays
// landing on the same actual port fail with a ConflictError naming both
// overlay ids and the offset, instead of silently renumbering.
func TestAllocate_CollisionNamesBothOverlays(t *testing.T) {
	_, err := Allocate([]Declared{
		decl("grafana", 3000, "http"),
		decl("loki", 3000, "http"),
	}, 100)
	require.Error(t, err)

	var conflict *model.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "grafana", conflict.First)
	assert.Equal(t, "loki", conflict.Second)
	assert.Contains(t, conflict.Message, "offset 100")
}

// TestAllocate_DistinctActualPorts verifies declarations whose actual
// ports differ coexist even when numerically adjacent.
func TestAllocate_DistinctActualPorts(t *testing.T) {
	result, err := Allocate([]Declared{
		decl("grafana", 3100, "http"),
		decl("loki", 3000, "http"),
	}, 100)
	require.NoError(t, err)
	assert.Equal(t, 3200, result.Ports[0].ActualPort)
	assert.Equal(t, 3100, result.Ports[1].ActualPort)
}

// TestAllocate_SameActualDifferentTransport verifies that tcp and udp may
// share a port number; collisions are tracked per transport.
func TestAllocate_SameActualDifferentTransport(t *testing.T) {
	result, err := Allocate([]Declared{
		decl("mdns", 5353, "udp"),
		decl("svc", 5353, "tcp"),
	}, 0)
	require.NoError(t, err)
	assert.Len(t, result.Ports, 2)
}

// TestAllocate_Overflow verifies an actual port above 65535 is a
// SchemaError attributed to the declaring overlay, never a renumber.
func TestAllocate_Overflow(t *testing.T) {
	_, err := Allocate([]Declared{decl("app", 65000, "tcp")}, 1000)
	require.Error(t, err)

	var schemaErr *model.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "app", schemaErr.Source)
}

func TestAllocate_NegativeOffset(t *testing.T) {
	_, err := Allocate(nil, -1)
	require.Error(t, err)

	var schemaErr *model.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

// TestAllocate_Defaults verifies the service name defaults to the overlay
// id and the protocol to tcp.
func TestAllocate_Defaults(t *testing.T) {
	result, err := Allocate([]Declared{decl("postgres", 5432, "")}, 0)
	require.NoError(t, err)

	p := result.Ports[0]
	assert.Equal(t, "postgres", p.ServiceName, "service should default to overlay id")
	assert.Equal(t, "tcp", p.Protocol, "protocol should default to tcp")
}

// TestAllocate_DerivedStrings verifies URL and connection-string derivation
// per protocol.
func TestAllocate_DerivedStrings(t *testing.T) {
	result, err := Allocate([]Declared{
		decl("web", 3000, "http"),
		decl("postgres", 5432, "postgres"),
		decl("redis", 6379, "redis"),
		decl("rabbitmq", 5672, "amqp"),
	}, 100)
	require.NoError(t, err)
	require.Len(t, result.Ports, 4)

	assert.Equal(t, "http://localhost:3100", result.Ports[0].URL)
	assert.Empty(t, result.Ports[0].ConnectionString, "http ports derive URLs, not connection strings")

	assert.Empty(t, result.Ports[1].URL)
	assert.Equal(t, "postgresql://localhost:5532/postgres", result.Ports[1].ConnectionString)
	assert.Equal(t, "redis://localhost:6479", result.Ports[2].ConnectionString)
	assert.Equal(t, "amqp://localhost:5772", result.Ports[3].ConnectionString)
}

// TestAllocate_LabelTemplate verifies ${service}, ${port}, and
// ${option.<key>} substitution in label templates.
func TestAllocate_LabelTemplate(t *testing.T) {
	result, err := Allocate([]Declared{
		{
			OverlayID: "postgres",
			Options:   map[string]string{"version": "16"},
			PortDeclaration: model.PortDeclaration{
				DeclaredPort:  5432,
				Protocol:      "postgres",
				LabelTemplate: "${service} ${option.version} on ${port}",
			},
		},
	}, 100)
	require.NoError(t, err)

	assert.Equal(t, "postgres 16 on 5532", result.Ports[0].Label)
}

func TestTransport(t *testing.T) {
	assert.Equal(t, "udp", Transport("udp"))
	assert.Equal(t, "tcp", Transport("http"))
	assert.Equal(t, "tcp", Transport("postgres"))
	assert.Equal(t, "tcp", Transport(""))
}
