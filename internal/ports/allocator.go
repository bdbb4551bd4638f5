package ports

import (
	"fmt"

	"github.com/mmr-tortoise/superpose/internal/model"
)

// maxPort is the highest valid TCP/UDP port number (2^16 - 1).
const maxPort = 65535

// Declared pairs a port declaration with the overlay that made it, so
// collisions can name their sources.
type Declared struct {
	// OverlayID is the declaring fragment's id.
	OverlayID string

	// Options are the overlay's manifest options, available to label
	// templates via ${option.<key>}.
	Options map[string]string

	model.PortDeclaration
}

// Result is the allocator's output: the normalized ports in declaration
// order plus any advisory warnings.
type Result struct {
	Ports    []model.NormalizedPort
	Warnings []string
}

// Allocate normalizes all declared ports under the global offset.
//
// Rules:
//   - actualPort = declaredPort + offset, always. The formula is the whole
//     algorithm. Users can predict every
//     port without running anything.
//   - Overlays may declare the same conventional port; only the
//     actual-port space is checked for collisions, per transport protocol.
//   - A collision is a ConflictError naming both overlay ids. The
//     allocator never renumbers.
//   - An actual port overflowing 65535 is a SchemaError against the
//     declaring overlay, since only a different offset can fix it.
//
// The advisory "ports declared but offset is 0" condition is reported as a
// warning, not an error: a zero offset is a valid single-environment setup.
func Allocate(decls []Declared, offset int) (*Result, error) {
	if offset < 0 {
		return nil, &model.SchemaError{
			Source:  "manifest",
			Path:    "portOffset",
			Message: fmt.Sprintf("port offset must be >= 0, got %d", offset),
		}
	}

	result := &Result{}
	if len(decls) > 0 && offset == 0 {
		result.Warnings = append(result.Warnings,
			"overlays declare service ports but portOffset is 0; actual ports equal the conventional defaults")
	}

	// Track actual-port ownership per transport so a genuine collision can
	// name both offending overlays. Different transports may share a
	// number (e.g. 5353/tcp and 5353/udp).
	owners := make(map[string]Declared, len(decls))

	for _, d := range decls {
		service := d.ServiceName
		if service == "" {
			service = d.OverlayID
		}
		protocol := d.Protocol
		if protocol == "" {
			protocol = "tcp"
		}

		actual := d.DeclaredPort + offset
		if actual > maxPort {
			return nil, &model.SchemaError{
				Source: d.OverlayID,
				Path:   "ports",
				Message: fmt.Sprintf("declared port %d with offset %d exceeds %d; choose a smaller port offset",
					d.DeclaredPort, offset, maxPort),
			}
		}

		key := fmt.Sprintf("%d/%s", actual, Transport(protocol))
		if owner, taken := owners[key]; taken {
			return nil, &model.ConflictError{
				Path:   "actual port " + key,
				First:  owner.OverlayID,
				Second: d.OverlayID,
				Message: fmt.Sprintf("declared ports %d and %d collide after offset %d",
					owner.DeclaredPort, d.DeclaredPort, offset),
			}
		}
		owners[key] = d

		normalized := model.NormalizedPort{
			OverlayID:    d.OverlayID,
			ServiceName:  service,
			DeclaredPort: d.DeclaredPort,
			ActualPort:   actual,
			Protocol:     protocol,
		}
		normalized.URL = deriveURL(protocol, actual)
		normalized.ConnectionString = deriveConnectionString(protocol, service, actual)
		normalized.Label = renderLabel(d.LabelTemplate, service, actual, d.Options)

		result.Ports = append(result.Ports, normalized)
	}
	return result, nil
}

// Transport maps an application protocol onto its transport for collision
// bookkeeping. Everything except udp rides on tcp.
func Transport(protocol string) string {
	if protocol == "udp" {
		return "udp"
	}
	return "tcp"
}
