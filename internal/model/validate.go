package model

import "fmt"

// validProtocols are the protocols the allocator can derive addresses for.
var validProtocols = map[string]bool{
	"tcp": true, "udp": true,
	"http": true, "https": true,
	"postgres": true, "mysql": true, "redis": true,
	"mongodb": true, "amqp": true,
}

// ValidatePortDeclarations checks a fragment's port declarations for valid
// ranges, known protocols, and per-fragment declared-port uniqueness.
// Cross-fragment collisions are deliberately NOT checked here: overlays may
// legitimately declare the same conventional port; collisions are resolved
// at the actual-port level after the global offset is applied.
func ValidatePortDeclarations(decls []PortDeclaration, source string) error {
	seen := make(map[int]string, len(decls))
	for _, d := range decls {
		if d.DeclaredPort < 1 || d.DeclaredPort > 65535 {
			return &SchemaError{
				Source:  source,
				Path:    "ports",
				Message: fmt.Sprintf("declared port %d out of range (1-65535)", d.DeclaredPort),
			}
		}
		if d.Protocol != "" && !validProtocols[d.Protocol] {
			return &SchemaError{
				Source:  source,
				Path:    "ports",
				Message: fmt.Sprintf("unknown protocol %q for port %d", d.Protocol, d.DeclaredPort),
			}
		}
		if owner, dup := seen[d.DeclaredPort]; dup {
			return &SchemaError{
				Source:  source,
				Path:    "ports",
				Message: fmt.Sprintf("port %d declared twice (services %q and %q); declared ports must be unique within one overlay", d.DeclaredPort, owner, d.ServiceName),
			}
		}
		seen[d.DeclaredPort] = d.ServiceName
	}
	return nil
}
