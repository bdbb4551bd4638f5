// compose.go merges the per-overlay service fragments into one compose
// document and polices the host-port space while doing so.
//
// Service fragments merge through the same value-model algorithm as the
// devcontainer patches: services merge per name, environment blocks merge
// as maps. The one compose-specific rule is the host-port scan: a host port
// published by services from two different overlays is a ConflictError,
// never a silent overwrite, because silently dropping a published port
// would change documented connection strings behind the user's back. The
// custom patch is exempt: it is permitted to override anything, so its
// claims transfer with a warning instead.
package merge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mmr-tortoise/superpose/internal/model"
)

// portClaim records which fragment's service first published a host port.
type portClaim struct {
	fragmentID string
	service    string
}

// composeState accumulates the merged compose document across fragments.
type composeState struct {
	tree   Value
	claims map[string]portClaim // "hostPort/proto" → first claimant
	rules  []KeyRule
}

func newComposeState(rules []KeyRule) *composeState {
	return &composeState{
		tree:   Value{Kind: KindMap, Map: map[string]Value{}},
		claims: make(map[string]portClaim),
		rules:  rules,
	}
}

// apply merges one fragment's service document into the state. It returns
// advisory warnings (custom-patch port takeovers) or a ConflictError when
// two different overlays publish the same host port.
func (s *composeState) apply(frag *model.OverlayFragment, prov map[string]string, e *Engine) ([]string, error) {
	src, err := classify(mapToAny(frag.ServiceFragment), "", frag.ID, s.rules)
	if err != nil {
		return nil, err
	}
	if src.Kind != KindMap {
		return nil, &model.SchemaError{
			Source:  frag.ID,
			Path:    "compose",
			Message: fmt.Sprintf("service fragment must be a map, got %s", src.Kind),
		}
	}

	warnings, err := s.claimPorts(frag, src)
	if err != nil {
		return nil, err
	}

	merged, err := e.mergeValues(s.tree, src, "compose", frag.ID, prov)
	if err != nil {
		return nil, err
	}
	s.tree = merged
	return warnings, nil
}

// claimPorts scans the fragment's services for published host ports and
// registers them against the claim table.
func (s *composeState) claimPorts(frag *model.OverlayFragment, src Value) ([]string, error) {
	services, ok := src.Map["services"]
	if !ok || services.Kind != KindMap {
		return nil, nil
	}

	var warnings []string
	for _, svcName := range sortedKeys(services.Map) {
		svc := services.Map[svcName]
		if svc.Kind != KindMap {
			continue
		}
		ports, ok := svc.Map["ports"]
		if !ok {
			continue
		}
		for _, published := range publishedPorts(ports) {
			key := published.key()
			claim, taken := s.claims[key]
			if !taken {
				s.claims[key] = portClaim{fragmentID: frag.ID, service: svcName}
				continue
			}
			if claim.fragmentID == frag.ID {
				// Re-declaration within the same overlay deduplicates
				// through the list merge; nothing to police here.
				continue
			}
			if frag.IsCustom() {
				warnings = append(warnings, fmt.Sprintf(
					"custom patch service %q takes over host port %s previously published by %q (service %q)",
					svcName, key, claim.fragmentID, claim.service))
				s.claims[key] = portClaim{fragmentID: frag.ID, service: svcName}
				continue
			}
			return nil, &model.ConflictError{
				Path:    "host port " + key,
				First:   claim.fragmentID,
				Second:  frag.ID,
				Message: fmt.Sprintf("services %q and %q both publish it", claim.service, svcName),
			}
		}
	}
	return warnings, nil
}

// publishedPort is a host-side port binding extracted from a service's
// ports list.
type publishedPort struct {
	host  int
	proto string
}

func (p publishedPort) key() string {
	return fmt.Sprintf("%d/%s", p.host, p.proto)
}

// publishedPorts extracts host bindings from a ports value in either
// compose syntax:
//   - short syntax scalars: "5432:5432", "127.0.0.1:6379:6379", "8080:80/udp"
//   - long syntax objects: {target: 80, published: 8080, protocol: tcp}
//
// Entries that publish no host port (bare container ports) claim nothing.
func publishedPorts(ports Value) []publishedPort {
	var out []publishedPort
	switch ports.Kind {
	case KindList:
		for _, item := range ports.List {
			if item.Kind != KindScalar {
				continue
			}
			str, ok := item.Scalar.(string)
			if !ok {
				continue
			}
			if p, ok := parseShortSyntax(str); ok {
				out = append(out, p)
			}
		}
	case KindKeyedList:
		for _, entry := range ports.Entries {
			if entry.Value.Kind != KindMap {
				continue
			}
			published, ok := entry.Value.Map["published"]
			if !ok || published.Kind != KindScalar {
				continue
			}
			host, ok := scalarPort(published.Scalar)
			if !ok {
				continue
			}
			proto := "tcp"
			if pv, ok := entry.Value.Map["protocol"]; ok && pv.Kind == KindScalar {
				if str, ok := pv.Scalar.(string); ok && str != "" {
					proto = str
				}
			}
			out = append(out, publishedPort{host: host, proto: proto})
		}
	}
	return out
}

// parseShortSyntax extracts the host port from a short-syntax mapping.
// Returns ok=false for container-only entries like "5432".
func parseShortSyntax(s string) (publishedPort, bool) {
	proto := "tcp"
	if mapping, suffix, found := strings.Cut(s, "/"); found {
		s = mapping
		proto = suffix
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return publishedPort{}, false
	}
	// With an IP prefix ("127.0.0.1:6379:6379") the host port is the
	// second-to-last segment; without one it is the first.
	hostPart := parts[len(parts)-2]
	host, err := strconv.Atoi(hostPart)
	if err != nil {
		return publishedPort{}, false
	}
	return publishedPort{host: host, proto: proto}, true
}

// scalarPort converts a classified scalar into a port number.
func scalarPort(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		port, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return port, true
	default:
		return 0, false
	}
}

// raw returns the merged compose document as a generic tree, or nil when no
// fragment contributed services.
func (s *composeState) raw() map[string]any {
	if len(s.tree.Map) == 0 {
		return nil
	}
	out, ok := toRaw(s.tree).(map[string]any)
	if !ok {
		return nil
	}
	return out
}
