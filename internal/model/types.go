package model

import (
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"
)

// ManifestSchemaVersion is the current schema version written to
// superposition.json. Manifests with a higher version are rejected rather
// than partially interpreted.
const ManifestSchemaVersion = 1

// Target identifies where the generated configuration is meant to run.
// The target influences which aux files overlays may contribute (e.g.
// Codespaces-specific settings), but not the merge semantics themselves.
type Target string

const (
	// TargetLocal is a locally running container host (the default).
	TargetLocal Target = "local"

	// TargetCodespaces is GitHub Codespaces.
	TargetCodespaces Target = "codespaces"

	// TargetRemote is a remote container host reached over SSH.
	TargetRemote Target = "remote"
)

// String returns the string representation of Target.
func (t Target) String() string {
	return string(t)
}

// IsValid checks whether the Target value is one of the predefined targets.
func (t Target) IsValid() bool {
	switch t {
	case TargetLocal, TargetCodespaces, TargetRemote:
		return true
	default:
		return false
	}
}

// ParseTarget converts a string to a Target.
// Returns an error if the string does not match any valid target.
func ParseTarget(s string) (Target, error) {
	target := Target(strings.ToLower(s))
	if !target.IsValid() {
		return "", fmt.Errorf("invalid target: %q (valid: local, codespaces, remote)", s)
	}
	return target, nil
}

// Manifest is the persisted selection record (superposition.json) that makes
// regeneration reproducible. It is immutable input to the merge pipeline:
// the regeneration controller reloads it, never mutates it mid-merge, and
// re-persists identical content with only a refreshed timestamp after a
// successful write.
type Manifest struct {
	// SchemaVersion is the manifest format version. See ManifestSchemaVersion.
	SchemaVersion int `json:"schemaVersion"`

	// TemplateID names the base template in the catalog.
	TemplateID string `json:"templateId"`

	// Overlays is the ordered list of selected overlays. The order is
	// deterministic (stable sort by category then id at init time) and is
	// preserved verbatim on regeneration so merge results are reproducible.
	Overlays []OverlayEntry `json:"overlays"`

	// PortOffset is the global offset added to every declared overlay port.
	// Must be >= 0.
	PortOffset int `json:"portOffset"`

	// Target is the container-host target this configuration was built for.
	Target Target `json:"target"`

	// CustomDir is the reserved directory scanned for user-authored override
	// fragments. Relative paths are resolved against the output directory.
	// Empty means the default (".devcontainer/custom").
	CustomDir string `json:"customDir,omitempty"`

	// GeneratedAt is the timestamp of the last successful generation.
	// It is the only field that changes between regenerations.
	GeneratedAt time.Time `json:"generatedAt"`
}

// OverlayEntry is one selected overlay in the manifest.
type OverlayEntry struct {
	// ID is the overlay identifier, unique within the manifest.
	ID string `json:"id"`

	// Options holds per-overlay answers collected at init time. They are
	// exposed to label templates and env rendering via ${option.<key>}.
	Options map[string]string `json:"options,omitempty"`
}

// Validate checks the manifest's structural invariants: supported schema
// version, non-empty template, valid target, non-negative port offset, and
// unique overlay ids.
func (m *Manifest) Validate() error {
	if m.SchemaVersion < 1 || m.SchemaVersion > ManifestSchemaVersion {
		return &SchemaError{
			Source:  "manifest",
			Path:    "schemaVersion",
			Message: fmt.Sprintf("unsupported schema version %d (supported: 1-%d)", m.SchemaVersion, ManifestSchemaVersion),
		}
	}
	if m.TemplateID == "" {
		return &SchemaError{Source: "manifest", Path: "templateId", Message: "template id must not be empty"}
	}
	if !m.Target.IsValid() {
		return &SchemaError{
			Source:  "manifest",
			Path:    "target",
			Message: fmt.Sprintf("invalid target %q (valid: local, codespaces, remote)", m.Target),
		}
	}
	if m.PortOffset < 0 {
		return &SchemaError{
			Source:  "manifest",
			Path:    "portOffset",
			Message: fmt.Sprintf("port offset must be >= 0, got %d", m.PortOffset),
		}
	}

	seen := make(map[string]bool, len(m.Overlays))
	for _, entry := range m.Overlays {
		if err := ValidateOverlayID(entry.ID); err != nil {
			return &SchemaError{Source: "manifest", Path: "overlays", Message: err.Error()}
		}
		if seen[entry.ID] {
			return &SchemaError{
				Source:  "manifest",
				Path:    "overlays",
				Message: fmt.Sprintf("overlay %q selected more than once", entry.ID),
			}
		}
		seen[entry.ID] = true
	}
	return nil
}

// OverlayIDs returns the selected overlay ids in manifest order.
func (m *Manifest) OverlayIDs() []string {
	ids := make([]string, len(m.Overlays))
	for i, entry := range m.Overlays {
		ids[i] = entry.ID
	}
	return ids
}

// idRegex validates overlay and template ids: lowercase alphanumeric plus
// hyphens, starting and ending with an alphanumeric character. Ids double as
// directory names, compose network aliases, and provenance labels, so the
// character set is deliberately narrow.
var idRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$|^[a-z0-9]$`)

// ValidateOverlayID checks whether the given id is a valid overlay or
// template identifier. CustomFragmentID is rejected: an overlay carrying the
// reserved id would inherit the custom fragment's override privileges.
func ValidateOverlayID(id string) error {
	if id == "" {
		return fmt.Errorf("overlay id must not be empty")
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("invalid overlay id %q: must contain only lowercase alphanumerics and hyphens, and start/end with an alphanumeric", id)
	}
	if id == CustomFragmentID {
		return fmt.Errorf("overlay id %q is reserved for the custom-patch fragment", CustomFragmentID)
	}
	return nil
}

// OverlayFragment is the partial configuration bundle one overlay (or the
// template, or the synthetic custom patch) contributes to the merge. The
// template and the custom patch use the same shape so the merge engine has
// exactly one algorithm regardless of source.
type OverlayFragment struct {
	// ID identifies the fragment. For catalog overlays this is the overlay
	// id; the template uses its template id and the custom patch uses
	// CustomFragmentID.
	ID string

	// Category groups overlays for ordering and reporting
	// (language, database, observability, tool, ...).
	Category string

	// Name is the human-facing display name from the overlay metadata.
	Name string

	// ConfigPatch is the partial devcontainer document this fragment
	// contributes, parsed from JSONC into a generic tree.
	ConfigPatch map[string]any

	// ServiceFragment is the partial compose/orchestration document,
	// parsed from YAML. Typically {"services": {...}}.
	ServiceFragment map[string]any

	// EnvDefaults are the fragment's environment defaults, in file order.
	EnvDefaults []EnvEntry

	// EnvOverrides lists env keys this fragment intentionally redefines.
	// Redefining a key not listed here produces an advisory warning.
	EnvOverrides []string

	// Ports are the ports this fragment declares. Declared ports are unique
	// within one fragment; cross-fragment collisions are resolved at the
	// actual-port level by the allocator.
	Ports []PortDeclaration

	// AuxFiles are verbatim files copied into the output tree.
	AuxFiles []AuxFile

	// Options are the per-overlay options from the manifest entry, used for
	// ${option.<key>} substitution in labels and env values.
	Options map[string]string
}

// CustomFragmentID is the reserved fragment id for the synthetic custom-patch
// fragment. It is not a valid catalog overlay id by convention.
const CustomFragmentID = "custom"

// IsCustom reports whether this fragment is the synthetic custom patch.
func (f *OverlayFragment) IsCustom() bool {
	return f.ID == CustomFragmentID
}

// EnvEntry is a single environment-variable default. Entries are ordered:
// the generated .env preserves fragment order, grouped per source.
type EnvEntry struct {
	// Key is the variable name.
	Key string

	// Value is the raw value (no quoting applied).
	Value string

	// Source is the fragment id that contributed this entry.
	Source string
}

// AuxFile is a verbatim file contributed by a fragment, addressed by its
// path relative to the output .devcontainer directory.
type AuxFile struct {
	// Path is the relative output path (slash-separated).
	Path string

	// Data is the file content.
	Data []byte

	// Mode is the file mode to write with. Zero means 0644.
	Mode fs.FileMode
}

// PortDeclaration is a port an overlay declares for one of its services.
// The declared port is the conventional port (5432 for postgres, 6379 for
// redis); the actual host port is declared + the manifest's global offset.
type PortDeclaration struct {
	// ServiceName is the compose service that owns the port. Empty means
	// the overlay id.
	ServiceName string `json:"service,omitempty"`

	// DeclaredPort is the conventional container port (1-65535).
	DeclaredPort int `json:"port"`

	// Protocol selects URL/connection-string derivation: "http", "https",
	// "postgres", "mysql", "redis", "mongodb", "amqp", "tcp", or "udp".
	// Empty defaults to "tcp".
	Protocol string `json:"protocol,omitempty"`

	// LabelTemplate is a human-readable label with ${port}, ${service} and
	// ${option.<key>} placeholders.
	LabelTemplate string `json:"label,omitempty"`
}

// NormalizedPort is the allocator's output for one declaration: the declared
// port with the global offset applied, plus derived user-facing strings.
type NormalizedPort struct {
	// OverlayID is the fragment that declared the port.
	OverlayID string `json:"overlayId"`

	// ServiceName is the owning compose service.
	ServiceName string `json:"serviceName"`

	// DeclaredPort is the original container-side port.
	DeclaredPort int `json:"declaredPort"`

	// ActualPort is DeclaredPort plus the global offset, the real
	// container-to-host mapping.
	ActualPort int `json:"actualPort"`

	// Protocol is the declared protocol (defaulted to "tcp").
	Protocol string `json:"protocol"`

	// Label is the rendered label, if a template was declared.
	Label string `json:"label,omitempty"`

	// URL is the derived browser URL for http/https ports.
	URL string `json:"url,omitempty"`

	// ConnectionString is the derived client connection string for
	// database/broker protocols.
	ConnectionString string `json:"connectionString,omitempty"`
}

// String returns a human-readable representation of the normalized port.
// Format: "overlay/service: declared → actual/protocol".
func (p *NormalizedPort) String() string {
	return fmt.Sprintf("%s/%s: %d → %d/%s", p.OverlayID, p.ServiceName, p.DeclaredPort, p.ActualPort, p.Protocol)
}

// MergedConfig is the final composed configuration: one devcontainer
// document, one compose document, one ordered env file, the aux files, the
// normalized ports, and a provenance map recording which fragment last wrote
// each leaf. It is transient, held in memory until the generator writes it.
type MergedConfig struct {
	// Devcontainer is the merged devcontainer.json document.
	Devcontainer map[string]any

	// Compose is the merged compose document (may be empty when no fragment
	// contributes services).
	Compose map[string]any

	// Env is the merged environment file, in fragment order.
	Env []EnvEntry

	// AuxFiles are the collected verbatim files. A later fragment
	// contributing the same path replaces the earlier file.
	AuxFiles []AuxFile

	// Ports are the allocator's normalized ports, in declaration order.
	Ports []NormalizedPort

	// Provenance maps each dotted leaf path (e.g.
	// "devcontainer.customizations.vscode.extensions" or
	// "compose.services.postgres.image") to the id of the fragment that
	// last set it. Required so regeneration diffs and the custom patch
	// applier can reason about ownership.
	Provenance map[string]string

	// Warnings are advisory conditions surfaced to the user (env key
	// redefinitions, zero port offset with declared ports, ...).
	Warnings []string
}

// GenerationSummary is the result of a successful init or regen run,
// consumed by the summary reporter and the --json output path.
type GenerationSummary struct {
	// OutputDir is the directory the configuration tree was written to.
	OutputDir string `json:"outputDir"`

	// ManifestPath is where superposition.json was persisted.
	ManifestPath string `json:"manifestPath"`

	// TemplateID and Overlays echo the manifest selection.
	TemplateID string   `json:"templateId"`
	Overlays   []string `json:"overlays"`

	// Ports lists the normalized port allocations.
	Ports []NormalizedPort `json:"ports,omitempty"`

	// Files lists the written file paths, relative to OutputDir.
	Files []string `json:"files"`

	// BackupDir is the timestamped backup of the previous output tree,
	// empty on first generation.
	BackupDir string `json:"backupDir,omitempty"`

	// Warnings are the advisory conditions from the merge pipeline.
	Warnings []string `json:"warnings,omitempty"`
}
