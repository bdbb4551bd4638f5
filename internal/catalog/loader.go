package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/superpose/internal/model"
)

// Conventional filenames within a fragment bundle directory.
const (
	metadataFileName = "overlay.json"
	configFileName   = "devcontainer.json"
	patchFileName    = "devcontainer-patch.json"
	composeFileName  = "compose.yaml"
	envFileName      = "defaults.env"
	filesDirName     = "files"
)

// Metadata is the parsed overlay.json of a fragment bundle. Unknown fields
// are ignored during parsing so the metadata schema can gain non-critical
// fields without breaking older binaries.
type Metadata struct {
	// Name is the human-facing display name.
	Name string `json:"name"`

	// Category groups overlays: "template", "language", "database",
	// "observability", "tool".
	Category string `json:"category"`

	// Ports are the overlay's port declarations.
	Ports []model.PortDeclaration `json:"ports,omitempty"`

	// EnvOverrides lists env keys this overlay intentionally redefines.
	EnvOverrides []string `json:"envOverrides,omitempty"`
}

// Catalog reads fragment bundles from a directory tree.
type Catalog struct {
	dir string
}

// Open validates that the catalog directory exists and returns a Catalog.
func Open(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitCatalogError,
			fmt.Sprintf("overlay catalog not found at %s", dir), err)
	}
	if !info.IsDir() {
		return nil, model.NewCLIError(model.ExitCatalogError,
			fmt.Sprintf("overlay catalog path %s is not a directory", dir))
	}
	return &Catalog{dir: dir}, nil
}

// Dir returns the catalog root directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// LoadTemplate loads the base template fragment by id. Templates use the
// same bundle layout as overlays; their devcontainer.json is the base
// document the overlays patch.
func (c *Catalog) LoadTemplate(id string) (*model.OverlayFragment, error) {
	dir := filepath.Join(c.dir, "templates", id)
	if _, err := os.Stat(dir); err != nil {
		return nil, &model.ConflictError{
			Path:    "template " + id,
			First:   "manifest",
			Message: "template id not present in the catalog",
		}
	}
	return loadFragment(dir, id, nil)
}

// LoadOverlays loads the fragments for the given manifest entries,
// preserving entry order. Bundle loading is parallelized for I/O
// throughput; every fragment is fully collected before the caller merges,
// so merge order never depends on load-completion timing.
//
// An entry whose id is missing from the catalog fails the whole load with
// a ConflictError naming the id.
func (c *Catalog) LoadOverlays(entries []model.OverlayEntry) ([]model.OverlayFragment, error) {
	fragments := make([]*model.OverlayFragment, len(entries))
	errs := make([]error, len(entries))

	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry model.OverlayEntry) {
			defer wg.Done()
			dir := filepath.Join(c.dir, "overlays", entry.ID)
			if _, err := os.Stat(dir); err != nil {
				errs[i] = &model.ConflictError{
					Path:    "overlay " + entry.ID,
					First:   "manifest",
					Message: "overlay id not present in the catalog; regeneration would silently change the environment",
				}
				return
			}
			fragments[i], errs[i] = loadFragment(dir, entry.ID, entry.Options)
		}(i, entry)
	}
	wg.Wait()

	// Report the first error in entry order so failures are deterministic
	// regardless of goroutine scheduling.
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	out := make([]model.OverlayFragment, len(fragments))
	for i, frag := range fragments {
		out[i] = *frag
	}
	return out, nil
}

// ListOverlays returns the metadata of every overlay in the catalog,
// sorted by id. Used by doctor and by init's selection validation.
func (c *Catalog) ListOverlays() (map[string]Metadata, error) {
	overlaysDir := filepath.Join(c.dir, "overlays")
	entries, err := os.ReadDir(overlaysDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Metadata{}, nil
		}
		return nil, model.WrapCLIError(model.ExitCatalogError, "failed to read catalog overlays", err)
	}

	out := make(map[string]Metadata, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := loadMetadata(filepath.Join(overlaysDir, entry.Name()), entry.Name())
		if err != nil {
			return nil, err
		}
		out[entry.Name()] = *meta
	}
	return out, nil
}

// Categories returns a lookup from overlay id to category for every
// overlay in the catalog.
func (c *Catalog) Categories() (map[string]string, error) {
	metas, err := c.ListOverlays()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(metas))
	for id, meta := range metas {
		out[id] = meta.Category
	}
	return out, nil
}

// loadFragment reads one bundle directory into an OverlayFragment.
func loadFragment(dir, id string, options map[string]string) (*model.OverlayFragment, error) {
	meta, err := loadMetadata(dir, id)
	if err != nil {
		return nil, err
	}
	if err := model.ValidatePortDeclarations(meta.Ports, id); err != nil {
		return nil, err
	}

	frag := &model.OverlayFragment{
		ID:           id,
		Category:     meta.Category,
		Name:         meta.Name,
		Ports:        meta.Ports,
		EnvOverrides: meta.EnvOverrides,
		Options:      options,
	}

	// Default empty port service names to the overlay id, the conventional
	// network alias of the overlay's primary service.
	for i := range frag.Ports {
		if frag.Ports[i].ServiceName == "" {
			frag.Ports[i].ServiceName = id
		}
	}

	frag.ConfigPatch, err = loadConfigPatch(dir, id)
	if err != nil {
		return nil, err
	}
	frag.ServiceFragment, err = loadServiceFragment(dir, id)
	if err != nil {
		return nil, err
	}
	frag.EnvDefaults, err = loadEnvDefaults(filepath.Join(dir, envFileName), id)
	if err != nil {
		return nil, err
	}
	frag.AuxFiles, err = loadAuxFiles(filepath.Join(dir, filesDirName))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitCatalogError,
			fmt.Sprintf("failed to read aux files for overlay %q", id), err)
	}
	return frag, nil
}

// loadMetadata parses the bundle's overlay.json. The metadata file is
// required: it is what makes a directory a fragment bundle.
func loadMetadata(dir, id string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFileName))
	if err != nil {
		return nil, &model.SchemaError{
			Source:  id,
			Path:    metadataFileName,
			Message: fmt.Sprintf("metadata file missing or unreadable: %v", err),
		}
	}
	var meta Metadata
	if err := json.Unmarshal(jsonc.ToJSON(data), &meta); err != nil {
		return nil, &model.SchemaError{
			Source:  id,
			Path:    metadataFileName,
			Message: fmt.Sprintf("invalid JSON: %v", err),
		}
	}
	if meta.Category == "" {
		return nil, &model.SchemaError{
			Source:  id,
			Path:    metadataFileName,
			Message: "category must not be empty",
		}
	}
	return &meta, nil
}

// loadConfigPatch reads the bundle's devcontainer document. Templates name
// it devcontainer.json; overlays conventionally use devcontainer-patch.json.
// Both names are accepted in either bundle kind.
func loadConfigPatch(dir, id string) (map[string]any, error) {
	for _, name := range []string{configFileName, patchFileName} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, model.WrapCLIError(model.ExitCatalogError,
				fmt.Sprintf("failed to read %s for overlay %q", name, id), err)
		}

		// Strip JSONC comments before parsing; devcontainer documents
		// conventionally carry comments.
		var patch map[string]any
		if err := json.Unmarshal(jsonc.ToJSON(data), &patch); err != nil {
			return nil, &model.SchemaError{
				Source:  id,
				Path:    name,
				Message: fmt.Sprintf("invalid JSON: %v", err),
			}
		}
		return patch, nil
	}
	return nil, nil
}

// loadServiceFragment reads the bundle's compose.yaml, if present.
func loadServiceFragment(dir, id string) (map[string]any, error) {
	data, err := os.ReadFile(filepath.Join(dir, composeFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, model.WrapCLIError(model.ExitCatalogError,
			fmt.Sprintf("failed to read %s for overlay %q", composeFileName, id), err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &model.SchemaError{
			Source:  id,
			Path:    composeFileName,
			Message: fmt.Sprintf("invalid YAML: %v", err),
		}
	}
	return doc, nil
}

// loadEnvDefaults parses an env-defaults file into ordered entries.
//
// The format is deliberately minimal dotenv: KEY=VALUE per line, # comments,
// blank lines ignored. Parsing is hand-rolled rather than delegated to a
// dotenv library because merge semantics depend on file order, and the
// available parsers return maps that discard it.
func loadEnvDefaults(path, source string) ([]model.EnvEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, model.WrapCLIError(model.ExitCatalogError,
			fmt.Sprintf("failed to read env defaults for %q", source), err)
	}
	return ParseEnv(data, source)
}

// ParseEnv parses dotenv-style content into ordered entries. Exported
// because the custom patch applier parses the same format.
func ParseEnv(data []byte, source string) ([]model.EnvEntry, error) {
	var entries []model.EnvEntry
	for lineNo, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		key, value, found := strings.Cut(trimmed, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, &model.SchemaError{
				Source:  source,
				Path:    fmt.Sprintf("env line %d", lineNo+1),
				Message: fmt.Sprintf("malformed env line %q (expected KEY=VALUE)", trimmed),
			}
		}
		entries = append(entries, model.EnvEntry{
			Key:    key,
			Value:  strings.TrimSpace(value),
			Source: source,
		})
	}
	return entries, nil
}

// loadAuxFiles walks the bundle's files/ directory and reads every regular
// file verbatim. Paths are recorded relative to files/ with forward
// slashes, sorted for deterministic ordering. Symlinks are skipped.
func loadAuxFiles(dir string) ([]model.AuxFile, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var files []model.AuxFile
	err = filepath.Walk(dir, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if fi.IsDir() || fi.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, model.AuxFile{
			Path: filepath.ToSlash(rel),
			Data: data,
			Mode: fi.Mode().Perm(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
