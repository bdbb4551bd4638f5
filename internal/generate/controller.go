package generate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmr-tortoise/superpose/internal/catalog"
	"github.com/mmr-tortoise/superpose/internal/custom"
	"github.com/mmr-tortoise/superpose/internal/manifest"
	"github.com/mmr-tortoise/superpose/internal/merge"
	"github.com/mmr-tortoise/superpose/internal/model"
	"github.com/mmr-tortoise/superpose/internal/ports"
)

// State is the controller's current pipeline phase, used for progress
// reporting and error context.
type State int

const (
	// StateIdle is the initial state before Generate is called.
	StateIdle State = iota

	// StateMerging covers fragment loading and the deep merge.
	StateMerging

	// StateAllocating covers port offset application.
	StateAllocating

	// StateApplyingCustomPatches covers the custom-fragment re-merge.
	StateApplyingCustomPatches

	// StateWritingOutput covers backup, rendering, and file writes.
	StateWritingOutput

	// StateDone is reached after a successful write.
	StateDone

	// StateFailed is reached when any phase errors out.
	StateFailed
)

// String returns the phase name for logs and error messages.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMerging:
		return "merging"
	case StateAllocating:
		return "allocating"
	case StateApplyingCustomPatches:
		return "applying-custom-patches"
	case StateWritingOutput:
		return "writing-output"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// defaultCustomDirName is the directory scanned for custom patches when the
// manifest does not name one, relative to the output directory.
const defaultCustomDirName = "custom"

// backupTimeFormat names backup directories; second granularity is enough
// because generation holds no lock and runs interactively.
const backupTimeFormat = "20060102-150405"

// Config carries the controller's collaborators. Now and Logf are optional
// and default to time.Now and a no-op.
type Config struct {
	// Catalog is the opened overlay catalog.
	Catalog *catalog.Catalog

	// OutputDir is the .devcontainer directory to write.
	OutputDir string

	// Now supplies timestamps for the manifest and backup names.
	Now func() time.Time

	// Logf receives verbose progress lines.
	Logf func(format string, args ...any)
}

// Controller runs the generation pipeline for one output directory.
type Controller struct {
	catalog   *catalog.Catalog
	outputDir string
	now       func() time.Time
	logf      func(format string, args ...any)
	state     State
}

// New creates a controller from the given configuration.
func New(cfg Config) *Controller {
	c := &Controller{
		catalog:   cfg.Catalog,
		outputDir: cfg.OutputDir,
		now:       cfg.Now,
		logf:      cfg.Logf,
		state:     StateIdle,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logf == nil {
		c.logf = func(string, ...any) {}
	}
	return c
}

// State returns the controller's current phase.
func (c *Controller) State() State {
	return c.state
}

// Regenerate reloads the manifest at the given path and re-runs the full
// pipeline against it. The manifest content is re-persisted unchanged except
// for the generatedAt timestamp.
func (c *Controller) Regenerate(manifestPath string) (*model.GenerationSummary, error) {
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	if c.outputDir == "" {
		c.outputDir = filepath.Dir(manifestPath)
	}
	return c.Generate(m)
}

// Generate runs the pipeline for the given manifest: load, merge, allocate,
// apply custom patches, write. The manifest is input only; Generate persists
// a copy with a refreshed timestamp but never mutates the argument.
func (c *Controller) Generate(m *model.Manifest) (*model.GenerationSummary, error) {
	if err := m.Validate(); err != nil {
		return c.fail(err)
	}

	// Merging: load every fragment and deep-merge in manifest order.
	c.transition(StateMerging)
	template, err := c.catalog.LoadTemplate(m.TemplateID)
	if err != nil {
		return c.fail(err)
	}
	overlays, err := c.catalog.LoadOverlays(m.Overlays)
	if err != nil {
		return c.fail(err)
	}
	fragments := make([]model.OverlayFragment, 0, len(overlays)+2)
	fragments = append(fragments, *template)
	fragments = append(fragments, overlays...)

	engine := merge.NewEngine()
	merged, err := engine.Merge(fragments)
	if err != nil {
		return c.fail(err)
	}

	// Allocating: apply the global offset to every declared port. Only
	// catalog fragments declare ports; the custom patch manipulates the
	// compose document directly.
	c.transition(StateAllocating)
	var decls []ports.Declared
	for i := range fragments {
		frag := &fragments[i]
		for _, decl := range frag.Ports {
			decls = append(decls, ports.Declared{
				OverlayID:       frag.ID,
				Options:         frag.Options,
				PortDeclaration: decl,
			})
		}
	}
	alloc, err := ports.Allocate(decls, m.PortOffset)
	if err != nil {
		return c.fail(err)
	}

	// ApplyingCustomPatches: if the custom directory contributes anything,
	// re-merge with the custom fragment in last position so it wins every
	// scalar conflict.
	customDir := c.resolveCustomDir(m)
	customFrag, err := custom.LoadFragment(customDir)
	if err != nil {
		return c.fail(err)
	}
	if customFrag != nil {
		c.transition(StateApplyingCustomPatches)
		c.logf("applying custom patches from %s", customDir)
		merged, err = engine.Merge(append(fragments, *customFrag))
		if err != nil {
			return c.fail(err)
		}
	}
	merged.Ports = alloc.Ports
	merged.Warnings = append(merged.Warnings, alloc.Warnings...)

	injectForwardPorts(merged.Devcontainer, merged.Ports)
	rewriteComposePorts(merged.Compose, merged.Ports)
	expandEnvOptions(merged.Env, fragments)

	// WritingOutput: render everything in memory, back up the previous
	// tree, write, and roll back if a write fails.
	c.transition(StateWritingOutput)
	stamped := *m
	stamped.GeneratedAt = c.now().UTC()
	files, err := renderTree(merged, &stamped)
	if err != nil {
		return c.fail(err)
	}

	backupDir, err := c.writeTree(files, customDir)
	if err != nil {
		return c.fail(err)
	}

	c.transition(StateDone)
	summary := &model.GenerationSummary{
		OutputDir:    c.outputDir,
		ManifestPath: filepath.Join(c.outputDir, manifest.FileName),
		TemplateID:   m.TemplateID,
		Overlays:     m.OverlayIDs(),
		Ports:        merged.Ports,
		BackupDir:    backupDir,
		Warnings:     merged.Warnings,
	}
	for _, f := range files {
		summary.Files = append(summary.Files, f.Path)
	}
	return summary, nil
}

func (c *Controller) transition(next State) {
	c.logf("phase: %s -> %s", c.state, next)
	c.state = next
}

func (c *Controller) fail(err error) (*model.GenerationSummary, error) {
	c.logf("phase %s failed: %v", c.state, err)
	c.state = StateFailed
	return nil, err
}

// resolveCustomDir resolves the manifest's custom directory against the
// output directory. Empty means the "custom" subdirectory.
func (c *Controller) resolveCustomDir(m *model.Manifest) string {
	dir := m.CustomDir
	if dir == "" {
		dir = defaultCustomDirName
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.outputDir, dir)
}

// writeTree backs up the existing output directory, writes the rendered
// files, and restores the custom directory from the backup. On any write
// failure the partial tree is removed and the backup renamed back, so the
// previous configuration survives intact.
func (c *Controller) writeTree(files []renderedFile, customDir string) (backupDir string, err error) {
	if _, statErr := os.Stat(c.outputDir); statErr == nil {
		backupDir = fmt.Sprintf("%s.bak-%s", c.outputDir, c.now().UTC().Format(backupTimeFormat))
		if renameErr := os.Rename(c.outputDir, backupDir); renameErr != nil {
			return "", &model.IOError{Op: "backup", Path: c.outputDir, Err: renameErr}
		}
		c.logf("backed up %s to %s", c.outputDir, backupDir)
	}

	rollback := func() {
		if backupDir == "" {
			_ = os.RemoveAll(c.outputDir)
			return
		}
		_ = os.RemoveAll(c.outputDir)
		_ = os.Rename(backupDir, c.outputDir)
	}

	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		rollback()
		return "", &model.IOError{Op: "mkdir", Path: c.outputDir, Err: err}
	}
	for _, f := range files {
		dst := filepath.Join(c.outputDir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			rollback()
			return "", &model.IOError{Op: "mkdir", Path: filepath.Dir(dst), Err: err}
		}
		mode := f.Mode
		if mode == 0 {
			mode = 0o644
		}
		if err := os.WriteFile(dst, f.Data, mode); err != nil {
			rollback()
			return "", &model.IOError{Op: "write", Path: dst, Err: err}
		}
	}

	// The custom directory is user-owned. When it lives inside the output
	// tree the backup rename carried it away, so move it back verbatim.
	if backupDir != "" {
		if rel, relErr := filepath.Rel(c.outputDir, customDir); relErr == nil && !strings.HasPrefix(rel, "..") {
			backedUp := filepath.Join(backupDir, rel)
			if _, statErr := os.Stat(backedUp); statErr == nil {
				if err := os.Rename(backedUp, customDir); err != nil {
					rollback()
					return "", &model.IOError{Op: "restore", Path: customDir, Err: err}
				}
			}
		}
	}
	return backupDir, nil
}
