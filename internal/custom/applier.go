package custom

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/superpose/internal/catalog"
	"github.com/mmr-tortoise/superpose/internal/model"
)

// Conventional filenames within the custom directory.
const (
	patchFileName           = "devcontainer-patch.json"
	composeFileName         = "compose.yaml"
	composeOverrideFileName = "compose.override.yaml"
	envFileName             = "custom.env"
	filesDirName            = "files"
)

// LoadFragment scans the custom directory and synthesizes the custom-patch
// fragment. Returns (nil, nil) when the directory does not exist or
// contains none of the conventional files; an absent custom dir is the
// normal case, not an error.
//
// A custom patch may name compose services absent from every selected
// overlay; those services are created additively by the merge, since users
// may intentionally extend the generated stack out-of-band. Malformed
// files are a CustomPatchError naming the offending file.
func LoadFragment(customDir string) (*model.OverlayFragment, error) {
	info, err := os.Stat(customDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &model.CustomPatchError{File: customDir, Err: err}
	}
	if !info.IsDir() {
		return nil, &model.CustomPatchError{
			File: customDir,
			Err:  fmt.Errorf("custom patch path is not a directory"),
		}
	}

	frag := &model.OverlayFragment{
		ID:       model.CustomFragmentID,
		Category: "custom",
		Name:     "Custom patches",
	}
	found := false

	if patch, ok, err := loadPatch(filepath.Join(customDir, patchFileName)); err != nil {
		return nil, err
	} else if ok {
		frag.ConfigPatch = patch
		found = true
	}

	if doc, ok, err := loadCompose(customDir); err != nil {
		return nil, err
	} else if ok {
		frag.ServiceFragment = doc
		found = true
	}

	envPath := filepath.Join(customDir, envFileName)
	if data, err := os.ReadFile(envPath); err == nil {
		entries, parseErr := catalog.ParseEnv(data, model.CustomFragmentID)
		if parseErr != nil {
			return nil, &model.CustomPatchError{File: envPath, Err: parseErr}
		}
		frag.EnvDefaults = entries
		found = found || len(entries) > 0
	} else if !os.IsNotExist(err) {
		return nil, &model.CustomPatchError{File: envPath, Err: err}
	}

	files, err := loadExtraFiles(filepath.Join(customDir, filesDirName))
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		frag.AuxFiles = files
		found = true
	}

	if !found {
		return nil, nil
	}
	return frag, nil
}

// loadPatch reads and parses the devcontainer patch, if present.
func loadPatch(path string) (map[string]any, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &model.CustomPatchError{File: path, Err: err}
	}
	var patch map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &patch); err != nil {
		return nil, false, &model.CustomPatchError{File: path, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	return patch, true, nil
}

// loadCompose reads the compose fragment. Both compose.yaml and the
// docker-style compose.override.yaml name are accepted; when both exist,
// compose.override.yaml wins since that is the conventional override name.
func loadCompose(customDir string) (map[string]any, bool, error) {
	for _, name := range []string{composeOverrideFileName, composeFileName} {
		path := filepath.Join(customDir, name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, false, &model.CustomPatchError{File: path, Err: err}
		}
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, false, &model.CustomPatchError{File: path, Err: fmt.Errorf("invalid YAML: %w", err)}
		}
		return doc, true, nil
	}
	return nil, false, nil
}

// loadExtraFiles reads the files/ subtree verbatim, sorted by path.
func loadExtraFiles(dir string) ([]model.AuxFile, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &model.CustomPatchError{File: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &model.CustomPatchError{File: dir, Err: fmt.Errorf("not a directory")}
	}

	var files []model.AuxFile
	walkErr := filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
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
	if walkErr != nil {
		return nil, &model.CustomPatchError{File: dir, Err: walkErr}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
