// env.go merges environment-variable defaults across fragments.
//
// Env files are ordered documents, not maps: the generated .env preserves
// the order keys were first introduced, grouped by contributing fragment.
// Merging is by key in fragment order: a later fragment redefining an
// existing key wins, but the redefinition is surfaced as a warning unless
// the fragment explicitly flags the key as an intentional override (custom
// patches are always intentional).
package merge

import (
	"fmt"

	"github.com/mmr-tortoise/superpose/internal/model"
)

// mergeEnvDefaults folds one fragment's env defaults into the accumulated
// entries. Returns the updated slice plus any redefinition warnings.
func mergeEnvDefaults(existing []model.EnvEntry, frag *model.OverlayFragment) ([]model.EnvEntry, []string) {
	if len(frag.EnvDefaults) == 0 {
		return existing, nil
	}

	index := make(map[string]int, len(existing))
	for i, entry := range existing {
		index[entry.Key] = i
	}

	intentional := make(map[string]bool, len(frag.EnvOverrides))
	for _, key := range frag.EnvOverrides {
		intentional[key] = true
	}

	var warnings []string
	for _, entry := range frag.EnvDefaults {
		i, redefined := index[entry.Key]
		if !redefined {
			index[entry.Key] = len(existing)
			existing = append(existing, model.EnvEntry{
				Key:    entry.Key,
				Value:  entry.Value,
				Source: frag.ID,
			})
			continue
		}

		previous := existing[i]
		if previous.Value == entry.Value && previous.Source == frag.ID {
			continue
		}
		if !frag.IsCustom() && !intentional[entry.Key] {
			warnings = append(warnings, fmt.Sprintf(
				"overlay %q redefines env key %s previously set by %q; flag it in envOverrides if intentional",
				frag.ID, entry.Key, previous.Source))
		}
		existing[i] = model.EnvEntry{
			Key:    entry.Key,
			Value:  entry.Value,
			Source: frag.ID,
		}
	}
	return existing, warnings
}
