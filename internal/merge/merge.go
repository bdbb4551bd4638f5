package merge

import (
	"fmt"

	"github.com/mmr-tortoise/superpose/internal/model"
)

// Engine deterministically deep-merges an ordered list of overlay fragments
// into one MergedConfig. The engine is stateless between Merge calls; the
// key rules are fixed at construction so every merge in a process applies
// identical array semantics.
type Engine struct {
	rules []KeyRule
}

// NewEngine creates a merge engine with the default key rules
// (devcontainer mounts keyed by target, long-syntax ports by target port).
func NewEngine() *Engine {
	return &Engine{rules: defaultKeyRules}
}

// Merge composes the ordered fragments into a single MergedConfig.
//
// Fragment order is priority order: the template comes first, overlays
// follow in manifest order, and the synthetic custom patch (if any) is
// last. Later fragments win scalar conflicts; the custom patch therefore
// overrides everything, which is the mechanism that makes regeneration
// non-destructive.
//
// A fragment failing structural validation aborts the entire merge with a
// SchemaError naming the offending fragment and path. A compose host-port
// collision between two different overlays aborts with a ConflictError
// naming both. Port allocation is NOT performed here; the engine only
// collects declarations; see the ports package.
func (e *Engine) Merge(fragments []model.OverlayFragment) (*model.MergedConfig, error) {
	merged := &model.MergedConfig{
		Provenance: make(map[string]string),
	}

	dev := Value{Kind: KindMap, Map: map[string]Value{}}
	compose := newComposeState(e.rules)
	auxIndex := make(map[string]int)

	for i := range fragments {
		frag := &fragments[i]
		if frag.ID == "" {
			return nil, &model.SchemaError{
				Source:  fmt.Sprintf("fragment #%d", i),
				Message: "fragment has no id",
			}
		}
		if err := model.ValidatePortDeclarations(frag.Ports, frag.ID); err != nil {
			return nil, err
		}

		// Devcontainer config patch: classify into the value model and
		// deep-merge into the accumulated document.
		if frag.ConfigPatch != nil {
			patch, err := classify(mapToAny(frag.ConfigPatch), "", frag.ID, e.rules)
			if err != nil {
				return nil, err
			}
			dev, err = e.mergeValues(dev, patch, "devcontainer", frag.ID, merged.Provenance)
			if err != nil {
				return nil, err
			}
		}

		// Compose service fragment: merged per service name with host-port
		// conflict detection.
		if frag.ServiceFragment != nil {
			warnings, err := compose.apply(frag, merged.Provenance, e)
			if err != nil {
				return nil, err
			}
			merged.Warnings = append(merged.Warnings, warnings...)
		}

		// Env defaults: merged by key in fragment order.
		var envWarnings []string
		merged.Env, envWarnings = mergeEnvDefaults(merged.Env, frag)
		merged.Warnings = append(merged.Warnings, envWarnings...)

		// Aux files: a later fragment contributing the same path replaces
		// the earlier file, with provenance recording the replacement.
		for _, file := range frag.AuxFiles {
			if idx, ok := auxIndex[file.Path]; ok {
				merged.AuxFiles[idx] = file
			} else {
				auxIndex[file.Path] = len(merged.AuxFiles)
				merged.AuxFiles = append(merged.AuxFiles, file)
			}
			merged.Provenance["aux."+file.Path] = frag.ID
		}
	}

	devRaw, ok := toRaw(dev).(map[string]any)
	if !ok {
		devRaw = map[string]any{}
	}
	merged.Devcontainer = devRaw
	merged.Compose = compose.raw()
	return merged, nil
}

// mergeValues merges src into dst according to the variant pairing rules.
// Mismatched kinds at the same path are a SchemaError attributed to the
// fragment that contributed src.
func (e *Engine) mergeValues(dst, src Value, path, srcID string, prov map[string]string) (Value, error) {
	if dst.Kind == KindInvalid {
		recordProvenance(src, path, srcID, prov)
		return src, nil
	}
	if dst.Kind != src.Kind {
		return Value{}, &model.SchemaError{
			Source:  srcID,
			Path:    path,
			Message: fmt.Sprintf("cannot merge %s into %s declared by an earlier fragment", src.Kind, dst.Kind),
		}
	}

	switch src.Kind {
	case KindScalar:
		// Later fragment wins.
		prov[path] = srcID
		return src, nil

	case KindList:
		return mergeLists(dst, src, path, srcID, prov), nil

	case KindKeyedList:
		return e.mergeKeyedLists(dst, src, path, srcID, prov)

	case KindMap:
		out := make(map[string]Value, len(dst.Map)+len(src.Map))
		for key, v := range dst.Map {
			out[key] = v
		}
		for _, key := range sortedKeys(src.Map) {
			childPath := joinPath(path, key)
			existing, ok := out[key]
			if !ok {
				out[key] = src.Map[key]
				recordProvenance(src.Map[key], childPath, srcID, prov)
				continue
			}
			mergedChild, err := e.mergeValues(existing, src.Map[key], childPath, srcID, prov)
			if err != nil {
				return Value{}, err
			}
			out[key] = mergedChild
		}
		return Value{Kind: KindMap, Map: out}, nil

	default:
		return Value{}, &model.SchemaError{
			Source:  srcID,
			Path:    path,
			Message: "invalid value kind",
		}
	}
}

// mergeLists concatenates dst and src, deduplicating by canonical identity
// while preserving first-seen order.
func mergeLists(dst, src Value, path, srcID string, prov map[string]string) Value {
	seen := make(map[string]bool, len(dst.List)+len(src.List))
	out := make([]Value, 0, len(dst.List)+len(src.List))
	for _, item := range dst.List {
		id := canonical(item)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, item)
	}
	appended := false
	for _, item := range src.List {
		id := canonical(item)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, item)
		appended = true
	}
	if appended {
		prov[path] = srcID
	}
	return Value{Kind: KindList, List: out}
}

// mergeKeyedLists merges entries sharing a derived key and appends new keys
// in src order.
func (e *Engine) mergeKeyedLists(dst, src Value, path, srcID string, prov map[string]string) (Value, error) {
	index := make(map[string]int, len(dst.Entries))
	out := make([]KeyedEntry, len(dst.Entries))
	copy(out, dst.Entries)
	for i, entry := range out {
		index[entry.Key] = i
	}

	for _, entry := range src.Entries {
		entryPath := fmt.Sprintf("%s[%s]", path, entry.Key)
		if i, ok := index[entry.Key]; ok {
			mergedEntry, err := e.mergeValues(out[i].Value, entry.Value, entryPath, srcID, prov)
			if err != nil {
				return Value{}, err
			}
			out[i].Value = mergedEntry
			continue
		}
		index[entry.Key] = len(out)
		out = append(out, entry)
		recordProvenance(entry.Value, entryPath, srcID, prov)
	}
	return Value{Kind: KindKeyedList, Entries: out}, nil
}

// recordProvenance marks every leaf of a newly inserted subtree as written
// by the given fragment.
func recordProvenance(v Value, path, srcID string, prov map[string]string) {
	switch v.Kind {
	case KindMap:
		for _, key := range sortedKeys(v.Map) {
			recordProvenance(v.Map[key], joinPath(path, key), srcID, prov)
		}
	case KindKeyedList:
		for _, entry := range v.Entries {
			recordProvenance(entry.Value, fmt.Sprintf("%s[%s]", path, entry.Key), srcID, prov)
		}
	default:
		prov[path] = srcID
	}
}

// mapToAny widens a typed map for classification. The generic trees loaded
// from JSON/YAML are already map[string]any; this keeps the call sites tidy.
func mapToAny(m map[string]any) any {
	return m
}
