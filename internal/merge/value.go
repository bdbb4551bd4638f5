// value.go defines the tagged-variant value model the merge engine operates
// on, plus the classification of generic JSON/YAML trees into it.
//
// The loosely-typed documents coming out of encoding/json and yaml.v3 are
// lifted into Value before any merging happens. Classification is where
// array semantics are decided: an array of objects at a path with a
// registered key rule becomes a KeyedList (merged by derived key), every
// other array is a List (concatenate + dedupe).
package merge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mmr-tortoise/superpose/internal/model"
)

// Kind enumerates the variants of the value model.
type Kind int

const (
	// KindInvalid is the zero Kind; it never appears in a classified tree.
	KindInvalid Kind = iota

	// KindScalar is a string, number, boolean, or null.
	KindScalar

	// KindList is an array merged by concatenation + order-preserving dedupe.
	KindList

	// KindKeyedList is an array of objects merged by a derived key.
	KindKeyedList

	// KindMap is an object merged per key.
	KindMap
)

// String returns a human-readable kind name for error messages.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindKeyedList:
		return "keyed list"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// Value is one node of a classified document tree. Exactly one of the
// payload fields is populated, selected by Kind.
type Value struct {
	Kind    Kind
	Scalar  any
	List    []Value
	Entries []KeyedEntry
	Map     map[string]Value
}

// KeyedEntry is one element of a KeyedList: the derived merge key plus the
// entry's value (always a map in practice). Entries preserve insertion
// order so output remains deterministic.
type KeyedEntry struct {
	Key   string
	Value Value
}

// KeyRule registers a derived merge key for object arrays at a given path.
// Suffix is matched against the dotted path of the array ("mounts",
// "services.db.ports", ...); Field names the object field whose value
// becomes the merge key.
type KeyRule struct {
	Suffix string
	Field  string
}

// defaultKeyRules covers the keyed arrays that appear in devcontainer and
// compose documents: devcontainer mounts are keyed by mount target, compose
// long-syntax port objects by their container-side target port, and compose
// long-syntax volume objects by their mount target. Short-syntax string
// entries fall back to plain List semantics.
var defaultKeyRules = []KeyRule{
	{Suffix: "mounts", Field: "target"},
	{Suffix: "ports", Field: "target"},
	{Suffix: "volumes", Field: "target"},
}

// keyRuleFor returns the matching rule for a path, or nil. A rule matches
// when the path's last segment equals the suffix, or the path ends with
// "." + suffix.
func keyRuleFor(rules []KeyRule, path string) *KeyRule {
	for i := range rules {
		r := &rules[i]
		if path == r.Suffix || strings.HasSuffix(path, "."+r.Suffix) {
			return r
		}
	}
	return nil
}

// classify lifts a generic JSON/YAML tree into the value model. The source
// id is carried only for error attribution.
func classify(raw any, path, source string, rules []KeyRule) (Value, error) {
	switch v := raw.(type) {
	case map[string]any:
		m := make(map[string]Value, len(v))
		for key, child := range v {
			cv, err := classify(child, joinPath(path, key), source, rules)
			if err != nil {
				return Value{}, err
			}
			m[key] = cv
		}
		return Value{Kind: KindMap, Map: m}, nil

	case []any:
		// An array of objects at a registered path becomes a KeyedList,
		// provided every element actually carries the key field. Mixed or
		// keyless arrays fall back to plain List semantics.
		if rule := keyRuleFor(rules, path); rule != nil {
			if entries, ok := classifyKeyed(v, path, source, rule, rules); ok {
				return Value{Kind: KindKeyedList, Entries: entries}, nil
			}
		}
		list := make([]Value, 0, len(v))
		for i, child := range v {
			cv, err := classify(child, fmt.Sprintf("%s[%d]", path, i), source, rules)
			if err != nil {
				return Value{}, err
			}
			list = append(list, cv)
		}
		return Value{Kind: KindList, List: list}, nil

	case nil, string, bool, float64, float32, int, int32, int64, uint, uint32, uint64:
		return Value{Kind: KindScalar, Scalar: normalizeScalar(v)}, nil

	default:
		return Value{}, &model.SchemaError{
			Source:  source,
			Path:    path,
			Message: fmt.Sprintf("unsupported value type %T", raw),
		}
	}
}

// classifyKeyed attempts to classify an array as a KeyedList under the given
// rule. Returns ok=false when any element is not an object or lacks the key
// field, in which case the caller falls back to List classification.
func classifyKeyed(items []any, path, source string, rule *KeyRule, rules []KeyRule) ([]KeyedEntry, bool) {
	entries := make([]KeyedEntry, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		keyRaw, ok := obj[rule.Field]
		if !ok {
			return nil, false
		}
		key := fmt.Sprintf("%v", normalizeScalar(keyRaw))
		cv, err := classify(obj, fmt.Sprintf("%s[%s]", path, key), source, rules)
		if err != nil {
			return nil, false
		}
		entries = append(entries, KeyedEntry{Key: key, Value: cv})
	}
	return entries, true
}

// normalizeScalar folds the integer variants yaml.v3 produces into the
// float64 representation encoding/json uses, so identical numbers from JSON
// and YAML fragments compare (and deduplicate) as equal.
func normalizeScalar(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

// toRaw converts a Value back into the generic tree form used for
// serialization. Numbers that are whole are emitted as int64 so rendered
// JSON/YAML reads "5432" rather than "5432.000000".
func toRaw(v Value) any {
	switch v.Kind {
	case KindScalar:
		if f, ok := v.Scalar.(float64); ok && f == float64(int64(f)) {
			return int64(f)
		}
		return v.Scalar
	case KindList:
		out := make([]any, 0, len(v.List))
		for _, item := range v.List {
			out = append(out, toRaw(item))
		}
		return out
	case KindKeyedList:
		out := make([]any, 0, len(v.Entries))
		for _, entry := range v.Entries {
			out = append(out, toRaw(entry.Value))
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.Map))
		for key, child := range v.Map {
			out[key] = toRaw(child)
		}
		return out
	default:
		return nil
	}
}

// canonical returns a stable string identity for a value, used for
// order-preserving list deduplication. encoding/json sorts map keys, which
// makes the identity independent of map iteration order.
func canonical(v Value) string {
	data, err := json.Marshal(toRaw(v))
	if err != nil {
		// Classified values are always JSON-serializable; this branch is
		// unreachable in practice but must not panic the merge.
		return fmt.Sprintf("%#v", v)
	}
	return string(data)
}

// joinPath appends a key to a dotted path.
func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// sortedKeys returns the map's keys in sorted order. Merging iterates maps
// in sorted key order so provenance and error reporting are deterministic.
func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
