// Package merge implements the deterministic deep-merge engine for the
// superpose CLI.
//
// The engine merges an ordered list of overlay fragments (template first,
// overlays in manifest order, the synthetic custom patch last) into one
// MergedConfig. Documents are lifted into an explicit tagged-variant value
// model (Scalar | List | KeyedList | Map) with one merge function per
// variant pairing, so a type mismatch between two fragments becomes a
// detectable SchemaError instead of undefined behavior.
//
// Merge rules:
//   - Scalar keys: later fragment wins.
//   - Scalar arrays: concatenated, deduplicated preserving first-seen order.
//   - Keyed-object arrays (mounts, long-syntax ports): merged by derived
//     key; entries sharing a key deep-merge, new keys append.
//   - Compose services: merged per service name; environment blocks merge
//     as maps; a host-port collision between two different overlays'
//     services is a ConflictError, never a silent overwrite.
//   - Env defaults: merged by key in fragment order; a redefinition is a
//     warning unless the fragment flags the key as an intentional override.
//
// The engine records, for every leaf in the result, which fragment last
// wrote it. This provenance map is what lets regeneration diffs and the
// custom patch applier reason about ownership.
package merge
