// Package manifest persists and loads the selection record
// (superposition.json) that makes regeneration reproducible.
//
// The store is deliberately dumb: it round-trips the manifest verbatim.
// Overlay ordering is fixed once, at init time, by a stable sort on
// (category, id); regeneration preserves the persisted order so repeated
// merges with the same catalog produce identical output.
package manifest
