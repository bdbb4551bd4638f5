// Package generate drives the end-to-end generation pipeline: it loads the
// selected fragments from the catalog, merges them, allocates ports, applies
// the user's custom patches, and writes the composed configuration tree.
//
// The controller is a small state machine (Merging, Allocating,
// ApplyingCustomPatches, WritingOutput). Every phase operates on in-memory
// data; nothing touches the output directory until the final phase, which
// first renames any existing tree to a timestamped backup and restores it if
// a write fails. A regeneration with an unchanged manifest, catalog, and
// custom directory produces byte-identical artifacts.
package generate
