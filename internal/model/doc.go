// Package model defines the domain types and value objects for the
// superpose CLI.
//
// All entities in this package represent the core data structures of the
// composition pipeline: the manifest recording a user's overlay selections,
// the fragment bundle each overlay contributes, normalized port allocations,
// and the merged configuration that the generator writes to disk. The error
// taxonomy (schema / conflict / I/O / custom-patch) also lives here so every
// package can classify failures without import cycles.
package model
