// Package catalog loads overlay fragment bundles from the catalog
// directory tree.
//
// The catalog is static input supplied by overlay authors. Each template
// lives under templates/<id>/ and each overlay under overlays/<id>/, both
// using the same bundle layout:
//
//	overlay.json          metadata: name, category, ports, envOverrides (JSONC)
//	devcontainer.json     config patch (JSONC; templates carry the base doc)
//	compose.yaml          service fragment (YAML)
//	defaults.env          environment defaults, order-preserving
//	files/                auxiliary files copied verbatim into the output
//
// Every file except overlay.json is optional. Fragments are loaded fresh
// on every run (the catalog may have evolved since the manifest was
// written) and unknown metadata fields are tolerated so a fragment schema
// gaining non-critical fields does not break older binaries. A manifest
// referencing an overlay id no longer present in the catalog is a hard
// ConflictError: silently dropping a previously applied overlay would
// silently change the user's environment.
package catalog
