// Package ports implements port normalization and collision detection for
// the superpose CLI.
//
// Overlays declare conventional ports (5432 for postgres, 6379 for redis);
// the allocator applies the manifest's global offset to compute actual
// host ports and fails fast on actual-port collisions, naming both
// offending overlays. It never renumbers silently (renumbering would
// break the documented connection strings shown to the user) and it never
// probes the network: URL and connection-string derivation is a pure
// function of protocol, service alias, and actual port.
package ports
