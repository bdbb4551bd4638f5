// Package main is the entry point for the superpose CLI.
//
// The binary composes reproducible dev container configurations from a
// template plus overlays. It delegates all functionality to the
// internal/cli package, which defines cobra commands.
package main

import (
	"github.com/mmr-tortoise/superpose/internal/cli"
)

// version, commit, and date are set by GoReleaser at build time via
// ldflags. During development they default to "dev", "none", "unknown".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	rootCmd := cli.NewRootCommand()
	cli.Execute(rootCmd)
}
