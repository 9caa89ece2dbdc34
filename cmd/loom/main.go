// Package main is the single-binary entrypoint for loom.
package main

import "github.com/loomworks/loom/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
