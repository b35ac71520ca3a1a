// Package main is the single-binary entrypoint for Jasper.
package main

import "github.com/jasper-companion/jasper/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
