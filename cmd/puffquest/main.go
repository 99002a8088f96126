// Package main is the single-binary entrypoint for PuffQuest.
// PuffQuest turns cutting down on cigarettes or vaping into a game.
package main

import "github.com/puffquest/puffquest/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
