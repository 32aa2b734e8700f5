// Package main is the entry point for the vpcmesh CLI.
//
// vpcmesh provisions networks in several regions, peers them and installs
// the routes between them, one deployment unit at a time.
//
// Commands: init, plan, apply, status, destroy, version.
//
// For detailed usage information, run:
//
//	vpcmesh --help
package main

import (
	"fmt"
	"os"

	"github.com/imamik/vpcmesh/cmd/vpcmesh/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
