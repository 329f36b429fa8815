// Package main is the entry point for the gwt CLI.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/gwt/internal/cli"
)

// Version information, injected at build time.
var Version = "dev"

func main() {
	rootCmd := cli.NewRootCommand()
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gwt:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
