package main

import (
	"fmt"
	"os"

	"github.com/fermo-metabolomics/fermo-srv/internal/cli"
)

// Version is overridden at build time via LDFLAGS.
var Version = "v1.2.0-dev"

func main() {
	cli.Version = Version

	rootCmd := cli.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
