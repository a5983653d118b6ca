// Package cli provides the command-line interface for fermo-srv.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fermo-metabolomics/fermo-srv/internal/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool

	// Global logger
	logger zerolog.Logger
)

// Version information - set by main package at startup. The release value is
// injected via LDFLAGS; the main.go constant is the non-release fallback.
var Version = "v0.0.0-dev"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fermo-srv",
		Short: "FERMO analysis submission service",
		Long: `fermo-srv ` + Version + `
Submission service for FERMO metabolomics analyses: accepts uploads and
parameter forms over HTTP, validates them into a canonical parameter
document and executes the analysis engine on a background worker pool.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.New(verbose)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
