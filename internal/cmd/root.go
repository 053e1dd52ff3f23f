// Package cmd implements the featd command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "featd",
	Short: "context-aware feature recommendation daemon",
	Long: `featd - context-aware feature recommendation daemon
  - ingests context snapshots and interaction events
  - serves ranked, explainable feature recommendations
  - tracks per-user feature discovery state`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(versionCmd)
}
