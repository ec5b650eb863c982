package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gridflow",
	Short: "Multi-source grid data collection pipeline",
	Long: `gridflow - time-series collection, validation, and partitioned storage

Collects market, weather, and fuel data from PJM, NOAA, and EIA,
validates every batch against per-dataset rule sets, and stores
passing batches as versioned daily partitions.

Usage:
  go run ./cmd/gridflow [command]

Examples:
  go run ./cmd/gridflow collect --source pjm --data-type rt_hrl_lmps --from 2024-01-01 --to 2024-01-03
  go run ./cmd/gridflow api
  go run ./cmd/gridflow scheduler start
  go run ./cmd/gridflow status`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
