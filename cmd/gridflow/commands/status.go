package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored partitions",
	Long: `Walks the partition store and prints every partition with its
versions and latest manifest.

Example:
  go run ./cmd/gridflow status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	infos, err := app.store.List(context.Background())
	if err != nil {
		return fmt.Errorf("list partitions: %w", err)
	}

	PrintDoubleSeparator()
	fmt.Printf("  Partition store: %s\n", app.cfg.StorageRoot)
	PrintSeparator()

	if len(infos) == 0 {
		fmt.Println("  (no partitions)")
		return nil
	}

	for _, info := range infos {
		line := fmt.Sprintf("%s  versions=%d", info.Partition, len(info.Versions))
		if info.Latest != nil {
			line += fmt.Sprintf("  latest=v%d rows=%d score=%.3f",
				info.Latest.Version, info.Latest.Rows, info.Latest.QualityScore)
			if !info.Latest.Pass {
				line += " (below threshold)"
			}
		}
		fmt.Println("  " + line)
	}
	PrintSeparator()
	fmt.Printf("  %d partition(s)\n", len(infos))

	return nil
}
