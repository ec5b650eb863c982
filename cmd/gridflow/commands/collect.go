package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/gridflow/internal/ingest"
	"github.com/wonny/gridflow/internal/orchestrator"
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a collection job",
	Long: `Collects one dataset over a date range, validates every daily batch,
and stores passing batches as new partition versions.

Failed days are reported individually; re-run with the same range to
retry them, succeeded days simply gain a fresh version.

Example:
  go run ./cmd/gridflow collect --source pjm --data-type rt_hrl_lmps --from 2024-01-01 --to 2024-01-03
  go run ./cmd/gridflow collect --source noaa --data-type ghcnd_daily --from 2024-01-01
  go run ./cmd/gridflow collect --source eia --data-type fuel_prices --from 2024-01-01 --timeout 30m`,
	RunE: runCollect,
}

var (
	collectSource   string
	collectDataType string
	collectFrom     string
	collectTo       string
	collectTimeout  time.Duration
)

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().StringVar(&collectSource, "source", "", "source id (pjm|noaa|eia)")
	collectCmd.Flags().StringVar(&collectDataType, "data-type", "", "dataset to collect")
	collectCmd.Flags().StringVar(&collectFrom, "from", "", "range start (YYYY-MM-DD)")
	collectCmd.Flags().StringVar(&collectTo, "to", "", "range end (YYYY-MM-DD), defaults to --from")
	collectCmd.Flags().DurationVar(&collectTimeout, "timeout", 0, "job deadline (0 = none)")

	collectCmd.MarkFlagRequired("source")
	collectCmd.MarkFlagRequired("data-type")
	collectCmd.MarkFlagRequired("from")
}

func runCollect(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	from, err := time.Parse("2006-01-02", collectFrom)
	if err != nil {
		return fmt.Errorf("invalid --from date (expected YYYY-MM-DD): %w", err)
	}
	to := from
	if collectTo != "" {
		to, err = time.Parse("2006-01-02", collectTo)
		if err != nil {
			return fmt.Errorf("invalid --to date (expected YYYY-MM-DD): %w", err)
		}
	}

	dateRange, err := ingest.NewDateRange(from, to)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if collectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, collectTimeout)
		defer cancel()
	}

	job := orchestrator.NewJob(collectSource, collectDataType, dateRange)
	result := app.orch.Run(ctx, job)

	PrintJobResult(result)

	if result.Status == orchestrator.StatusFailed {
		return fmt.Errorf("collection failed: %s", result.Error)
	}
	return nil
}
