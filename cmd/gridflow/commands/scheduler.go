package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/gridflow/internal/ingest/eia"
	"github.com/wonny/gridflow/internal/ingest/noaa"
	"github.com/wonny/gridflow/internal/ingest/pjm"
	"github.com/wonny/gridflow/internal/scheduler"
	"github.com/wonny/gridflow/internal/scheduler/jobs"
)

// Scheduled collection times, UTC. PJM settles hourly data overnight,
// NOAA GHCND posts daily summaries mid-morning, EIA publishes after
// market close.
var collectionSchedules = map[string]string{
	pjm.SourceID:  "0 30 6 * * *",
	noaa.SourceID: "0 0 14 * * *",
	eia.SourceID:  "0 0 22 * * *",
}

const collectionTimeout = 2 * time.Hour

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Manage scheduled collection",
	Long: `Starts the scheduler daemon or inspects its jobs.

Registered jobs:
  collect_pjm   - daily at 06:30 UTC
  collect_noaa  - daily at 14:00 UTC
  collect_eia   - daily at 22:00 UTC

Each run picks up from the dataset's checkpoint and collects through
yesterday.

Example:
  go run ./cmd/gridflow scheduler start
  go run ./cmd/gridflow scheduler list
  go run ./cmd/gridflow scheduler run collect_pjm
  go run ./cmd/gridflow scheduler status`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler daemon",
		RunE:  runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run a job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show job run statistics",
		RunE:  showJobStats,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== gridflow Scheduler ===")

	app, sched, err := initScheduler()
	if err != nil {
		return err
	}
	defer app.Close()

	sched.Start()

	fmt.Println("\n✅ Scheduler started")
	fmt.Println("\nRegistered jobs:")
	for _, name := range sched.Jobs() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	app, sched, err := initScheduler()
	if err != nil {
		return err
	}
	defer app.Close()

	fmt.Println("Registered jobs:")
	for _, name := range sched.Jobs() {
		fmt.Printf("  - %s\n", name)
	}

	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	app, sched, err := initScheduler()
	if err != nil {
		return err
	}
	defer app.Close()

	fmt.Printf("Running job: %s\n", jobName)

	if err := sched.RunJob(jobName); err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	// RunJob is asynchronous; give the run time to finish before the
	// process (and its connections) go away.
	waitForHistory(sched, jobName)
	return nil
}

// waitForHistory polls until the triggered run lands in history.
func waitForHistory(sched *scheduler.Scheduler, jobName string) {
	for {
		time.Sleep(time.Second)
		history, err := sched.JobHistory(jobName)
		if err != nil {
			return
		}
		if latest := history.Latest(1); len(latest) > 0 {
			record := latest[0]
			if record.Success {
				PrintSuccess(fmt.Sprintf("Job %s completed in %s", jobName, record.Duration))
			} else {
				PrintError(fmt.Sprintf("Job %s failed: %s", jobName, record.Error))
			}
			return
		}
	}
}

func showJobStats(cmd *cobra.Command, args []string) error {
	app, sched, err := initScheduler()
	if err != nil {
		return err
	}
	defer app.Close()

	stats := sched.Stats()

	fmt.Println("Job Statistics:")
	fmt.Println()

	for _, name := range sched.Jobs() {
		stat := stats[name]
		fmt.Printf("📊 %s\n", name)
		PrintKeyValue("Schedule", stat.Schedule, 12)
		PrintKeyValue("Total Runs", fmt.Sprintf("%d", stat.TotalRuns), 12)
		PrintKeyValue("Success", fmt.Sprintf("%d (%.1f%%)", stat.SuccessCount, stat.SuccessRate*100), 12)
		PrintKeyValue("Failures", fmt.Sprintf("%d", stat.FailureCount), 12)
		if stat.LastRun != nil {
			PrintKeyValue("Last Run", stat.LastRun.Format("2006-01-02 15:04:05"), 12)
		}
		fmt.Println()
	}

	return nil
}

func initScheduler() (*app, *scheduler.Scheduler, error) {
	a, err := newApp()
	if err != nil {
		return nil, nil, err
	}

	sched := scheduler.New(a.log)

	for _, sourceID := range a.orch.Sources() {
		schedule, ok := collectionSchedules[sourceID]
		if !ok {
			continue
		}
		job := jobs.NewCollectionJob(a.orch, a.checkpoints, a.log, sourceID, schedule, collectionTimeout)
		if err := sched.AddJob(job); err != nil {
			a.Close()
			return nil, nil, fmt.Errorf("register job for %s: %w", sourceID, err)
		}
	}

	return a, sched, nil
}
