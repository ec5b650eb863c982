// Package jobs holds the scheduled job implementations.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/gridflow/internal/ingest"
	"github.com/wonny/gridflow/internal/orchestrator"
	"github.com/wonny/gridflow/pkg/logger"
	"github.com/wonny/gridflow/pkg/redis"
)

const defaultLookbackDays = 3

// CollectionJob collects every dataset of one source on a schedule. The
// date range starts at the checkpoint when one exists, falling back to a
// fixed lookback, and always ends at yesterday: today's data is still
// accumulating upstream and would score poorly on completeness.
type CollectionJob struct {
	orch        *orchestrator.Orchestrator
	checkpoints *redis.Checkpoints
	logger      *logger.Logger

	sourceID string
	schedule string
	timeout  time.Duration
	lookback int
}

// NewCollectionJob creates a scheduled collection job for one source.
func NewCollectionJob(orch *orchestrator.Orchestrator, cp *redis.Checkpoints, log *logger.Logger, sourceID, schedule string, timeout time.Duration) *CollectionJob {
	return &CollectionJob{
		orch:        orch,
		checkpoints: cp,
		logger:      log,
		sourceID:    sourceID,
		schedule:    schedule,
		timeout:     timeout,
		lookback:    defaultLookbackDays,
	}
}

// Name returns the job name.
func (j *CollectionJob) Name() string {
	return fmt.Sprintf("collect_%s", j.sourceID)
}

// Schedule returns the cron schedule expression.
func (j *CollectionJob) Schedule() string {
	return j.schedule
}

// Timeout bounds one scheduled run.
func (j *CollectionJob) Timeout() time.Duration {
	return j.timeout
}

// Run collects every dataset of the source up to yesterday.
func (j *CollectionJob) Run(ctx context.Context) error {
	collector, ok := j.orch.Collector(j.sourceID)
	if !ok {
		return fmt.Errorf("no collector registered for source %q", j.sourceID)
	}

	end := ingest.Day(time.Now().UTC().AddDate(0, 0, -1))

	var failed []string
	for _, dataType := range collector.DataTypes() {
		start, err := j.rangeStart(ctx, dataType, end)
		if err != nil {
			j.logger.WithError(err).WithField("data_type", dataType).Warn("Checkpoint lookup failed, using lookback")
		}
		if start.After(end) {
			j.logger.WithField("data_type", dataType).Debug("Dataset already up to date")
			continue
		}

		r, err := ingest.NewDateRange(start, end)
		if err != nil {
			return fmt.Errorf("build range for %s/%s: %w", j.sourceID, dataType, err)
		}

		result := j.orch.Run(ctx, orchestrator.NewJob(j.sourceID, dataType, r))
		if result.Status == orchestrator.StatusFailed {
			failed = append(failed, fmt.Sprintf("%s (%s)", dataType, result.Error))
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("collection failed for %d dataset(s): %v", len(failed), failed)
	}
	return nil
}

// rangeStart picks the first day to collect: the day after the checkpoint,
// or the lookback window when no checkpoint exists.
func (j *CollectionJob) rangeStart(ctx context.Context, dataType string, end time.Time) (time.Time, error) {
	fallback := end.AddDate(0, 0, -(j.lookback - 1))
	if j.checkpoints == nil {
		return fallback, nil
	}

	last, ok, err := j.checkpoints.Get(ctx, j.sourceID, dataType)
	if err != nil || !ok {
		return fallback, err
	}
	return last.AddDate(0, 0, 1), nil
}
