package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gridflow/pkg/logger"
)

type stubJob struct {
	name     string
	schedule string
	timeout  time.Duration
	runs     atomic.Int32
	err      error
	block    time.Duration
}

func (j *stubJob) Name() string           { return j.name }
func (j *stubJob) Schedule() string       { return j.schedule }
func (j *stubJob) Timeout() time.Duration { return j.timeout }

func (j *stubJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block > 0 {
		select {
		case <-time.After(j.block):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func newScheduler() *Scheduler {
	return New(logger.NewNop())
}

func waitForRuns(t *testing.T, s *Scheduler, name string, n int) *History {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		history, err := s.JobHistory(name)
		require.NoError(t, err)
		if len(history.Records) >= n {
			return history
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never recorded %d runs", name, n)
	return nil
}

func TestScheduler_AddJob(t *testing.T) {
	s := newScheduler()

	job := &stubJob{name: "collect_pjm", schedule: "0 30 6 * * *"}
	require.NoError(t, s.AddJob(job))

	err := s.AddJob(&stubJob{name: "collect_pjm", schedule: "0 0 12 * * *"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	err = s.AddJob(&stubJob{name: "collect_bad", schedule: "not a cron expression"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule job")
}

func TestScheduler_RunJobRecordsHistory(t *testing.T) {
	s := newScheduler()

	job := &stubJob{name: "collect_pjm", schedule: "0 30 6 * * *"}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("collect_pjm"))
	history := waitForRuns(t, s, "collect_pjm", 1)

	record := history.Latest(1)[0]
	assert.Equal(t, "collect_pjm", record.JobName)
	assert.True(t, record.Success)
	assert.Empty(t, record.Error)
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestScheduler_RunJobRecordsFailure(t *testing.T) {
	s := newScheduler()

	job := &stubJob{name: "collect_eia", schedule: "@daily", err: errors.New("provider unreachable")}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("collect_eia"))
	history := waitForRuns(t, s, "collect_eia", 1)

	record := history.Latest(1)[0]
	assert.False(t, record.Success)
	assert.Equal(t, "provider unreachable", record.Error)
}

func TestScheduler_RunJobUnknown(t *testing.T) {
	s := newScheduler()
	err := s.RunJob("nonsense")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestScheduler_TimeoutCancelsRun(t *testing.T) {
	s := newScheduler()

	job := &stubJob{
		name:     "collect_noaa",
		schedule: "@daily",
		timeout:  20 * time.Millisecond,
		block:    5 * time.Second,
	}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("collect_noaa"))
	history := waitForRuns(t, s, "collect_noaa", 1)

	record := history.Latest(1)[0]
	assert.False(t, record.Success)
	assert.Contains(t, record.Error, "deadline")
	assert.Less(t, record.Duration, time.Second)
}

func TestScheduler_CronTriggersJob(t *testing.T) {
	s := newScheduler()

	job := &stubJob{name: "collect_pjm", schedule: "* * * * * *"} // every second
	require.NoError(t, s.AddJob(job))

	s.Start()
	defer s.Stop()

	waitForRuns(t, s, "collect_pjm", 1)
	assert.GreaterOrEqual(t, job.runs.Load(), int32(1))
}

func TestScheduler_JobsAndStats(t *testing.T) {
	s := newScheduler()

	require.NoError(t, s.AddJob(&stubJob{name: "collect_pjm", schedule: "@daily"}))
	require.NoError(t, s.AddJob(&stubJob{name: "collect_eia", schedule: "@daily", err: errors.New("boom")}))

	assert.Equal(t, []string{"collect_eia", "collect_pjm"}, s.Jobs())

	require.NoError(t, s.RunJob("collect_pjm"))
	require.NoError(t, s.RunJob("collect_eia"))
	waitForRuns(t, s, "collect_pjm", 1)
	waitForRuns(t, s, "collect_eia", 1)

	stats := s.Stats()
	require.Len(t, stats, 2)

	pjm := stats["collect_pjm"]
	assert.Equal(t, 1, pjm.TotalRuns)
	assert.Equal(t, 1, pjm.SuccessCount)
	assert.Equal(t, 1.0, pjm.SuccessRate)
	assert.NotNil(t, pjm.LastSuccess)
	assert.Nil(t, pjm.LastFailure)

	eia := stats["collect_eia"]
	assert.Equal(t, 1, eia.FailureCount)
	assert.Equal(t, 0.0, eia.SuccessRate)
	assert.NotNil(t, eia.LastFailure)
}

func TestScheduler_StatsFindLastOfEachKind(t *testing.T) {
	s := newScheduler()
	require.NoError(t, s.AddJob(&stubJob{name: "collect_pjm", schedule: "@daily"}))

	// A success followed by two failures: the last success is still
	// reported even though the most recent run failed.
	successAt := time.Date(2024, 1, 2, 6, 30, 0, 0, time.UTC)
	failureAt := successAt.Add(48 * time.Hour)
	s.history["collect_pjm"].Add(RunRecord{JobName: "collect_pjm", StartTime: successAt, Success: true})
	s.history["collect_pjm"].Add(RunRecord{JobName: "collect_pjm", StartTime: successAt.Add(24 * time.Hour), Success: false})
	s.history["collect_pjm"].Add(RunRecord{JobName: "collect_pjm", StartTime: failureAt, Success: false})

	stats := s.Stats()["collect_pjm"]

	require.NotNil(t, stats.LastRun)
	assert.True(t, stats.LastRun.Equal(failureAt))
	require.NotNil(t, stats.LastSuccess)
	assert.True(t, stats.LastSuccess.Equal(successAt))
	require.NotNil(t, stats.LastFailure)
	assert.True(t, stats.LastFailure.Equal(failureAt))
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 2, stats.FailureCount)
}

func TestHistory_Limit(t *testing.T) {
	h := &History{}
	for i := 0; i < historyLimit+20; i++ {
		h.Add(RunRecord{JobName: fmt.Sprintf("run-%d", i), Success: i%2 == 0})
	}

	assert.Len(t, h.Records, historyLimit)
	assert.Equal(t, "run-20", h.Records[0].JobName, "oldest records discarded")

	latest := h.Latest(3)
	require.Len(t, latest, 3)
	assert.Equal(t, fmt.Sprintf("run-%d", historyLimit+19), latest[2].JobName)
}

func TestHistory_SuccessRate(t *testing.T) {
	h := &History{}
	assert.Equal(t, 0.0, h.SuccessRate())

	h.Add(RunRecord{Success: true})
	h.Add(RunRecord{Success: true})
	h.Add(RunRecord{Success: false})

	assert.InDelta(t, 2.0/3.0, h.SuccessRate(), 1e-9)
	assert.Len(t, h.Failed(), 1)
}
