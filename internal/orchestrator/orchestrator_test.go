package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gridflow/internal/ingest"
	"github.com/wonny/gridflow/internal/store"
	"github.com/wonny/gridflow/internal/validate"
	"github.com/wonny/gridflow/pkg/logger"
)

const testRuleSet = `source: pjm
data_type: rt_hrl_lmps
strictness: lenient
time_indexed: true
timestamp_field: timestamp
pass_threshold: 0.95
required_fields:
  - timestamp
  - node_id
  - total_lmp
field_types:
  timestamp: timestamp
  node_id: string
  total_lmp: number
ranges:
  total_lmp:
    min: -1000
    max: 5000
temporal:
  expected_interval: 1h
  max_gap: 2h
  duplicate_tolerance: 0
freshness_bound: 48h
weights:
  completeness: 0.4
  validity: 0.3
  consistency: 0.3
  timeliness: 0.0
`

type fakeCollector struct {
	source    string
	dataTypes []string
	fetch     func(sr ingest.SubRange) (*ingest.Batch, error)
}

func (c *fakeCollector) Source() string      { return c.source }
func (c *fakeCollector) DataTypes() []string { return c.dataTypes }

func (c *fakeCollector) SubRanges(dataType string, r ingest.DateRange) ([]ingest.SubRange, error) {
	var subs []ingest.SubRange
	for _, day := range r.Days() {
		subs = append(subs, ingest.DaySubRange(c.source, dataType, day))
	}
	return subs, nil
}

func (c *fakeCollector) Fetch(_ context.Context, _ string, sr ingest.SubRange) (*ingest.Batch, error) {
	return c.fetch(sr)
}

func hourlyBatch(sr ingest.SubRange, n int) *ingest.Batch {
	batch := ingest.NewBatch("pjm", "rt_hrl_lmps")
	for i := 0; i < n; i++ {
		batch.Append(ingest.NewRecord(map[string]interface{}{
			"timestamp": sr.Start.Add(time.Duration(i) * time.Hour),
			"node_id":   "NODE-A",
			"total_lmp": 25.5,
		}))
	}
	return batch
}

func testRegistry(t *testing.T) *validate.Registry {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pjm_rt_hrl_lmps.yaml"), []byte(testRuleSet), 0o644))
	reg, err := validate.Load(dir)
	require.NoError(t, err)
	return reg
}

func testOrchestrator(t *testing.T, c ingest.Collector, workers int) (*Orchestrator, *store.Store) {
	t.Helper()
	log := logger.NewNop()
	st, err := store.Open(t.TempDir(), log)
	require.NoError(t, err)

	orch := New(validate.NewEngine(log), testRegistry(t), st, log)
	orch.Register(c, workers)
	return orch, st
}

func threeDayJob(t *testing.T) *Job {
	t.Helper()
	r, err := ingest.NewDateRange(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	return NewJob("pjm", "rt_hrl_lmps", r)
}

func TestRun_AllSubRangesSucceed(t *testing.T) {
	c := &fakeCollector{
		source:    "pjm",
		dataTypes: []string{"rt_hrl_lmps"},
		fetch: func(sr ingest.SubRange) (*ingest.Batch, error) {
			return hourlyBatch(sr, 24), nil
		},
	}
	orch, st := testOrchestrator(t, c, 2)

	result := orch.Run(context.Background(), threeDayJob(t))

	assert.Equal(t, StatusSucceeded, result.Status)
	assert.Equal(t, 72, result.RecordsWritten)
	assert.Equal(t, 0, result.RecordsQuarantined)
	assert.Empty(t, result.FailedSubRanges())
	require.Len(t, result.SubRanges, 3)

	for i, sr := range result.SubRanges {
		assert.Equal(t, SubRangeSucceeded, sr.Status)
		assert.Equal(t, 1, sr.Version)
		assert.Equal(t, fmt.Sprintf("pjm/rt_hrl_lmps/2024-01-0%d", i+1), sr.Key, "outcomes sorted by key")
	}

	for _, day := range []int{1, 2, 3} {
		key := store.NewKey("pjm", "rt_hrl_lmps", time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC))
		batch, manifest, err := st.ReadLatest(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, 24, batch.Len())
		assert.True(t, manifest.Pass)
	}
}

func TestRun_GapWarningStillStores(t *testing.T) {
	c := &fakeCollector{
		source:    "pjm",
		dataTypes: []string{"rt_hrl_lmps"},
		fetch: func(sr ingest.SubRange) (*ingest.Batch, error) {
			if sr.Day.Day() != 2 {
				return hourlyBatch(sr, 24), nil
			}
			// Day 2 is missing hours 10 through 16, an 8h hole against a
			// 2h max gap.
			batch := ingest.NewBatch("pjm", "rt_hrl_lmps")
			for i := 0; i < 24; i++ {
				if i >= 10 && i <= 16 {
					continue
				}
				batch.Append(ingest.NewRecord(map[string]interface{}{
					"timestamp": sr.Start.Add(time.Duration(i) * time.Hour),
					"node_id":   "NODE-A",
					"total_lmp": 25.5,
				}))
			}
			return batch, nil
		},
	}
	log := logger.NewNop()
	root := t.TempDir()
	st, err := store.Open(root, log)
	require.NoError(t, err)

	orch := New(validate.NewEngine(log), testRegistry(t), st, log)
	orch.Register(c, 2)

	result := orch.Run(context.Background(), threeDayJob(t))

	// Warnings degrade the score but never block storage.
	assert.Equal(t, StatusSucceeded, result.Status)
	assert.Equal(t, 65, result.RecordsWritten)
	require.Len(t, result.SubRanges, 3)

	day2 := result.SubRanges[1]
	assert.Equal(t, "pjm/rt_hrl_lmps/2024-01-02", day2.Key)
	assert.Equal(t, SubRangeSucceeded, day2.Status)
	assert.Equal(t, 1, day2.Warnings)
	assert.Zero(t, result.SubRanges[0].Warnings)

	key := store.NewKey("pjm", "rt_hrl_lmps", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	batch, manifest, err := st.ReadLatest(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 17, batch.Len())
	assert.True(t, manifest.Pass)
	assert.Less(t, manifest.QualityScore, 1.0)
	assert.GreaterOrEqual(t, manifest.QualityScore, 0.95)

	// The persisted report carries the gap warning and the degraded
	// consistency score.
	raw, err := os.ReadFile(filepath.Join(root, key.Path(), "v1", "report.json"))
	require.NoError(t, err)
	var report validate.QualityReport
	require.NoError(t, json.Unmarshal(raw, &report))
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0].Message, "gap")
	assert.Less(t, report.Scores[validate.DimConsistency], 1.0)
}

func TestRun_FetchFailureIsolatedToItsDay(t *testing.T) {
	c := &fakeCollector{
		source:    "pjm",
		dataTypes: []string{"rt_hrl_lmps"},
		fetch: func(sr ingest.SubRange) (*ingest.Batch, error) {
			if sr.Day.Day() == 2 {
				return nil, errors.New("provider timeout")
			}
			return hourlyBatch(sr, 24), nil
		},
	}
	orch, st := testOrchestrator(t, c, 2)

	result := orch.Run(context.Background(), threeDayJob(t))

	assert.Equal(t, StatusPartial, result.Status)
	assert.Equal(t, 48, result.RecordsWritten)

	failed := result.FailedSubRanges()
	require.Len(t, failed, 1)
	assert.Equal(t, "pjm/rt_hrl_lmps/2024-01-02", failed[0].Key)
	assert.Equal(t, SubRangeFailed, failed[0].Status)
	assert.Contains(t, failed[0].Error, "fetch:")

	// Siblings of the failed day are stored.
	key := store.NewKey("pjm", "rt_hrl_lmps", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	_, _, err := st.ReadLatest(context.Background(), key)
	assert.NoError(t, err)
}

func TestRun_FailingBatchQuarantined(t *testing.T) {
	c := &fakeCollector{
		source:    "pjm",
		dataTypes: []string{"rt_hrl_lmps"},
		fetch: func(sr ingest.SubRange) (*ingest.Batch, error) {
			batch := ingest.NewBatch("pjm", "rt_hrl_lmps")
			for i := 0; i < 24; i++ {
				// node_id missing: a required-field violation on every record.
				batch.Append(ingest.NewRecord(map[string]interface{}{
					"timestamp": sr.Start.Add(time.Duration(i) * time.Hour),
					"total_lmp": 25.5,
				}))
			}
			return batch, nil
		},
	}
	orch, st := testOrchestrator(t, c, 1)

	r, err := ingest.NewDateRange(
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	result := orch.Run(context.Background(), NewJob("pjm", "rt_hrl_lmps", r))

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 0, result.RecordsWritten)
	assert.Equal(t, 24, result.RecordsQuarantined)
	require.Len(t, result.SubRanges, 1)
	assert.Equal(t, SubRangeQuarantined, result.SubRanges[0].Status)
	assert.Contains(t, result.SubRanges[0].Error, "quality gate")

	// Quarantined data never becomes a readable partition version.
	key := store.NewKey("pjm", "rt_hrl_lmps", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	_, _, err = st.ReadLatest(context.Background(), key)
	assert.ErrorIs(t, err, store.ErrNoVersions)
}

func TestRun_StorageFailureHaltsRemainingSubRanges(t *testing.T) {
	c := &fakeCollector{
		source:    "pjm",
		dataTypes: []string{"rt_hrl_lmps"},
		fetch: func(sr ingest.SubRange) (*ingest.Batch, error) {
			return hourlyBatch(sr, 24), nil
		},
	}
	log := logger.NewNop()
	root := t.TempDir()
	st, err := store.Open(root, log)
	require.NoError(t, err)

	// A regular file where day 2's partition directory belongs makes that
	// write fail while day 1 commits normally.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pjm", "rt_hrl_lmps", "2024", "01"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pjm", "rt_hrl_lmps", "2024", "01", "02"), nil, 0o644))

	orch := New(validate.NewEngine(log), testRegistry(t), st, log)
	orch.Register(c, 1)

	result := orch.Run(context.Background(), threeDayJob(t))

	assert.Equal(t, StatusPartial, result.Status)
	assert.Equal(t, 24, result.RecordsWritten)
	require.Len(t, result.SubRanges, 3)

	assert.Equal(t, SubRangeSucceeded, result.SubRanges[0].Status)

	assert.Equal(t, SubRangeFailed, result.SubRanges[1].Status)
	assert.Contains(t, result.SubRanges[1].Error, "store:")

	assert.Equal(t, SubRangeFailed, result.SubRanges[2].Status)
	assert.Contains(t, result.SubRanges[2].Error, "not started")
}

func TestRun_EmptyDaySucceedsWithoutWriting(t *testing.T) {
	c := &fakeCollector{
		source:    "pjm",
		dataTypes: []string{"rt_hrl_lmps"},
		fetch: func(sr ingest.SubRange) (*ingest.Batch, error) {
			return ingest.NewBatch("pjm", "rt_hrl_lmps"), nil
		},
	}
	orch, st := testOrchestrator(t, c, 1)

	r, err := ingest.NewDateRange(
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	result := orch.Run(context.Background(), NewJob("pjm", "rt_hrl_lmps", r))

	assert.Equal(t, StatusSucceeded, result.Status)
	assert.Equal(t, 0, result.RecordsWritten)
	require.Len(t, result.SubRanges, 1)
	assert.Equal(t, SubRangeSucceeded, result.SubRanges[0].Status)

	key := store.NewKey("pjm", "rt_hrl_lmps", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	_, _, err = st.ReadLatest(context.Background(), key)
	assert.ErrorIs(t, err, store.ErrNoVersions)
}

func TestRun_UnknownSourceFails(t *testing.T) {
	c := &fakeCollector{source: "pjm", dataTypes: []string{"rt_hrl_lmps"}}
	orch, _ := testOrchestrator(t, c, 1)

	job := threeDayJob(t)
	job.SourceID = "nonsense"

	result := orch.Run(context.Background(), job)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Error, "no collector registered")
}

func TestRun_MissingRuleSetFails(t *testing.T) {
	c := &fakeCollector{source: "pjm", dataTypes: []string{"rt_hrl_lmps", "da_hrl_lmps"}}
	orch, _ := testOrchestrator(t, c, 1)

	job := threeDayJob(t)
	job.DataType = "da_hrl_lmps"

	result := orch.Run(context.Background(), job)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Error, "no rule set")
}

func TestRun_CancelledContextSkipsUnstartedWork(t *testing.T) {
	c := &fakeCollector{
		source:    "pjm",
		dataTypes: []string{"rt_hrl_lmps"},
		fetch: func(sr ingest.SubRange) (*ingest.Batch, error) {
			return hourlyBatch(sr, 24), nil
		},
	}
	orch, _ := testOrchestrator(t, c, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := orch.Run(ctx, threeDayJob(t))

	assert.Equal(t, StatusFailed, result.Status)
	for _, sr := range result.SubRanges {
		assert.Equal(t, SubRangeFailed, sr.Status)
		assert.Contains(t, sr.Error, "not started")
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	stages []string
}

func (n *recordingNotifier) Notify(event ProgressEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stages = append(n.stages, event.Stage)
}

func TestRun_EmitsProgressEvents(t *testing.T) {
	c := &fakeCollector{
		source:    "pjm",
		dataTypes: []string{"rt_hrl_lmps"},
		fetch: func(sr ingest.SubRange) (*ingest.Batch, error) {
			return hourlyBatch(sr, 24), nil
		},
	}
	orch, _ := testOrchestrator(t, c, 1)

	notifier := &recordingNotifier{}
	orch.WithNotifier(notifier)

	r, err := ingest.NewDateRange(
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	orch.Run(context.Background(), NewJob("pjm", "rt_hrl_lmps", r))

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []string{"collecting", "collected", "validated", "stored", "finished"}, notifier.stages)
}

func TestOrchestrator_Sources(t *testing.T) {
	c := &fakeCollector{source: "pjm", dataTypes: []string{"rt_hrl_lmps"}}
	orch, _ := testOrchestrator(t, c, 1)
	orch.Register(&fakeCollector{source: "eia"}, 0)

	assert.Equal(t, []string{"eia", "pjm"}, orch.Sources())

	_, ok := orch.Collector("pjm")
	assert.True(t, ok)
	_, ok = orch.Collector("noaa")
	assert.False(t, ok)
}
