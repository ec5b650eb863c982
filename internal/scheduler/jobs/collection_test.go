package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gridflow/internal/ingest"
	"github.com/wonny/gridflow/internal/orchestrator"
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
	mu      sync.Mutex
	fetched []string
	fail    bool
}

func (c *fakeCollector) Source() string      { return "pjm" }
func (c *fakeCollector) DataTypes() []string { return []string{"rt_hrl_lmps"} }

func (c *fakeCollector) SubRanges(dataType string, r ingest.DateRange) ([]ingest.SubRange, error) {
	var subs []ingest.SubRange
	for _, day := range r.Days() {
		subs = append(subs, ingest.DaySubRange("pjm", dataType, day))
	}
	return subs, nil
}

func (c *fakeCollector) Fetch(_ context.Context, _ string, sr ingest.SubRange) (*ingest.Batch, error) {
	c.mu.Lock()
	c.fetched = append(c.fetched, sr.Key)
	c.mu.Unlock()

	if c.fail {
		return nil, errors.New("provider unreachable")
	}
	return ingest.NewBatch("pjm", "rt_hrl_lmps"), nil
}

func testJob(t *testing.T, c ingest.Collector) *CollectionJob {
	t.Helper()
	log := logger.NewNop()

	rulesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "pjm_rt_hrl_lmps.yaml"), []byte(testRuleSet), 0o644))
	rules, err := validate.Load(rulesDir)
	require.NoError(t, err)

	st, err := store.Open(t.TempDir(), log)
	require.NoError(t, err)

	orch := orchestrator.New(validate.NewEngine(log), rules, st, log)
	orch.Register(c, 1)

	return NewCollectionJob(orch, nil, log, "pjm", "0 30 6 * * *", time.Hour)
}

func TestCollectionJob_Identity(t *testing.T) {
	job := testJob(t, &fakeCollector{})
	assert.Equal(t, "collect_pjm", job.Name())
	assert.Equal(t, "0 30 6 * * *", job.Schedule())
	assert.Equal(t, time.Hour, job.Timeout())
}

func TestCollectionJob_CollectsLookbackThroughYesterday(t *testing.T) {
	c := &fakeCollector{}
	job := testJob(t, c)

	require.NoError(t, job.Run(context.Background()))

	yesterday := ingest.Day(time.Now().UTC().AddDate(0, 0, -1))
	want := []string{
		ingest.DaySubRange("pjm", "rt_hrl_lmps", yesterday.AddDate(0, 0, -2)).Key,
		ingest.DaySubRange("pjm", "rt_hrl_lmps", yesterday.AddDate(0, 0, -1)).Key,
		ingest.DaySubRange("pjm", "rt_hrl_lmps", yesterday).Key,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, want, c.fetched, "three-day lookback ending yesterday")
}

func TestCollectionJob_FailedDatasetSurfacesError(t *testing.T) {
	job := testJob(t, &fakeCollector{fail: true})

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rt_hrl_lmps")
}

func TestCollectionJob_UnregisteredSource(t *testing.T) {
	log := logger.NewNop()

	rulesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "pjm_rt_hrl_lmps.yaml"), []byte(testRuleSet), 0o644))
	rules, err := validate.Load(rulesDir)
	require.NoError(t, err)

	st, err := store.Open(t.TempDir(), log)
	require.NoError(t, err)
	orch := orchestrator.New(validate.NewEngine(log), rules, st, log)

	job := NewCollectionJob(orch, nil, log, "pjm", "@daily", 0)
	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no collector registered")
}
