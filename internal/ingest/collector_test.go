package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDateRange(t *testing.T) {
	r, err := NewDateRange(
		time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	assert.True(t, r.Start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), "start truncated to midnight")
	assert.True(t, r.End.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)))

	days := r.Days()
	require.Len(t, days, 3)
	assert.True(t, days[1].Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))

	_, err = NewDateRange(
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	)
	assert.Error(t, err)
}

func TestNewDateRange_SameDayAcrossZones(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)

	// 2024-01-01 22:00 EST is 2024-01-02 03:00 UTC.
	r, err := NewDateRange(
		time.Date(2024, 1, 1, 22, 0, 0, 0, est),
		time.Date(2024, 1, 1, 23, 0, 0, 0, est),
	)
	require.NoError(t, err)
	assert.True(t, r.Start.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	require.Len(t, r.Days(), 1)
}

func TestDaySubRange(t *testing.T) {
	sr := DaySubRange("pjm", "rt_hrl_lmps", time.Date(2024, 1, 2, 17, 45, 0, 0, time.UTC))

	assert.Equal(t, "pjm/rt_hrl_lmps/2024-01-02", sr.Key)
	assert.True(t, sr.Start.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.True(t, sr.End.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)))
}

func TestSubRange_InRange(t *testing.T) {
	sr := DaySubRange("pjm", "rt_hrl_lmps", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))

	assert.True(t, sr.InRange(sr.Start), "start is inclusive")
	assert.True(t, sr.InRange(sr.Start.Add(23*time.Hour)))
	assert.False(t, sr.InRange(sr.End), "end is exclusive")
	assert.False(t, sr.InRange(sr.Start.Add(-time.Second)))
}

func TestRecord_TypedAccessors(t *testing.T) {
	ts := time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC)
	r := NewRecord(map[string]interface{}{
		"timestamp": ts,
		"total_lmp": 25.5,
		"node_name": "A",
		"empty":     nil,
	})

	got, ok := r.Timestamp("timestamp")
	require.True(t, ok)
	assert.True(t, got.Equal(ts))

	n, ok := r.Number("total_lmp")
	require.True(t, ok)
	assert.Equal(t, 25.5, n)

	_, ok = r.Timestamp("node_name")
	assert.False(t, ok, "wrong type")
	_, ok = r.Number("missing")
	assert.False(t, ok)
	_, ok = r.Number("empty")
	assert.False(t, ok, "null field")
}

func TestBatch_Append(t *testing.T) {
	b := NewBatch("pjm", "rt_hrl_lmps")
	assert.Equal(t, 0, b.Len())
	assert.WithinDuration(t, time.Now().UTC(), b.CollectedAt, time.Minute)

	b.Append(NewRecord(nil), NewRecord(nil))
	assert.Equal(t, 2, b.Len())
}
