package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gridflow/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(&config.Config{})
	require.NoError(t, err)
	return client
}

func TestDisabledClientIsNoOp(t *testing.T) {
	client := disabledClient(t)

	assert.False(t, client.Enabled())
	assert.Nil(t, client.Redis())
	assert.NoError(t, client.Close())
}

func TestCheckpoints_DisabledBehavesAsEmpty(t *testing.T) {
	cp := NewCheckpoints(disabledClient(t), "gridflow")
	ctx := context.Background()

	_, ok, err := cp.Get(ctx, "pjm", "rt_hrl_lmps")
	require.NoError(t, err)
	assert.False(t, ok)

	// Advancing without Redis silently drops the checkpoint; the next
	// scheduled run falls back to its lookback window.
	err = cp.Advance(ctx, "pjm", "rt_hrl_lmps", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	_, ok, err = cp.Get(ctx, "pjm", "rt_hrl_lmps")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckpoints_KeyNamespacing(t *testing.T) {
	cp := NewCheckpoints(disabledClient(t), "gridflow")
	assert.Equal(t, "gridflow:checkpoint:pjm:rt_hrl_lmps", cp.key("pjm", "rt_hrl_lmps"))
}
