package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gridflow/pkg/config"
)

func TestLimiter_EnforcesWindow(t *testing.T) {
	l := New()
	l.Register("pjm", config.RateLimitConfig{
		Limit:  5,
		Window: 500 * time.Millisecond,
		Burst:  1,
	})

	// 5 per 500ms with burst 1: the first acquire is free, each of the
	// next four waits ~100ms. Four extra slots need at least ~400ms.
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(ctx, "pjm"))
	}
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 350*time.Millisecond,
		"5 acquires at 5/500ms should take about 400ms, took %s", elapsed)
}

func TestLimiter_UnregisteredSourcePassesThrough(t *testing.T) {
	l := New()

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Acquire(context.Background(), "unknown"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_DeadlineExpiry(t *testing.T) {
	l := New()
	l.Register("noaa", config.RateLimitConfig{
		Limit:  1,
		Window: 10 * time.Second,
		Burst:  1,
	})

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, "noaa")) // drains the burst

	deadlineCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	err := l.Acquire(deadlineCtx, "noaa")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAcquireTimeout)
}

func TestLimiter_CancelPassesThrough(t *testing.T) {
	l := New()
	l.Register("eia", config.RateLimitConfig{
		Limit:  1,
		Window: 10 * time.Second,
		Burst:  1,
	})

	require.NoError(t, l.Acquire(context.Background(), "eia"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := l.Acquire(ctx, "eia")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimiter_ReRegisterReplacesBucket(t *testing.T) {
	l := New()
	l.Register("pjm", config.RateLimitConfig{Limit: 1, Window: time.Hour, Burst: 1})
	require.NoError(t, l.Acquire(context.Background(), "pjm"))

	// A generous replacement bucket frees the source immediately.
	l.Register("pjm", config.RateLimitConfig{Limit: 1000, Window: time.Second, Burst: 100})

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Acquire(context.Background(), "pjm"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
