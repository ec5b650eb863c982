// Package ratelimit gates outbound provider requests. One token bucket per
// source id; callers block in Acquire until a slot frees or their deadline
// expires.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/wonny/gridflow/pkg/config"
)

// ErrAcquireTimeout is returned when a caller's deadline expires before a
// request slot becomes available.
var ErrAcquireTimeout = errors.New("rate limit acquire timed out")

// Limiter holds per-source token buckets. Safe for concurrent use; callers
// never need external locking.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*rate.Limiter
}

// New creates an empty limiter registry.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
	}
}

// Register configures the bucket for a source. The bucket refills at
// cfg.Limit tokens per cfg.Window with a burst of cfg.Burst (minimum 1).
// Re-registering a source replaces its bucket.
func (l *Limiter) Register(source string, cfg config.RateLimitConfig) {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	perSecond := rate.Limit(float64(cfg.Limit) / cfg.Window.Seconds())

	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[source] = rate.NewLimiter(perSecond, burst)
}

// Acquire blocks until the source's bucket grants a token, the context is
// cancelled, or its deadline expires. A deadline expiry is reported as
// ErrAcquireTimeout. Sources without a registered bucket pass through.
func (l *Limiter) Acquire(ctx context.Context, source string) error {
	l.mu.RLock()
	bucket, ok := l.buckets[source]
	l.mu.RUnlock()

	if !ok {
		return nil
	}

	if err := bucket.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		// Deadline already expired, or Wait determined the deadline would
		// pass before a token frees.
		return fmt.Errorf("%w: source %q: %v", ErrAcquireTimeout, source, err)
	}

	return nil
}
