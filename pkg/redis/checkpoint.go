package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Checkpoints tracks the last successfully stored day per dataset so
// scheduled jobs resume where they left off instead of re-collecting.
// Checkpoints are an optimization only: losing them means re-collection,
// which the versioned store absorbs safely.
type Checkpoints struct {
	client *Client
	prefix string
}

// NewCheckpoints creates a checkpoint cache with a key prefix.
func NewCheckpoints(client *Client, prefix string) *Checkpoints {
	return &Checkpoints{
		client: client,
		prefix: prefix,
	}
}

func (c *Checkpoints) key(sourceID, dataType string) string {
	return fmt.Sprintf("%s:checkpoint:%s:%s", c.prefix, sourceID, dataType)
}

// Get returns the last stored day for a dataset. ok is false when Redis is
// disabled or no checkpoint exists.
func (c *Checkpoints) Get(ctx context.Context, sourceID, dataType string) (time.Time, bool, error) {
	if !c.client.Enabled() {
		return time.Time{}, false, nil
	}

	raw, err := c.client.Redis().Get(ctx, c.key(sourceID, dataType)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get checkpoint: %w", err)
	}

	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse checkpoint %q: %w", raw, err)
	}
	return day.UTC(), true, nil
}

// Advance records day as stored, keeping only forward movement.
func (c *Checkpoints) Advance(ctx context.Context, sourceID, dataType string, day time.Time) error {
	if !c.client.Enabled() {
		return nil
	}

	current, ok, err := c.Get(ctx, sourceID, dataType)
	if err != nil {
		return err
	}
	if ok && !day.After(current) {
		return nil
	}

	err = c.client.Redis().Set(ctx, c.key(sourceID, dataType), day.UTC().Format("2006-01-02"), 0).Err()
	if err != nil {
		return fmt.Errorf("advance checkpoint: %w", err)
	}
	return nil
}
