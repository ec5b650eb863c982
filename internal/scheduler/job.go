package scheduler

import (
	"context"
	"time"
)

// Job is a scheduled unit of work.
type Job interface {
	// Name returns the job name.
	Name() string

	// Run executes the job.
	Run(ctx context.Context) error

	// Schedule returns the cron expression with a seconds field,
	// e.g. "0 30 6 * * *" or "@daily".
	Schedule() string

	// Timeout bounds a single run. Zero means no bound.
	Timeout() time.Duration
}

// RunRecord is the outcome of one job execution.
type RunRecord struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// History keeps the most recent run records of one job.
type History struct {
	Records []RunRecord
}

const historyLimit = 100

// Add appends a record, discarding the oldest past the limit.
func (h *History) Add(record RunRecord) {
	h.Records = append(h.Records, record)
	if len(h.Records) > historyLimit {
		h.Records = h.Records[len(h.Records)-historyLimit:]
	}
}

// Latest returns the most recent n records in chronological order.
func (h *History) Latest(n int) []RunRecord {
	if n > len(h.Records) {
		n = len(h.Records)
	}
	if n == 0 {
		return []RunRecord{}
	}
	return h.Records[len(h.Records)-n:]
}

// Failed returns every failed record.
func (h *History) Failed() []RunRecord {
	failed := make([]RunRecord, 0)
	for _, r := range h.Records {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	return failed
}

// SuccessRate returns the fraction of successful runs, 0.0 to 1.0.
func (h *History) SuccessRate() float64 {
	if len(h.Records) == 0 {
		return 0.0
	}
	success := 0
	for _, r := range h.Records {
		if r.Success {
			success++
		}
	}
	return float64(success) / float64(len(h.Records))
}
