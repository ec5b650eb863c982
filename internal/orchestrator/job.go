// Package orchestrator sequences collect → validate → store for collection
// jobs and aggregates per-sub-range outcomes into a job result.
package orchestrator

import (
	"fmt"
	"time"

	"github.com/wonny/gridflow/internal/ingest"
)

// Status is a job's terminal state.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partially-succeeded"
	StatusFailed    Status = "failed"
)

// SubRangeStatus is the terminal state of one sub-range.
type SubRangeStatus string

const (
	SubRangeSucceeded   SubRangeStatus = "succeeded"
	SubRangeQuarantined SubRangeStatus = "quarantined"
	SubRangeFailed      SubRangeStatus = "failed"
)

// Job is one unit of collection work, consumed exactly once per run.
type Job struct {
	ID       string          `json:"job_id"`
	SourceID string          `json:"source_id"`
	DataType string          `json:"data_type"`
	Range    ingest.DateRange `json:"-"`
	Start    string          `json:"start_date"`
	End      string          `json:"end_date"`
}

// NewJob creates a job for a dataset and date range.
func NewJob(sourceID, dataType string, r ingest.DateRange) *Job {
	return &Job{
		ID: fmt.Sprintf("%s-%s-%s-%s-%d",
			sourceID, dataType,
			r.Start.Format("20060102"), r.End.Format("20060102"),
			time.Now().UnixMilli()),
		SourceID: sourceID,
		DataType: dataType,
		Range:    r,
		Start:    r.Start.Format("2006-01-02"),
		End:      r.End.Format("2006-01-02"),
	}
}

// SubRangeOutcome records how one sub-range ended.
type SubRangeOutcome struct {
	Key      string         `json:"sub_range"`
	Status   SubRangeStatus `json:"status"`
	Records  int            `json:"records"`
	Version  int            `json:"version,omitempty"`
	Warnings int            `json:"warnings,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Result is the job's terminal summary: enough detail to retry exactly the
// failed subset without re-touching succeeded ranges.
type Result struct {
	JobID              string            `json:"job_id"`
	SourceID           string            `json:"source_id"`
	DataType           string            `json:"data_type"`
	Status             Status            `json:"status"`
	SubRanges          []SubRangeOutcome `json:"sub_range_outcomes"`
	RecordsWritten     int               `json:"total_records_written"`
	RecordsQuarantined int               `json:"total_records_quarantined"`
	StartedAt          time.Time         `json:"started_at"`
	FinishedAt         time.Time         `json:"finished_at"`
	Error              string            `json:"error,omitempty"`
}

// FailedSubRanges lists the sub-ranges that did not store, for targeted
// re-runs.
func (r *Result) FailedSubRanges() []SubRangeOutcome {
	var failed []SubRangeOutcome
	for _, sr := range r.SubRanges {
		if sr.Status != SubRangeSucceeded {
			failed = append(failed, sr)
		}
	}
	return failed
}

// ProgressEvent is one step of a running job, published to observers.
type ProgressEvent struct {
	JobID     string    `json:"job_id"`
	SubRange  string    `json:"sub_range,omitempty"`
	Stage     string    `json:"stage"` // collecting, collected, validated, stored, quarantined, failed, finished
	Records   int       `json:"records,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives progress events. Implementations must not block.
type Notifier interface {
	Notify(event ProgressEvent)
}
