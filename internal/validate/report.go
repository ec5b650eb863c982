package validate

import (
	"time"

	"github.com/wonny/gridflow/internal/ingest"
)

// Quality dimension names, used as score keys and archive columns.
const (
	DimCompleteness = "completeness"
	DimValidity     = "validity"
	DimConsistency  = "consistency"
	DimTimeliness   = "timeliness"
)

// HardError is a rule violation that blocks storage. RecordIndex is -1 for
// batch-level errors.
type HardError struct {
	RecordIndex int    `json:"record_index"`
	Field       string `json:"field,omitempty"`
	Message     string `json:"message"`
}

// Warning is a non-blocking quality finding. Count carries how many cells
// or records it covers.
type Warning struct {
	Field   string `json:"field,omitempty"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// QualityReport is the structured per-batch validation outcome. One report
// is produced for every validated batch, pass or fail.
type QualityReport struct {
	SourceID    string             `json:"source_id"`
	DataType    string             `json:"data_type"`
	RecordCount int                `json:"record_count"`
	Scores      map[string]float64 `json:"scores"`
	Aggregate   float64            `json:"aggregate"`
	Threshold   float64            `json:"threshold"`
	Warnings    []Warning          `json:"warnings"`
	Errors      []HardError        `json:"errors"`
	Pass        bool               `json:"pass"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// HasErrors reports whether the batch carries any hard error.
func (r *QualityReport) HasErrors() bool {
	return len(r.Errors) > 0
}

// WarningTotal sums warning counts across all findings.
func (r *QualityReport) WarningTotal() int {
	total := 0
	for _, w := range r.Warnings {
		total += w.Count
	}
	return total
}

// ValidatedBatch pairs the (possibly coerced) records with their quality
// report. A batch with hard errors is never written to the store.
type ValidatedBatch struct {
	Batch  *ingest.Batch
	Report *QualityReport
}
