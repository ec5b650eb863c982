// Package ingest defines the raw-record model shared by all source
// collectors and the collector contract the orchestrator drives.
package ingest

import (
	"time"
)

// Field value types inside a Record: time.Time, string, float64, or nil.
// Collectors normalize provider-native values into these four kinds; the
// validator coerces and checks them against the dataset's rule set.

// Record is one flat raw observation. Immutable once emitted.
type Record struct {
	Fields map[string]interface{}
}

// NewRecord creates a record with the given fields.
func NewRecord(fields map[string]interface{}) Record {
	return Record{Fields: fields}
}

// Timestamp returns the named field as a time.Time, if present and typed.
func (r Record) Timestamp(field string) (time.Time, bool) {
	v, ok := r.Fields[field]
	if !ok {
		return time.Time{}, false
	}
	ts, ok := v.(time.Time)
	return ts, ok
}

// Number returns the named field as a float64, if present and typed.
func (r Record) Number(field string) (float64, bool) {
	v, ok := r.Fields[field]
	if !ok {
		return 0, false
	}
	n, ok := v.(float64)
	return n, ok
}

// Batch is an ordered sequence of raw records from one provider dataset,
// tagged with its origin and wall-clock receipt time.
type Batch struct {
	SourceID    string
	DataType    string
	CollectedAt time.Time
	Records     []Record
}

// NewBatch creates an empty batch stamped with the current time.
func NewBatch(sourceID, dataType string) *Batch {
	return &Batch{
		SourceID:    sourceID,
		DataType:    dataType,
		CollectedAt: time.Now().UTC(),
	}
}

// Append adds records to the batch.
func (b *Batch) Append(records ...Record) {
	b.Records = append(b.Records, records...)
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	return len(b.Records)
}
