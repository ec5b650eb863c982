// Package store persists validated batches into a date/source-partitioned,
// compressed columnar layout with append-only versioning, and serves range
// reads over it.
//
// On-disk contract (other tooling relies on this layout):
//
//	{root}/{source_id}/{data_type}/{year}/{month}/{day}/v{version}/
//	    chunk.zst      zstd-compressed columnar record chunk
//	    manifest.json  row count, byte size, checksum, write timestamp, score
//	    report.json    full quality report for the batch
package store

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/wonny/gridflow/internal/ingest"
)

// Key identifies one partition: a single UTC day of one dataset.
type Key struct {
	SourceID string
	DataType string
	Day      time.Time
}

// NewKey builds a partition key, truncating day to its UTC date.
func NewKey(sourceID, dataType string, day time.Time) Key {
	return Key{
		SourceID: sourceID,
		DataType: dataType,
		Day:      ingest.Day(day),
	}
}

// Path returns the partition directory relative to the store root.
func (k Key) Path() string {
	return filepath.Join(
		k.SourceID,
		k.DataType,
		fmt.Sprintf("%04d", k.Day.Year()),
		fmt.Sprintf("%02d", int(k.Day.Month())),
		fmt.Sprintf("%02d", k.Day.Day()),
	)
}

// String renders the key for logs and error messages.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.SourceID, k.DataType, k.Day.Format("2006-01-02"))
}

// Manifest describes one committed partition version.
type Manifest struct {
	Version      int       `json:"version"`
	Rows         int       `json:"rows"`
	Bytes        int64     `json:"bytes"`
	Checksum     string    `json:"checksum"` // xxh64 of the compressed chunk
	WrittenAt    time.Time `json:"written_at"`
	QualityScore float64   `json:"quality_score"`
	Pass         bool      `json:"pass"`
}

const (
	chunkFile    = "chunk.zst"
	manifestFile = "manifest.json"
	reportFile   = "report.json"
)
