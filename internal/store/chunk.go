package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/wonny/gridflow/internal/ingest"
)

// Column types inside a chunk document.
const (
	colTimestamp = "timestamp"
	colNumber    = "number"
	colString    = "string"
)

// column is one field of a chunk, stored as an ordered value array.
// Timestamps are RFC3339Nano strings; nulls stay null.
type column struct {
	Name   string        `json:"name"`
	Type   string        `json:"type"`
	Values []interface{} `json:"values"`
}

// chunkDocument is the decompressed chunk payload: columnar record data
// plus enough batch context to reconstruct it.
type chunkDocument struct {
	SourceID    string    `json:"source_id"`
	DataType    string    `json:"data_type"`
	CollectedAt time.Time `json:"collected_at"`
	Rows        int       `json:"rows"`
	Columns     []column  `json:"columns"`
}

// encodeChunk turns a batch into a zstd-compressed columnar document.
// Column order is the sorted union of field names so output is stable.
func encodeChunk(batch *ingest.Batch) ([]byte, error) {
	names := make(map[string]bool)
	for _, rec := range batch.Records {
		for name := range rec.Fields {
			names[name] = true
		}
	}
	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	doc := chunkDocument{
		SourceID:    batch.SourceID,
		DataType:    batch.DataType,
		CollectedAt: batch.CollectedAt.UTC(),
		Rows:        len(batch.Records),
		Columns:     make([]column, 0, len(ordered)),
	}

	for _, name := range ordered {
		col := column{Name: name, Values: make([]interface{}, len(batch.Records))}
		for i, rec := range batch.Records {
			v, ok := rec.Fields[name]
			if !ok || v == nil {
				col.Values[i] = nil
				continue
			}

			switch val := v.(type) {
			case time.Time:
				if err := col.setType(colTimestamp); err != nil {
					return nil, fmt.Errorf("column %q: %w", name, err)
				}
				col.Values[i] = val.UTC().Format(time.RFC3339Nano)
			case float64:
				if err := col.setType(colNumber); err != nil {
					return nil, fmt.Errorf("column %q: %w", name, err)
				}
				col.Values[i] = val
			case string:
				if err := col.setType(colString); err != nil {
					return nil, fmt.Errorf("column %q: %w", name, err)
				}
				col.Values[i] = val
			default:
				return nil, fmt.Errorf("column %q: unsupported value type %T", name, v)
			}
		}
		if col.Type == "" {
			// All-null column; type choice is arbitrary.
			col.Type = colString
		}
		doc.Columns = append(doc.Columns, col)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal chunk: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}
	defer enc.Close()

	return enc.EncodeAll(raw, nil), nil
}

// setType pins the column type on first use and rejects mixed columns.
func (c *column) setType(t string) error {
	if c.Type == "" {
		c.Type = t
		return nil
	}
	if c.Type != t {
		return fmt.Errorf("mixed value types (%s and %s)", c.Type, t)
	}
	return nil
}

// decodeChunk reconstructs a batch from a compressed chunk.
func decodeChunk(compressed []byte) (*ingest.Batch, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress chunk: %w", err)
	}

	var doc chunkDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal chunk: %w", err)
	}

	batch := &ingest.Batch{
		SourceID:    doc.SourceID,
		DataType:    doc.DataType,
		CollectedAt: doc.CollectedAt,
		Records:     make([]ingest.Record, doc.Rows),
	}
	for i := range batch.Records {
		batch.Records[i] = ingest.NewRecord(make(map[string]interface{}, len(doc.Columns)))
	}

	for _, col := range doc.Columns {
		if len(col.Values) != doc.Rows {
			return nil, fmt.Errorf("column %q has %d values, want %d", col.Name, len(col.Values), doc.Rows)
		}
		for i, v := range col.Values {
			if v == nil {
				batch.Records[i].Fields[col.Name] = nil
				continue
			}

			switch col.Type {
			case colTimestamp:
				s, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("column %q row %d: timestamp is %T", col.Name, i, v)
				}
				ts, err := time.Parse(time.RFC3339Nano, s)
				if err != nil {
					return nil, fmt.Errorf("column %q row %d: %w", col.Name, i, err)
				}
				batch.Records[i].Fields[col.Name] = ts.UTC()
			case colNumber:
				n, ok := v.(float64)
				if !ok {
					return nil, fmt.Errorf("column %q row %d: number is %T", col.Name, i, v)
				}
				batch.Records[i].Fields[col.Name] = n
			case colString:
				s, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("column %q row %d: string is %T", col.Name, i, v)
				}
				batch.Records[i].Fields[col.Name] = s
			default:
				return nil, fmt.Errorf("column %q: unknown type %q", col.Name, col.Type)
			}
		}
	}

	return batch, nil
}

// checksum fingerprints the compressed chunk bytes.
func checksum(data []byte) string {
	return fmt.Sprintf("xxh64:%016x", xxhash.Sum64(data))
}
