package validate

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/wonny/gridflow/internal/ingest"
	"github.com/wonny/gridflow/pkg/logger"
)

// Engine runs a rule set against a batch. Every check runs to completion so
// the report is always complete; the engine classifies, it never retries or
// recovers data.
type Engine struct {
	logger *logger.Logger
}

// NewEngine creates a validation engine.
func NewEngine(log *logger.Logger) *Engine {
	return &Engine{logger: log.WithField("module", "validate")}
}

// run accumulates findings across the check steps.
type run struct {
	rs      *RuleSet
	records []ingest.Record

	errors   []HardError
	warnings []Warning

	nonNullRequired int // required cells with a usable value
	typeFailures    int // cells failing coercion
	rangeFailures   int // cells outside their declared range
	usableTS        []time.Time
}

// Validate applies the rule set to a batch and returns the coerced records
// with their quality report. The input batch is not modified.
func (e *Engine) Validate(batch *ingest.Batch, rs *RuleSet) *ValidatedBatch {
	r := &run{
		rs:      rs,
		records: copyRecords(batch.Records),
	}

	r.checkRequired()
	r.coerceTypes()
	r.checkRanges()
	r.checkTemporal()
	report := r.score(batch)

	e.logger.WithFields(map[string]interface{}{
		"source":    batch.SourceID,
		"data_type": batch.DataType,
		"records":   report.RecordCount,
		"aggregate": report.Aggregate,
		"errors":    len(report.Errors),
		"warnings":  len(report.Warnings),
		"pass":      report.Pass,
	}).Debug("Batch validated")

	validated := &ingest.Batch{
		SourceID:    batch.SourceID,
		DataType:    batch.DataType,
		CollectedAt: batch.CollectedAt,
		Records:     r.records,
	}

	return &ValidatedBatch{Batch: validated, Report: report}
}

// checkRequired flags records missing required fields. Absent and nil are
// both missing; collectors emit nil for provider nulls.
func (r *run) checkRequired() {
	for idx, rec := range r.records {
		for _, field := range r.rs.RequiredFields {
			v, ok := rec.Fields[field]
			if !ok || v == nil {
				r.errors = append(r.errors, HardError{
					RecordIndex: idx,
					Field:       field,
					Message:     fmt.Sprintf("required field %q missing in record %d", field, idx),
				})
			}
		}
	}
}

// coerceTypes coerces every declared field to its type. A failed coercion
// on a required field is a hard error; on an optional field it is a warning
// and the cell is nulled.
func (r *run) coerceTypes() {
	required := make(map[string]bool, len(r.rs.RequiredFields))
	for _, f := range r.rs.RequiredFields {
		required[f] = true
	}

	optionalFailures := make(map[string]int)

	for idx := range r.records {
		for field, ft := range r.rs.FieldTypes {
			v, ok := r.records[idx].Fields[field]
			if !ok || v == nil {
				continue
			}

			coerced, err := coerceValue(v, ft)
			if err != nil {
				r.typeFailures++
				if required[field] {
					r.errors = append(r.errors, HardError{
						RecordIndex: idx,
						Field:       field,
						Message:     fmt.Sprintf("record %d field %q: %v", idx, field, err),
					})
					r.records[idx].Fields[field] = nil
				} else {
					optionalFailures[field]++
					r.records[idx].Fields[field] = nil
				}
				continue
			}
			r.records[idx].Fields[field] = coerced
		}
	}

	for _, field := range sortedKeys(optionalFailures) {
		r.warnings = append(r.warnings, Warning{
			Field:   field,
			Count:   optionalFailures[field],
			Message: fmt.Sprintf("field %q: %d value(s) failed type coercion and were nulled", field, optionalFailures[field]),
		})
	}

	// Completeness counts usable required cells after coercion.
	for _, rec := range r.records {
		for _, field := range r.rs.RequiredFields {
			if v, ok := rec.Fields[field]; ok && v != nil {
				r.nonNullRequired++
			}
		}
	}
}

// checkRanges records numeric out-of-range cells. Lenient rule sets report
// them as per-field warning counts; strict rule sets escalate each
// violation to a hard error.
func (r *run) checkRanges() {
	violations := make(map[string]int)

	for idx, rec := range r.records {
		for field, rng := range r.rs.Ranges {
			num, ok := rec.Number(field)
			if !ok {
				continue
			}

			outOfRange := (rng.Min != nil && num < *rng.Min) || (rng.Max != nil && num > *rng.Max)
			if !outOfRange {
				continue
			}

			r.rangeFailures++
			violations[field]++
			if r.rs.Strictness == StrictnessStrict {
				r.errors = append(r.errors, HardError{
					RecordIndex: idx,
					Field:       field,
					Message:     fmt.Sprintf("record %d field %q value %v outside declared range", idx, field, num),
				})
			}
		}
	}

	if r.rs.Strictness == StrictnessStrict {
		return
	}

	for _, field := range sortedKeys(violations) {
		r.warnings = append(r.warnings, Warning{
			Field:   field,
			Count:   violations[field],
			Message: fmt.Sprintf("field %q: %d value(s) outside declared range", field, violations[field]),
		})
	}
}

// checkTemporal sorts usable timestamps and flags oversized gaps and
// duplicate clusters. A time-indexed batch with zero usable timestamps is a
// hard error.
func (r *run) checkTemporal() {
	if !r.rs.TimeIndexed {
		return
	}

	for _, rec := range r.records {
		if ts, ok := rec.Timestamp(r.rs.TimestampField); ok {
			r.usableTS = append(r.usableTS, ts)
		}
	}

	if len(r.usableTS) == 0 {
		if len(r.records) > 0 {
			r.errors = append(r.errors, HardError{
				RecordIndex: -1,
				Field:       r.rs.TimestampField,
				Message:     "time-indexed batch has zero usable timestamps",
			})
		}
		return
	}

	sort.Slice(r.usableTS, func(i, j int) bool { return r.usableTS[i].Before(r.usableTS[j]) })

	maxGap := r.rs.Temporal.MaxGap.Std()
	if maxGap > 0 {
		for i := 1; i < len(r.usableTS); i++ {
			gap := r.usableTS[i].Sub(r.usableTS[i-1])
			if gap > maxGap {
				r.warnings = append(r.warnings, Warning{
					Field: r.rs.TimestampField,
					Count: 1,
					Message: fmt.Sprintf("temporal gap of %s between %s and %s exceeds max gap %s",
						gap, r.usableTS[i-1].Format(time.RFC3339), r.usableTS[i].Format(time.RFC3339), maxGap),
				})
			}
		}
	}

	// Duplicates are reported, never dropped; dedup is a downstream concern.
	occurrences := make(map[time.Time]int)
	for _, ts := range r.usableTS {
		occurrences[ts]++
	}
	dupTimestamps := 0
	dupTotal := 0
	for _, n := range occurrences {
		if n-1 > r.rs.Temporal.DuplicateTolerance {
			dupTimestamps++
			dupTotal += n - 1
		}
	}
	if dupTimestamps > 0 {
		r.warnings = append(r.warnings, Warning{
			Field: r.rs.TimestampField,
			Count: dupTotal,
			Message: fmt.Sprintf("%d timestamp(s) duplicated beyond tolerance %d",
				dupTimestamps, r.rs.Temporal.DuplicateTolerance),
		})
	}
}

// score computes the weighted quality dimensions and the verdict.
func (r *run) score(batch *ingest.Batch) *QualityReport {
	n := len(r.records)

	report := &QualityReport{
		SourceID:    batch.SourceID,
		DataType:    batch.DataType,
		RecordCount: n,
		Warnings:    r.warnings,
		Errors:      r.errors,
		Threshold:   r.rs.Threshold(),
		GeneratedAt: time.Now().UTC(),
	}

	completeness := 1.0
	if cells := n * len(r.rs.RequiredFields); cells > 0 {
		completeness = float64(r.nonNullRequired) / float64(cells)
	}

	validity := 1.0
	if cells := n * len(r.rs.FieldTypes); cells > 0 {
		validity = clamp01(1.0 - float64(r.typeFailures+r.rangeFailures)/float64(cells))
	}

	consistency := 1.0
	if n > 0 {
		consistency = clamp01(1.0 - float64(report.WarningTotal())/float64(n))
	}

	timeliness := r.timeliness(batch.CollectedAt)

	report.Scores = map[string]float64{
		DimCompleteness: completeness,
		DimValidity:     validity,
		DimConsistency:  consistency,
		DimTimeliness:   timeliness,
	}

	w := r.rs.Weights
	report.Aggregate = clamp01(completeness*w.Completeness +
		validity*w.Validity +
		consistency*w.Consistency +
		timeliness*w.Timeliness)

	report.Pass = report.Aggregate >= report.Threshold && !report.HasErrors()

	return report
}

// timeliness compares collection lag against the freshness bound: 1.0
// within the bound, decaying linearly to 0 at twice the bound.
func (r *run) timeliness(collectedAt time.Time) float64 {
	if !r.rs.TimeIndexed {
		return 1.0
	}
	if len(r.usableTS) == 0 {
		if len(r.records) == 0 {
			return 1.0
		}
		return 0.0
	}

	bound := r.rs.FreshnessBound.Std()
	if bound <= 0 {
		return 1.0
	}

	latest := r.usableTS[len(r.usableTS)-1]
	lag := collectedAt.Sub(latest)
	switch {
	case lag <= bound:
		return 1.0
	case lag >= 2*bound:
		return 0.0
	default:
		return 1.0 - float64(lag-bound)/float64(bound)
	}
}

// coerceValue coerces a single cell to its declared type.
func coerceValue(v interface{}, ft FieldType) (interface{}, error) {
	switch ft {
	case TypeTimestamp:
		switch val := v.(type) {
		case time.Time:
			return val.UTC(), nil
		case string:
			for _, layout := range []string{
				time.RFC3339,
				"2006-01-02T15:04:05",
				"2006-01-02 15:04:05",
				"2006-01-02",
			} {
				if ts, err := time.Parse(layout, val); err == nil {
					return ts.UTC(), nil
				}
			}
			return nil, fmt.Errorf("cannot coerce %q to timestamp", val)
		default:
			return nil, fmt.Errorf("cannot coerce %T to timestamp", v)
		}

	case TypeNumber:
		switch val := v.(type) {
		case float64:
			return val, nil
		case int:
			return float64(val), nil
		case int64:
			return float64(val), nil
		case string:
			num, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot coerce %q to number", val)
			}
			return num, nil
		default:
			return nil, fmt.Errorf("cannot coerce %T to number", v)
		}

	case TypeString:
		switch val := v.(type) {
		case string:
			return val, nil
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64), nil
		case time.Time:
			return val.UTC().Format(time.RFC3339), nil
		default:
			return nil, fmt.Errorf("cannot coerce %T to string", v)
		}

	default:
		return nil, fmt.Errorf("unknown field type %q", ft)
	}
}

func copyRecords(records []ingest.Record) []ingest.Record {
	out := make([]ingest.Record, len(records))
	for i, rec := range records {
		fields := make(map[string]interface{}, len(rec.Fields))
		for k, v := range rec.Fields {
			fields[k] = v
		}
		out[i] = ingest.Record{Fields: fields}
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
