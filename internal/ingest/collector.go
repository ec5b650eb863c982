package ingest

import (
	"context"
	"fmt"
	"time"
)

// DateRange is a closed range of calendar days. Start and End are UTC
// midnights; End is inclusive.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange normalizes both bounds to UTC midnight.
func NewDateRange(start, end time.Time) (DateRange, error) {
	s := Day(start)
	e := Day(end)
	if e.Before(s) {
		return DateRange{}, fmt.Errorf("invalid date range: end %s before start %s",
			e.Format("2006-01-02"), s.Format("2006-01-02"))
	}
	return DateRange{Start: s, End: e}, nil
}

// Days returns each calendar day in the range, in order.
func (r DateRange) Days() []time.Time {
	var days []time.Time
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Day truncates a time to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SubRange is one bounded unit of a collection job: a single UTC day of one
// dataset. Provider-specific iteration (pages, stations, facets) happens
// inside the fetch; the sub-range is the isolation boundary for failures.
type SubRange struct {
	Key   string    // stable identifier, e.g. "pjm/rt_hrl_lmps/2024-01-02"
	Day   time.Time // UTC midnight
	Start time.Time // inclusive
	End   time.Time // exclusive
}

// DaySubRange builds the sub-range covering one UTC day.
func DaySubRange(sourceID, dataType string, day time.Time) SubRange {
	day = Day(day)
	return SubRange{
		Key:   fmt.Sprintf("%s/%s/%s", sourceID, dataType, day.Format("2006-01-02")),
		Day:   day,
		Start: day,
		End:   day.AddDate(0, 0, 1),
	}
}

// Collector is the per-provider collection contract. Implementations know
// their provider's endpoint shape, pagination scheme, and field mapping;
// they perform no validation beyond dropping records outside the requested
// range.
type Collector interface {
	// Source returns the provider's source id ("pjm", "noaa", "eia").
	Source() string

	// DataTypes lists the datasets this collector can fetch.
	DataTypes() []string

	// SubRanges splits a requested date range into fetchable units.
	SubRanges(dataType string, r DateRange) ([]SubRange, error)

	// Fetch collects all records for one sub-range. A fetch that exhausts
	// retries fails only this sub-range; siblings are unaffected.
	Fetch(ctx context.Context, dataType string, sr SubRange) (*Batch, error)
}

// InRange reports whether ts falls inside [sr.Start, sr.End). Providers
// occasionally return rows outside the requested window; collectors filter
// them rather than trusting the response.
func (sr SubRange) InRange(ts time.Time) bool {
	return !ts.Before(sr.Start) && ts.Before(sr.End)
}
