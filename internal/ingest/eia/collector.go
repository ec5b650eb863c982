package eia

import (
	"context"
	"fmt"
	"sort"

	"github.com/wonny/gridflow/internal/ingest"
)

// routes maps gridflow dataset names to EIA v2 API routes.
var routes = map[string]string{
	"fuel_prices":  "natural-gas/pri/fut",
	"gen_fuel_mix": "electricity/rto/fuel-type-data",
}

// Collector collects fuel/economic series. EIA has no per-day pagination;
// collection iterates every configured facet combination (series × region)
// within each day window.
type Collector struct {
	client  *Client
	series  []string
	regions []string
}

// NewCollector creates an EIA collector over the configured facets.
func NewCollector(client *Client, series, regions []string) *Collector {
	return &Collector{client: client, series: series, regions: regions}
}

// Source returns the provider id.
func (c *Collector) Source() string { return SourceID }

// DataTypes lists the supported EIA datasets.
func (c *Collector) DataTypes() []string {
	types := make([]string, 0, len(routes))
	for dt := range routes {
		types = append(types, dt)
	}
	sort.Strings(types)
	return types
}

// SubRanges splits the range into one sub-range per day.
func (c *Collector) SubRanges(dataType string, r ingest.DateRange) ([]ingest.SubRange, error) {
	if _, ok := routes[dataType]; !ok {
		return nil, fmt.Errorf("unknown eia dataset: %q", dataType)
	}
	if len(c.series) == 0 || len(c.regions) == 0 {
		return nil, fmt.Errorf("no eia facets configured")
	}

	days := r.Days()
	subs := make([]ingest.SubRange, 0, len(days))
	for _, day := range days {
		subs = append(subs, ingest.DaySubRange(SourceID, dataType, day))
	}
	return subs, nil
}

// Fetch collects one day across every facet combination.
func (c *Collector) Fetch(ctx context.Context, dataType string, sr ingest.SubRange) (*ingest.Batch, error) {
	route, ok := routes[dataType]
	if !ok {
		return nil, fmt.Errorf("unknown eia dataset: %q", dataType)
	}

	batch := ingest.NewBatch(SourceID, dataType)

	for _, series := range c.series {
		for _, region := range c.regions {
			rows, err := c.client.FetchSeries(ctx, route, series, region, sr.Day, sr.Day)
			if err != nil {
				return nil, fmt.Errorf("facet %s/%s: %w", series, region, err)
			}

			for _, r := range rows {
				ts, err := ParsePeriod(r.Period)
				if err != nil {
					return nil, err
				}
				if !sr.InRange(ts) {
					continue
				}

				fields := map[string]interface{}{
					"timestamp": ts,
					"series":    r.Series,
					"region":    r.Region,
					"units":     r.Units,
				}
				if r.Value != nil {
					fields["value"] = *r.Value
				} else {
					fields["value"] = nil
				}
				batch.Append(ingest.NewRecord(fields))
			}
		}
	}

	return batch, nil
}
