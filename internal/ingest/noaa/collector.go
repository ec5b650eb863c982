package noaa

import (
	"context"
	"fmt"
	"sort"

	"github.com/wonny/gridflow/internal/ingest"
)

// datasetIDs maps gridflow dataset names to CDO dataset ids.
var datasetIDs = map[string]string{
	"ghcnd_daily": "GHCND",
}

// Collector collects weather observations. The CDO API has no bulk
// endpoint, so collection iterates the configured stations within each day
// window, paging per station where a station exceeds the page limit.
type Collector struct {
	client   *Client
	stations []string
}

// NewCollector creates a NOAA collector over the configured stations.
func NewCollector(client *Client, stations []string) *Collector {
	return &Collector{client: client, stations: stations}
}

// Source returns the provider id.
func (c *Collector) Source() string { return SourceID }

// DataTypes lists the supported CDO datasets.
func (c *Collector) DataTypes() []string {
	types := make([]string, 0, len(datasetIDs))
	for dt := range datasetIDs {
		types = append(types, dt)
	}
	sort.Strings(types)
	return types
}

// SubRanges splits the range into one sub-range per day.
func (c *Collector) SubRanges(dataType string, r ingest.DateRange) ([]ingest.SubRange, error) {
	if _, ok := datasetIDs[dataType]; !ok {
		return nil, fmt.Errorf("unknown noaa dataset: %q", dataType)
	}
	if len(c.stations) == 0 {
		return nil, fmt.Errorf("no noaa stations configured")
	}

	days := r.Days()
	subs := make([]ingest.SubRange, 0, len(days))
	for _, day := range days {
		subs = append(subs, ingest.DaySubRange(SourceID, dataType, day))
	}
	return subs, nil
}

// Fetch collects one day across all configured stations. The enddate sent
// to CDO is the day itself (CDO ranges are date-inclusive).
func (c *Collector) Fetch(ctx context.Context, dataType string, sr ingest.SubRange) (*ingest.Batch, error) {
	datasetID, ok := datasetIDs[dataType]
	if !ok {
		return nil, fmt.Errorf("unknown noaa dataset: %q", dataType)
	}

	batch := ingest.NewBatch(SourceID, dataType)

	for _, station := range c.stations {
		if err := c.fetchStation(ctx, batch, datasetID, station, sr); err != nil {
			return nil, fmt.Errorf("station %s: %w", station, err)
		}
	}

	return batch, nil
}

// fetchStation pages through one station's observations for the day.
func (c *Collector) fetchStation(ctx context.Context, batch *ingest.Batch, datasetID, station string, sr ingest.SubRange) error {
	offset := 1
	for {
		resp, err := c.client.FetchData(ctx, datasetID, station, sr.Day, sr.Day, offset)
		if err != nil {
			return err
		}
		if len(resp.Results) == 0 {
			return nil
		}

		for _, obs := range resp.Results {
			ts, err := ParseDate(obs.Date)
			if err != nil {
				return err
			}
			if !sr.InRange(ts) {
				continue
			}

			batch.Append(ingest.NewRecord(map[string]interface{}{
				"timestamp": ts,
				"station":   obs.Station,
				"element":   obs.DataType,
				"value":     obs.Value,
			}))
		}

		offset += len(resp.Results)
		if offset > resp.Metadata.Resultset.Count {
			return nil
		}
	}
}
