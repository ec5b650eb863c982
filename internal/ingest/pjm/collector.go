package pjm

import (
	"context"
	"fmt"
	"sort"

	"github.com/wonny/gridflow/internal/ingest"
)

// fieldMappings translate Data Miner column names to the normalized record
// schema, per dataset. The timestamp column is handled separately.
var fieldMappings = map[string]map[string]string{
	"rt_hrl_lmps": {
		"pnode_id":               "node_id",
		"pnode_name":             "node_name",
		"total_lmp_rt":           "total_lmp",
		"congestion_price_rt":    "congestion_price",
		"marginal_loss_price_rt": "marginal_loss_price",
		"system_energy_price_rt": "system_energy_price",
	},
	"da_hrl_lmps": {
		"pnode_id":               "node_id",
		"pnode_name":             "node_name",
		"total_lmp_da":           "total_lmp",
		"congestion_price_da":    "congestion_price",
		"marginal_loss_price_da": "marginal_loss_price",
		"system_energy_price_da": "system_energy_price",
	},
	"hrl_load_metered": {
		"load_area": "load_area",
		"mw":        "load_mw",
	},
}

const timestampColumn = "datetime_beginning_ept"

// Collector collects hourly market datasets from PJM. Pages by row offset
// inside day windows because Data Miner caps the rows per response.
type Collector struct {
	client *Client
}

// NewCollector creates a PJM collector.
func NewCollector(client *Client) *Collector {
	return &Collector{client: client}
}

// Source returns the provider id.
func (c *Collector) Source() string { return SourceID }

// DataTypes lists the supported Data Miner datasets.
func (c *Collector) DataTypes() []string {
	types := make([]string, 0, len(fieldMappings))
	for dt := range fieldMappings {
		types = append(types, dt)
	}
	sort.Strings(types)
	return types
}

// SubRanges splits the range into one sub-range per day.
func (c *Collector) SubRanges(dataType string, r ingest.DateRange) ([]ingest.SubRange, error) {
	if _, ok := fieldMappings[dataType]; !ok {
		return nil, fmt.Errorf("unknown pjm dataset: %q", dataType)
	}

	days := r.Days()
	subs := make([]ingest.SubRange, 0, len(days))
	for _, day := range days {
		subs = append(subs, ingest.DaySubRange(SourceID, dataType, day))
	}
	return subs, nil
}

// Fetch pages through one day window and maps rows into raw records.
// An empty page (zero rows, HTTP 200) signals exhaustion, not an error.
func (c *Collector) Fetch(ctx context.Context, dataType string, sr ingest.SubRange) (*ingest.Batch, error) {
	mapping, ok := fieldMappings[dataType]
	if !ok {
		return nil, fmt.Errorf("unknown pjm dataset: %q", dataType)
	}

	batch := ingest.NewBatch(SourceID, dataType)

	startRow := 1
	for {
		page, err := c.client.FetchPage(ctx, dataType, sr.Start, sr.End, startRow)
		if err != nil {
			return nil, err
		}
		if len(page.Items) == 0 {
			break
		}

		for _, item := range page.Items {
			rec, err := c.mapRow(item, mapping)
			if err != nil {
				return nil, fmt.Errorf("map row at offset %d: %w", startRow, err)
			}

			// Data Miner windows are EPT-aligned; rows outside the UTC day
			// are dropped rather than trusted.
			if ts, ok := rec.Timestamp("timestamp"); ok && !sr.InRange(ts) {
				continue
			}
			batch.Append(rec)
		}

		startRow += len(page.Items)
		if startRow > page.TotalRows {
			break
		}
	}

	return batch, nil
}

// mapRow translates one Data Miner row to the normalized schema.
func (c *Collector) mapRow(item map[string]interface{}, mapping map[string]string) (ingest.Record, error) {
	fields := make(map[string]interface{}, len(mapping)+1)

	rawTS, ok := item[timestampColumn].(string)
	if !ok {
		return ingest.Record{}, fmt.Errorf("row missing %s", timestampColumn)
	}
	ts, err := ParseEPT(rawTS)
	if err != nil {
		return ingest.Record{}, err
	}
	fields["timestamp"] = ts

	for provider, normalized := range mapping {
		v, ok := item[provider]
		if !ok {
			fields[normalized] = nil
			continue
		}
		fields[normalized] = v
	}

	return ingest.NewRecord(fields), nil
}
