// Package pjm collects hourly market data from the PJM Data Miner API.
package pjm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/wonny/gridflow/pkg/config"
	"github.com/wonny/gridflow/pkg/httputil"
	"github.com/wonny/gridflow/pkg/logger"
)

// SourceID identifies this provider in rule sets and partition keys.
const SourceID = "pjm"

// ept is PJM's canonical time reference (Eastern Prevailing Time).
var ept *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(fmt.Sprintf("pjm: load EPT location: %v", err))
	}
	ept = loc
}

// Client handles communication with the PJM Data Miner API.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	rowCount   int
}

// NewClient creates a PJM Data Miner client. The subscription key is sent
// on every request.
func NewClient(cfg *config.Config, log *logger.Logger, httpClient *httputil.Client) *Client {
	httpClient.WithHeader("Ocp-Apim-Subscription-Key", cfg.PJM.SubscriptionKey)

	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("source", SourceID),
		baseURL:    cfg.PJM.BaseURL,
		rowCount:   cfg.PJM.RowCount,
	}
}

// page is one Data Miner response page.
type page struct {
	TotalRows int                      `json:"totalRows"`
	Items     []map[string]interface{} `json:"items"`
}

// FetchPage fetches one page of a dataset for an EPT datetime window.
// startRow is 1-based, matching the Data Miner convention.
func (c *Client) FetchPage(ctx context.Context, endpoint string, start, end time.Time, startRow int) (*page, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("rowCount", fmt.Sprintf("%d", c.rowCount))
	params.Set("startRow", fmt.Sprintf("%d", startRow))
	params.Set("datetime_beginning_ept", fmt.Sprintf("%s to %s",
		start.In(ept).Format("2006-01-02T15:04"),
		end.In(ept).Format("2006-01-02T15:04"),
	))

	fullURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())

	body, err := c.httpClient.GetBody(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s page at row %d: %w", endpoint, startRow, err)
	}

	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", endpoint, err)
	}

	c.logger.WithFields(map[string]interface{}{
		"endpoint":  endpoint,
		"start_row": startRow,
		"rows":      len(p.Items),
		"total":     p.TotalRows,
	}).Debug("Fetched page")

	return &p, nil
}

// ParseEPT parses a Data Miner EPT timestamp and normalizes it to UTC.
func ParseEPT(value string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02T15:04:05",
		"1/2/2006 3:04:05 PM",
	} {
		if ts, err := time.ParseInLocation(layout, value, ept); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable EPT timestamp: %q", value)
}
