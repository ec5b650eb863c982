// Package noaa collects station weather observations from the NOAA Climate
// Data Online (CDO) API.
package noaa

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
const SourceID = "noaa"

// Client handles communication with the CDO v2 API.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	pageLimit  int
}

// NewClient creates a CDO client. The access token is sent on every request.
func NewClient(cfg *config.Config, log *logger.Logger, httpClient *httputil.Client) *Client {
	httpClient.WithHeader("token", cfg.NOAA.Token)

	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("source", SourceID),
		baseURL:    cfg.NOAA.BaseURL,
		pageLimit:  cfg.NOAA.PageLimit,
	}
}

// observation is one CDO data point.
type observation struct {
	Date     string  `json:"date"`
	DataType string  `json:"datatype"`
	Station  string  `json:"station"`
	Value    float64 `json:"value"`
}

// dataResponse is the CDO /data envelope. An exhausted window omits
// "results" entirely.
type dataResponse struct {
	Metadata struct {
		Resultset struct {
			Count  int `json:"count"`
			Limit  int `json:"limit"`
			Offset int `json:"offset"`
		} `json:"resultset"`
	} `json:"metadata"`
	Results []observation `json:"results"`
}

// FetchData fetches one page of observations for a station and day window.
// offset is 1-based, matching the CDO convention.
func (c *Client) FetchData(ctx context.Context, datasetID, stationID string, start, end time.Time, offset int) (*dataResponse, error) {
	params := url.Values{}
	params.Set("datasetid", datasetID)
	params.Set("stationid", stationID)
	params.Set("startdate", start.Format("2006-01-02"))
	params.Set("enddate", end.Format("2006-01-02"))
	params.Set("units", "metric")
	params.Set("limit", fmt.Sprintf("%d", c.pageLimit))
	params.Set("offset", fmt.Sprintf("%d", offset))

	fullURL := fmt.Sprintf("%s/data?%s", c.baseURL, params.Encode())

	body, err := c.httpClient.GetBody(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s observations for %s: %w", datasetID, stationID, err)
	}

	var resp dataResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse CDO response: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"station": stationID,
		"offset":  offset,
		"rows":    len(resp.Results),
		"count":   resp.Metadata.Resultset.Count,
	}).Debug("Fetched observations")

	return &resp, nil
}

// ParseDate parses a CDO observation date and normalizes it to UTC.
func ParseDate(value string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable CDO date: %q", value)
}
