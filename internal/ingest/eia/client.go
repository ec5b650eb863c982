// Package eia collects fuel and economic series from the EIA v2 API.
package eia

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
const SourceID = "eia"

// Client handles communication with the EIA v2 API.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	apiKey     string
}

// NewClient creates an EIA client. The API key rides on the query string,
// which is the v2 convention.
func NewClient(cfg *config.Config, log *logger.Logger, httpClient *httputil.Client) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("source", SourceID),
		baseURL:    cfg.EIA.BaseURL,
		apiKey:     cfg.EIA.APIKey,
	}
}

// row is one EIA v2 data point.
type row struct {
	Period string   `json:"period"`
	Series string   `json:"series"`
	Region string   `json:"region"`
	Value  *float64 `json:"value"`
	Units  string   `json:"units"`
}

// envelope is the EIA v2 response wrapper.
type envelope struct {
	Response struct {
		Total json.Number `json:"total"`
		Data  []row       `json:"data"`
	} `json:"response"`
}

// FetchSeries fetches one facet combination (series × region) for a date
// window, inclusive on both ends.
func (c *Client) FetchSeries(ctx context.Context, route, series, region string, start, end time.Time) ([]row, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("frequency", "daily")
	params.Set("data[0]", "value")
	params.Set("facets[series][]", series)
	params.Set("facets[region][]", region)
	params.Set("start", start.Format("2006-01-02"))
	params.Set("end", end.Format("2006-01-02"))

	fullURL := fmt.Sprintf("%s/%s/data/?%s", c.baseURL, route, params.Encode())

	body, err := c.httpClient.GetBody(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s series=%s region=%s: %w", route, series, region, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse EIA response: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"route":  route,
		"series": series,
		"region": region,
		"rows":   len(env.Response.Data),
	}).Debug("Fetched series")

	return env.Response.Data, nil
}

// ParsePeriod parses an EIA period value (daily or hourly) into UTC.
func ParsePeriod(value string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02",
		"2006-01-02T15",
	} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable EIA period: %q", value)
}
