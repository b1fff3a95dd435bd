package fred

import (
	"context"
	"fmt"
	"strings"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	drepo "github.com/NayellyZurita/CRE-Market-Signals/internal/domain/repository"
	xhttp "github.com/NayellyZurita/CRE-Market-Signals/pkg/http"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/logger"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/util"
)

// DefaultBaseURL is the FRED series observations endpoint.
const DefaultBaseURL = "https://api.stlouisfed.org/fred/series/observations"

// FRED marks missing observations with ".".
var sentinels = util.NewSentinels(".", "NA", "N/A", "")

// Client pulls observation series from the FRED API.
type Client struct {
	fetcher drepo.Fetcher
	apiKey  string
	baseURL string
	logger  *logger.Logger
	metrics drepo.Metrics
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records skipped requests.
func WithMetrics(m drepo.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a FRED client. An empty key makes every fetch a logged no-op.
func New(fetcher drepo.Fetcher, apiKey string, opts ...Option) *Client {
	c := &Client{
		fetcher: fetcher,
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: DefaultBaseURL,
		logger:  logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchSeries returns one signal per observation with a parseable date and value.
func (c *Client) FetchSeries(ctx context.Context, req models.SeriesRequest) ([]models.MarketSignal, error) {
	if c.apiKey == "" {
		c.logger.Warn("FRED API key not configured; skipping",
			logger.String("source", models.SourceFRED),
			logger.String("series_id", req.SeriesID),
		)
		if c.metrics != nil {
			c.metrics.RecordSourceSkipped(models.SourceFRED, "missing_token")
		}
		return nil, nil
	}

	params := map[string][]string{
		"series_id": {req.SeriesID},
		"api_key":   {c.apiKey},
		"file_type": {"json"},
	}
	if req.ObservationStart != "" {
		params["observation_start"] = []string{req.ObservationStart}
	}
	if req.ObservationEnd != "" {
		params["observation_end"] = []string{req.ObservationEnd}
	}

	var payload interface{}
	if err := c.fetcher.FetchJSON(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL,
		QueryParams: params,
	}, &payload); err != nil {
		return nil, fmt.Errorf("fred %s: %w", req.SeriesID, err)
	}

	doc, _ := payload.(map[string]interface{})
	observations, ok := doc["observations"].([]interface{})
	if !ok {
		return nil, nil
	}

	var out []models.MarketSignal
	for _, item := range observations {
		obs, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		date, _ := obs["date"].(string)
		observedAt, ok := util.ParseDate(date)
		if !ok {
			continue
		}
		value, ok := util.ParseFinite(obs["value"], sentinels)
		if !ok {
			continue
		}
		sig, err := models.NewMarketSignal(models.SignalInput{
			Source:     models.SourceFRED,
			GeoLevel:   req.GeoLevel,
			GeoID:      req.GeoID,
			GeoName:    req.GeoName,
			ObservedAt: observedAt,
			Metric:     req.Metric,
			Value:      value,
			Unit:       req.Unit,
			RawPayload: obs,
		})
		if err != nil {
			return nil, fmt.Errorf("fred %s: %w", req.SeriesID, err)
		}
		out = append(out, sig)
	}
	return out, nil
}
