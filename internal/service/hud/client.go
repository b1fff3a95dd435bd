package hud

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	drepo "github.com/NayellyZurita/CRE-Market-Signals/internal/domain/repository"
	xhttp "github.com/NayellyZurita/CRE-Market-Signals/pkg/http"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/logger"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/util"
)

// DefaultBaseURL is the HUD User FMR data endpoint.
const DefaultBaseURL = "https://www.huduser.gov/hudapi/public/fmr/data"

const unitUSD = "USD"

type metricKey struct{ key, metric string }

var (
	nonDigits = regexp.MustCompile(`\D`)
	sentinels = util.NewSentinels("", "NA", "N/A")

	// basicdata keys of the nested response shape.
	nestedMetrics = []metricKey{
		{"Efficiency", "fmr_0br"},
		{"One-Bedroom", "fmr_1br"},
		{"Two-Bedroom", "fmr_2br"},
		{"Three-Bedroom", "fmr_3br"},
		{"Four-Bedroom", "fmr_4br"},
	}

	flatMetrics = []string{"fmr_0br", "fmr_1br", "fmr_2br", "fmr_3br", "fmr_4br"}

	nameKeys = []string{"area_name", "metro_name", "county_name", "cbsa_name", "county", "name", "state"}
)

// Client pulls Fair Market Rents from the HUD User API.
type Client struct {
	fetcher drepo.Fetcher
	token   string
	baseURL string
	logger  *logger.Logger
	metrics drepo.Metrics
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records skipped requests.
func WithMetrics(m drepo.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a HUD client. An empty token makes every fetch a logged no-op.
func New(fetcher drepo.Fetcher, token string, opts ...Option) *Client {
	c := &Client{
		fetcher: fetcher,
		token:   strings.TrimSpace(token),
		baseURL: DefaultBaseURL,
		logger:  logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EntityID normalizes a county FIPS ("49-035", "49035") into HUD's 10-digit entity id.
// Ten digits ending in 9999 pass through unchanged.
func EntityID(geoID string) (string, error) {
	digits := nonDigits.ReplaceAllString(geoID, "")
	switch {
	case len(digits) == 5:
		return digits + "99999", nil
	case len(digits) == 10 && strings.HasSuffix(digits, "9999"):
		return digits, nil
	default:
		return "", &models.InvalidGeoFormatError{Geo: geoID, Reason: "expected 5-digit county FIPS or 10-digit HUD entity id"}
	}
}

// FetchFairMarketRents returns one signal per bedroom size present in the response.
// A missing token, unusable geography or upstream error status yields an empty result and a warning.
func (c *Client) FetchFairMarketRents(ctx context.Context, geoLevel, geoID string, year int) ([]models.MarketSignal, error) {
	log := c.logger.With(logger.String("source", models.SourceHUD), logger.String("geo_id", geoID), logger.Int("year", year))

	if c.token == "" {
		log.Warn("HUD token not configured; skipping")
		c.skipped("missing_token")
		return nil, nil
	}

	entity, err := EntityID(geoID)
	if err != nil {
		log.Warn("HUD geography not usable; skipping", logger.Error(err))
		c.skipped("invalid_geo")
		return nil, nil
	}

	var payload interface{}
	err = c.fetcher.FetchJSON(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    fmt.Sprintf("%s/%s", c.baseURL, entity),
		Headers: map[string]string{
			"Authorization": "Bearer " + c.token,
			"Accept":        "application/json",
		},
		QueryParams: map[string][]string{"year": {fmt.Sprint(year)}},
	}, &payload)
	if err != nil {
		var upstream *xhttp.UpstreamError
		if errors.As(err, &upstream) {
			log.Warn("HUD request failed; skipping",
				logger.String("entity", entity),
				logger.Int("status", upstream.StatusCode),
			)
			c.skipped("upstream_status")
			return nil, nil
		}
		return nil, fmt.Errorf("hud fmr %s: %w", entity, err)
	}

	records := unwrapRecords(payload)
	if len(records) == 0 {
		log.Warn("HUD response had no records", logger.String("entity", entity))
		return nil, nil
	}

	observedAt := util.YearStart(responseYear(records[0], year))

	var out []models.MarketSignal
	for _, rec := range records {
		values := extractValues(rec)
		if len(values) == 0 {
			continue
		}
		name := geoName(rec, entity)
		for _, v := range values {
			sig, err := models.NewMarketSignal(models.SignalInput{
				Source:     models.SourceHUD,
				GeoLevel:   geoLevel,
				GeoID:      geoID,
				GeoName:    name,
				ObservedAt: observedAt,
				Metric:     v.metric,
				Value:      v.value,
				Unit:       unitUSD,
				RawPayload: rec,
			})
			if err != nil {
				return nil, fmt.Errorf("hud fmr %s: %w", entity, err)
			}
			out = append(out, sig)
		}
	}
	return out, nil
}

func (c *Client) skipped(reason string) {
	if c.metrics != nil {
		c.metrics.RecordSourceSkipped(models.SourceHUD, reason)
	}
}

// unwrapRecords accepts {"data": {...}}, {"data": [...]}, a bare record or a list of records.
func unwrapRecords(payload interface{}) []map[string]interface{} {
	switch p := payload.(type) {
	case map[string]interface{}:
		inner, ok := p["data"]
		if !ok {
			return []map[string]interface{}{p}
		}
		switch d := inner.(type) {
		case map[string]interface{}:
			return []map[string]interface{}{d}
		case []interface{}:
			return recordList(d)
		default:
			return nil
		}
	case []interface{}:
		return recordList(p)
	default:
		return nil
	}
}

func recordList(items []interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

type payloadShape int

const (
	shapeFlat payloadShape = iota
	shapeNested
)

func detectShape(rec map[string]interface{}) (payloadShape, map[string]interface{}) {
	if basic, ok := rec["basicdata"].(map[string]interface{}); ok {
		return shapeNested, basic
	}
	return shapeFlat, nil
}

func responseYear(rec map[string]interface{}, fallback int) int {
	shape, basic := detectShape(rec)
	if shape != shapeNested {
		return fallback
	}
	if y, ok := util.AsInt(basic["year"]); ok && y > 0 {
		return y
	}
	return fallback
}

type metricValue struct {
	metric string
	value  float64
}

func extractValues(rec map[string]interface{}) []metricValue {
	shape, basic := detectShape(rec)
	switch shape {
	case shapeNested:
		return collect(basic, nestedMetrics)
	default:
		pairs := make([]metricKey, len(flatMetrics))
		for i, m := range flatMetrics {
			pairs[i] = metricKey{key: m, metric: m}
		}
		return collect(rec, pairs)
	}
}

func collect(src map[string]interface{}, pairs []metricKey) []metricValue {
	var out []metricValue
	for _, p := range pairs {
		if v, ok := util.ParseFinite(src[p.key], sentinels); ok {
			out = append(out, metricValue{metric: p.metric, value: v})
		}
	}
	return out
}

func geoName(rec map[string]interface{}, fallback string) string {
	seen := make(map[string]struct{}, len(nameKeys))
	parts := make([]string, 0, len(nameKeys))
	for _, k := range nameKeys {
		s, ok := rec[k].(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, ", ")
}

