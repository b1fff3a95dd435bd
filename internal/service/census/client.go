package census

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

const (
	DefaultBaseURL = "https://api.census.gov/data"
	DefaultDataset = "acs/acs5"

	nameColumn = "NAME"
)

// DefaultVariables is the ACS profile pulled for every market.
var DefaultVariables = []models.ACSVariable{
	{Code: "B01003_001E", Metric: "population_total", Unit: "count"},
	{Code: "B19013_001E", Metric: "median_household_income", Unit: "USD"},
	{Code: "B25077_001E", Metric: "median_home_value", Unit: "USD"},
	{Code: "B25058_001E", Metric: "median_gross_rent", Unit: "USD"},
}

// Census publishes suppressed or unavailable estimates with these codes.
var sentinels = util.NewSentinels(
	"", "N/A", "NA", "null", "Null", "-",
	"-666666666", "-888888888", "-999999999",
)

// Client pulls ACS estimates from the Census Data API.
type Client struct {
	fetcher drepo.Fetcher
	apiKey  string
	baseURL string
	dataset string
	logger  *logger.Logger
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithDataset overrides the dataset path, e.g. "acs/acs1".
func WithDataset(d string) Option {
	return func(c *Client) { c.dataset = strings.Trim(d, "/") }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates an ACS client. The API key is optional.
func New(fetcher drepo.Fetcher, apiKey string, opts ...Option) *Client {
	c := &Client{
		fetcher: fetcher,
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: DefaultBaseURL,
		dataset: DefaultDataset,
		logger:  logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchProfile returns one signal per variable with a usable estimate.
// Unsupported levels and a county query without a county code fail before any request.
func (c *Client) FetchProfile(ctx context.Context, q models.ACSQuery) ([]models.MarketSignal, error) {
	vars := q.Variables
	if vars == nil {
		vars = DefaultVariables
	}
	if len(vars) == 0 {
		return nil, nil
	}

	geoParams, geoID, err := geography(q)
	if err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(vars)+1)
	columns = append(columns, nameColumn)
	for _, v := range vars {
		columns = append(columns, v.Code)
	}

	params := map[string][]string{"get": {strings.Join(columns, ",")}}
	for k, v := range geoParams {
		params[k] = []string{v}
	}
	if c.apiKey != "" {
		params["key"] = []string{c.apiKey}
	}

	var payload interface{}
	if err := c.fetcher.FetchJSON(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         fmt.Sprintf("%s/%d/%s", c.baseURL, q.Year, c.dataset),
		QueryParams: params,
	}, &payload); err != nil {
		return nil, fmt.Errorf("acs %d %s: %w", q.Year, geoID, err)
	}

	rows, ok := tableRows(payload)
	if !ok {
		c.logger.Warn("ACS response was not a table",
			logger.String("source", models.SourceACS),
			logger.String("geo_id", geoID),
			logger.Int("year", q.Year),
		)
		return nil, nil
	}

	observedAt := util.YearStart(q.Year)
	var out []models.MarketSignal
	for _, row := range rows {
		name, _ := row[nameColumn].(string)
		if strings.TrimSpace(name) == "" {
			name = geoID
		}
		for _, v := range vars {
			raw := row[v.Code]
			value, ok := util.ParseFinite(raw, sentinels)
			if !ok {
				continue
			}
			sig, err := models.NewMarketSignal(models.SignalInput{
				Source:     models.SourceACS,
				GeoLevel:   q.GeoLevel,
				GeoID:      geoID,
				GeoName:    name,
				ObservedAt: observedAt,
				Metric:     v.Metric,
				Value:      value,
				Unit:       v.Unit,
				RawPayload: map[string]interface{}{
					"variable": v.Code,
					"value":    raw,
					"raw":      row,
				},
			})
			if err != nil {
				return nil, fmt.Errorf("acs %d %s: %w", q.Year, geoID, err)
			}
			out = append(out, sig)
		}
	}
	return out, nil
}

// geography returns the for/in parameters and the canonical geo id for q.
func geography(q models.ACSQuery) (map[string]string, string, error) {
	switch q.GeoLevel {
	case models.GeoLevelCounty:
		if q.CountyFIPS == "" {
			return nil, "", &models.InvalidGeoFormatError{Geo: q.StateFIPS, Reason: "county code required for county level"}
		}
		return map[string]string{
			"for": "county:" + q.CountyFIPS,
			"in":  "state:" + q.StateFIPS,
		}, q.StateFIPS + "-" + q.CountyFIPS, nil
	case models.GeoLevelState:
		return map[string]string{"for": "state:" + q.StateFIPS}, q.StateFIPS, nil
	default:
		return nil, "", &models.UnsupportedGeoLevelError{Level: q.GeoLevel}
	}
}

// tableRows converts the array-of-arrays response into header-keyed rows.
// Rows that are not arrays or whose width differs from the header are dropped.
func tableRows(payload interface{}) ([]map[string]interface{}, bool) {
	table, ok := payload.([]interface{})
	if !ok || len(table) == 0 {
		return nil, false
	}
	header, ok := table[0].([]interface{})
	if !ok {
		return nil, false
	}

	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = fmt.Sprint(h)
	}

	rows := make([]map[string]interface{}, 0, len(table)-1)
	for _, item := range table[1:] {
		cells, ok := item.([]interface{})
		if !ok || len(cells) != len(keys) {
			continue
		}
		row := make(map[string]interface{}, len(keys))
		for i, k := range keys {
			row[k] = cells[i]
		}
		rows = append(rows, row)
	}
	return rows, true
}
