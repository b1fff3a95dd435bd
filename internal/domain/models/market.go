package models

import (
	"fmt"
	"strings"
)

// Defaults for FRED-backed metrics.
const (
	DefaultFREDMetric = "unemp_rate"
	DefaultFREDUnit   = "%"
	DefaultYear       = 2025
	EnvMarketKey      = "env_default"
)

// MarketConfig describes one market to load.
type MarketConfig struct {
	Key      string `json:"key"`
	GeoLevel string `json:"geo_level"`
	GeoID    string `json:"geo_id"`
	GeoName  string `json:"geo_name"`

	StartYear int `json:"start_year"`
	EndYear   int `json:"end_year"`

	FREDSeriesID         string `json:"fred_series_id,omitempty"`
	FREDMetric           string `json:"fred_metric"`
	FREDUnit             string `json:"fred_unit"`
	FREDObservationStart string `json:"fred_observation_start,omitempty"`
	FREDObservationEnd   string `json:"fred_observation_end,omitempty"`
}

// Years returns every year in the inclusive range.
func (m MarketConfig) Years() []int {
	end := m.EndYear
	if end < m.StartYear {
		end = m.StartYear
	}
	years := make([]int, 0, end-m.StartYear+1)
	for y := m.StartYear; y <= end; y++ {
		years = append(years, y)
	}
	return years
}

// SplitFIPS splits "SS-CCC" into state and county codes.
func (m MarketConfig) SplitFIPS() (state, county string) {
	state, county, _ = strings.Cut(m.GeoID, "-")
	return state, county
}

// FREDRequest builds the series request for this market, or false if none is configured.
func (m MarketConfig) FREDRequest() (SeriesRequest, bool) {
	if strings.TrimSpace(m.FREDSeriesID) == "" {
		return SeriesRequest{}, false
	}
	metric := m.FREDMetric
	if metric == "" {
		metric = DefaultFREDMetric
	}
	unit := m.FREDUnit
	if unit == "" {
		unit = DefaultFREDUnit
	}
	return SeriesRequest{
		SeriesID:         m.FREDSeriesID,
		Metric:           metric,
		Unit:             unit,
		GeoLevel:         m.GeoLevel,
		GeoID:            m.GeoID,
		GeoName:          m.GeoName,
		ObservationStart: m.FREDObservationStart,
		ObservationEnd:   m.FREDObservationEnd,
	}, true
}

// YearLabel renders "year=Y" or "years=Y1-Y2".
func (m MarketConfig) YearLabel() string {
	if m.EndYear <= m.StartYear {
		return fmt.Sprintf("year=%d", m.StartYear)
	}
	return fmt.Sprintf("years=%d-%d", m.StartYear, m.EndYear)
}

// TargetMarkets is the static list of preconfigured markets.
var TargetMarkets = []MarketConfig{
	{
		Key: "salt_lake_county", GeoLevel: GeoLevelCounty, GeoID: "49-035", GeoName: "Salt Lake County, UT",
		StartYear: DefaultYear, EndYear: DefaultYear,
		FREDSeriesID: "LAUCN490350000000003A", FREDMetric: DefaultFREDMetric, FREDUnit: DefaultFREDUnit,
	},
	{
		Key: "maricopa_county", GeoLevel: GeoLevelCounty, GeoID: "04-013", GeoName: "Maricopa County, AZ",
		StartYear: DefaultYear, EndYear: DefaultYear,
		FREDSeriesID: "LAUCN040130000000003A", FREDMetric: DefaultFREDMetric, FREDUnit: DefaultFREDUnit,
	},
	{
		Key: "travis_county", GeoLevel: GeoLevelCounty, GeoID: "48-453", GeoName: "Travis County, TX",
		StartYear: DefaultYear, EndYear: DefaultYear,
		FREDSeriesID: "LAUCN484530000000003A", FREDMetric: DefaultFREDMetric, FREDUnit: DefaultFREDUnit,
	},
	{
		Key: "king_county", GeoLevel: GeoLevelCounty, GeoID: "53-033", GeoName: "King County, WA",
		StartYear: DefaultYear, EndYear: DefaultYear,
		FREDSeriesID: "LAUCN530330000000003A", FREDMetric: DefaultFREDMetric, FREDUnit: DefaultFREDUnit,
	},
}

// FindMarket looks up a static market by key.
func FindMarket(key string) (MarketConfig, bool) {
	for _, m := range TargetMarkets {
		if m.Key == key {
			return m, true
		}
	}
	return MarketConfig{}, false
}

// MarketsByKeys returns the static markets for keys, or ErrUnknownMarket naming the missing ones.
func MarketsByKeys(keys []string) ([]MarketConfig, error) {
	var (
		found   []MarketConfig
		unknown []string
	)
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		m, ok := FindMarket(k)
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		found = append(found, m)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarket, strings.Join(unknown, ", "))
	}
	return found, nil
}
