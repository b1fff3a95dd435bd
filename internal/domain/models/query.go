package models

import "strings"

// Query limits.
const (
	DefaultQueryLimit = 200
	MaxQueryLimit     = 2000
)

// ExportFormat is a result format for the read surface.
type ExportFormat string

const (
	FormatJSON    ExportFormat = "json"
	FormatCSV     ExportFormat = "csv"
	FormatParquet ExportFormat = "parquet"
)

// ParseExportFormat lowercases s and reports whether it is supported.
func ParseExportFormat(s string) (ExportFormat, bool) {
	f := ExportFormat(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatJSON, FormatCSV, FormatParquet:
		return f, true
	case "":
		return FormatJSON, true
	default:
		return f, false
	}
}

// SignalFilter narrows a signal query. Empty fields do not filter.
type SignalFilter struct {
	GeoLevel string `json:"geo_level,omitempty"`
	GeoID    string `json:"geo_id,omitempty"`
	Metric   string `json:"metric,omitempty"`
	Source   string `json:"source,omitempty"`
	Limit    int    `json:"limit"`
}

// Normalized clamps Limit into [1, MaxQueryLimit], defaulting to DefaultQueryLimit.
func (f SignalFilter) Normalized() SignalFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultQueryLimit
	}
	if f.Limit > MaxQueryLimit {
		f.Limit = MaxQueryLimit
	}
	return f
}

// ApplyMarket fills GeoLevel and GeoID from m where they are not already set.
func (f SignalFilter) ApplyMarket(m MarketConfig) SignalFilter {
	if f.GeoLevel == "" {
		f.GeoLevel = m.GeoLevel
	}
	if f.GeoID == "" {
		f.GeoID = m.GeoID
	}
	return f
}

// ACSVariable maps a Census variable code to a metric.
type ACSVariable struct {
	Code   string
	Metric string
	Unit   string
}

// ACSQuery selects one ACS 5-year profile pull.
type ACSQuery struct {
	Year       int
	GeoLevel   string
	StateFIPS  string
	CountyFIPS string
	Variables  []ACSVariable
}

// SeriesRequest selects one FRED observation series.
type SeriesRequest struct {
	SeriesID         string
	Metric           string
	Unit             string
	GeoLevel         string
	GeoID            string
	GeoName          string
	ObservationStart string
	ObservationEnd   string
}

// SignalsRequest is the query string of GET /signals.
type SignalsRequest struct {
	Format   string `query:"format" json:"format" default:"json"`
	Market   string `query:"market" json:"market"`
	GeoLevel string `query:"geo_level" json:"geo_level"`
	GeoID    string `query:"geo_id" json:"geo_id"`
	Metric   string `query:"metric" json:"metric"`
	Limit    int    `query:"limit" json:"limit" default:"200" validate:"gte=1,lte=2000"`
}

// SignalsResponse is the JSON body of GET /signals.
type SignalsResponse struct {
	Count int            `json:"count"`
	Items []MarketSignal `json:"items"`
}
