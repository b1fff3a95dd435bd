package repository

import (
	"strings"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
)

const signalColumns = "source, geo_level, geo_id, geo_name, observed_at, metric, value, unit, raw_payload"

// whereClause renders the filter as a WHERE clause. placeholder(n) returns the
// driver's n-th (1-based) bind marker.
func whereClause(f models.SignalFilter, placeholder func(n int) string) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		conds = append(conds, col+" = "+placeholder(len(args)))
	}

	add("source", f.Source)
	add("geo_level", f.GeoLevel)
	add("geo_id", f.GeoID)
	add("metric", f.Metric)

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func matches(f models.SignalFilter, s models.MarketSignal) bool {
	return (f.Source == "" || f.Source == s.Source) &&
		(f.GeoLevel == "" || f.GeoLevel == s.GeoLevel) &&
		(f.GeoID == "" || f.GeoID == s.GeoID) &&
		(f.Metric == "" || f.Metric == s.Metric)
}

func questionMark(int) string { return "?" }
