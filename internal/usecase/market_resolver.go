package usecase

import (
	"fmt"
	"strings"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/logger"
)

// MarketDefaults carries the environment-style market settings. Zero values
// mean "not set".
type MarketDefaults struct {
	DefaultGeo       string // "level:id", e.g. "county:49-035"
	DefaultGeoName   string
	DefaultMarketKey string
	StartYear        int
	Year             int
	EndYear          int

	FREDSeriesID         string
	FREDMetric           string
	FREDUnit             string
	FREDObservationStart string
	FREDObservationEnd   string

	LoadMarkets []string
}

// MarketResolver picks the markets a run processes.
type MarketResolver struct {
	defaults MarketDefaults
	logger   *logger.Logger
}

func NewMarketResolver(defaults MarketDefaults, l *logger.Logger) *MarketResolver {
	if l == nil {
		l = logger.NewNop()
	}
	return &MarketResolver{defaults: defaults, logger: l}
}

// Resolve returns, in priority order: the market built from DefaultGeo, the
// static markets named by LoadMarkets, or every static market. LoadMarkets
// keys that match nothing fall back to the full list with a warning.
func (r *MarketResolver) Resolve() ([]models.MarketConfig, error) {
	if strings.TrimSpace(r.defaults.DefaultGeo) != "" {
		m, err := r.envMarket()
		if err != nil {
			return nil, err
		}
		return []models.MarketConfig{m}, nil
	}

	if len(r.defaults.LoadMarkets) > 0 {
		var selected []models.MarketConfig
		for _, key := range r.defaults.LoadMarkets {
			if m, ok := models.FindMarket(strings.TrimSpace(key)); ok {
				selected = append(selected, m)
			}
		}
		if len(selected) > 0 {
			return selected, nil
		}
		r.logger.Warn("LOAD_MARKETS did not match any configured markets; falling back to defaults",
			logger.Strings("requested", r.defaults.LoadMarkets))
	}

	out := make([]models.MarketConfig, len(models.TargetMarkets))
	copy(out, models.TargetMarkets)
	return out, nil
}

// Explicit resolves CLI-supplied keys against the static list. Unknown keys fail
// before anything is fetched.
func (r *MarketResolver) Explicit(keys []string) ([]models.MarketConfig, error) {
	markets, err := models.MarketsByKeys(keys)
	if err != nil {
		return nil, err
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("%w: no market keys given", models.ErrUnknownMarket)
	}
	return markets, nil
}

func (r *MarketResolver) envMarket() (models.MarketConfig, error) {
	d := r.defaults
	level, id, ok := strings.Cut(d.DefaultGeo, ":")
	level, id = strings.TrimSpace(level), strings.TrimSpace(id)
	if !ok || level == "" || id == "" {
		return models.MarketConfig{}, &models.InvalidGeoFormatError{
			Geo:    d.DefaultGeo,
			Reason: "DEFAULT_GEO must use the format '<level>:<id>' (e.g. 'county:49-035')",
		}
	}

	start := d.StartYear
	if start == 0 {
		start = d.Year
	}
	if start == 0 {
		start = models.DefaultYear
	}
	end := d.EndYear
	if end == 0 {
		end = start
	}

	m := models.MarketConfig{
		Key:                  firstNonEmpty(d.DefaultMarketKey, models.EnvMarketKey),
		GeoLevel:             level,
		GeoID:                id,
		GeoName:              firstNonEmpty(d.DefaultGeoName, id),
		StartYear:            start,
		EndYear:              end,
		FREDSeriesID:         strings.TrimSpace(d.FREDSeriesID),
		FREDMetric:           firstNonEmpty(d.FREDMetric, models.DefaultFREDMetric),
		FREDUnit:             firstNonEmpty(d.FREDUnit, models.DefaultFREDUnit),
		FREDObservationStart: d.FREDObservationStart,
		FREDObservationEnd:   d.FREDObservationEnd,
	}
	return m, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
