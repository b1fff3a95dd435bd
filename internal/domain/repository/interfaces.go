package repository

import (
	"context"
	"time"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	xhttp "github.com/NayellyZurita/CRE-Market-Signals/pkg/http"
)

// Fetcher performs a retried JSON GET against an upstream API.
type Fetcher interface {
	FetchJSON(ctx context.Context, opts *xhttp.RequestOptions, dest interface{}) error
}

// HUDSource pulls Fair Market Rents for one geography and year.
type HUDSource interface {
	FetchFairMarketRents(ctx context.Context, geoLevel, geoID string, year int) ([]models.MarketSignal, error)
}

// ACSSource pulls the ACS 5-year demographic profile.
type ACSSource interface {
	FetchProfile(ctx context.Context, q models.ACSQuery) ([]models.MarketSignal, error)
}

// FREDSource pulls one observation series.
type FREDSource interface {
	FetchSeries(ctx context.Context, req models.SeriesRequest) ([]models.MarketSignal, error)
}

// SignalStore persists canonical records keyed on their natural key.
type SignalStore interface {
	// EnsureSchema creates tables and indexes if they do not exist.
	EnsureSchema(ctx context.Context) error
	// Upsert replaces rows sharing a natural key and returns len(signals).
	Upsert(ctx context.Context, signals []models.MarketSignal) (int, error)
	// Query returns matching rows ordered by observed_at descending, with
	// Limit clamped to [1, models.MaxQueryLimit].
	Query(ctx context.Context, filter models.SignalFilter) ([]models.MarketSignal, error)
	// Stream calls fn for each matching row in Query order without buffering the result set.
	// Limit is applied as given; zero streams every matching row.
	Stream(ctx context.Context, filter models.SignalFilter, fn func(models.MarketSignal) error) error
	CountBySource(ctx context.Context) (map[string]int64, error)
	MarkLoaded(ctx context.Context, key string, at time.Time) error
	// LastLoaded returns models.ErrNotFound if key was never marked.
	LastLoaded(ctx context.Context, key string) (time.Time, error)
	Health(ctx context.Context) error
	Close() error
}

// SignalPublisher announces upserted batches to downstream consumers.
type SignalPublisher interface {
	PublishSignals(ctx context.Context, runID string, signals []models.MarketSignal) error
	Close() error
}

// Metrics records pipeline and query telemetry.
type Metrics interface {
	RecordSignalsFetched(source string, n int)
	RecordSourceSkipped(source, reason string)
	RecordSignalsUpserted(market string, n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordFetchRetry(host string)
	RecordLastLoad(t time.Time)
}
