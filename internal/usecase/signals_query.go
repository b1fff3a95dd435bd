package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	drepo "github.com/NayellyZurita/CRE-Market-Signals/internal/domain/repository"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/cache"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/logger"
)

const signalsCachePrefix = "signals"

// QueryCache is the read-through cache for JSON query results.
type QueryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// SignalsQueryUseCase answers filtered reads against the store.
type SignalsQueryUseCase struct {
	store   drepo.SignalStore
	cache   QueryCache
	ttl     time.Duration
	timeout time.Duration
	metrics drepo.Metrics
	logger  *logger.Logger
}

func NewSignalsQueryUseCase(store drepo.SignalStore, qc QueryCache, ttl time.Duration, metrics drepo.Metrics, l *logger.Logger) *SignalsQueryUseCase {
	if l == nil {
		l = logger.NewNop()
	}
	return &SignalsQueryUseCase{store: store, cache: qc, ttl: ttl, timeout: 30 * time.Second, metrics: metrics, logger: l}
}

// ResolveRequest turns GET /signals parameters into a filter and format.
// Unknown market keys wrap models.ErrUnknownMarket; formats other than
// json, csv and parquet wrap models.ErrUnsupportedFormat.
func ResolveRequest(req models.SignalsRequest) (models.SignalFilter, models.ExportFormat, error) {
	format, ok := models.ParseExportFormat(req.Format)
	if !ok {
		return models.SignalFilter{}, "", fmt.Errorf("%w '%s'", models.ErrUnsupportedFormat, req.Format)
	}

	filter := models.SignalFilter{
		GeoLevel: strings.TrimSpace(req.GeoLevel),
		GeoID:    strings.TrimSpace(req.GeoID),
		Metric:   strings.TrimSpace(req.Metric),
		Limit:    req.Limit,
	}
	if key := strings.TrimSpace(req.Market); key != "" {
		m, ok := models.FindMarket(key)
		if !ok {
			return models.SignalFilter{}, "", fmt.Errorf("%w '%s'", models.ErrUnknownMarket, key)
		}
		filter = filter.ApplyMarket(m)
	}
	return filter.Normalized(), format, nil
}

// List returns matching records, serving from the cache when possible.
// Cache failures are logged and fall through to the store.
func (uc *SignalsQueryUseCase) List(ctx context.Context, filter models.SignalFilter) (models.SignalsResponse, error) {
	filter = filter.Normalized()
	key := cacheKey(filter)

	if uc.cache != nil {
		var cached models.SignalsResponse
		err := uc.cache.Get(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			uc.logger.Warn("query cache read failed", logger.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	start := time.Now()
	items, err := uc.store.Query(ctx, filter)
	if err != nil {
		uc.metrics.RecordError("query")
		return models.SignalsResponse{}, fmt.Errorf("query signals: %w", err)
	}
	uc.metrics.RecordLatency("query", time.Since(start).Seconds())

	if items == nil {
		items = []models.MarketSignal{}
	}
	resp := models.SignalsResponse{Count: len(items), Items: items}

	if uc.cache != nil && uc.ttl > 0 {
		if err := uc.cache.Set(ctx, key, resp, uc.ttl); err != nil {
			uc.logger.Warn("query cache write failed", logger.Error(err))
		}
	}
	return resp, nil
}

func cacheKey(f models.SignalFilter) string {
	b, _ := json.Marshal(f)
	return cache.GenerateKey(signalsCachePrefix, cache.HashKey(string(b)))
}
