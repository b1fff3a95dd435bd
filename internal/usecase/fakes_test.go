package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
)

func signal(t *testing.T, source, geoID, metric string, value float64, at time.Time) models.MarketSignal {
	t.Helper()
	s, err := models.NewMarketSignal(models.SignalInput{
		Source: source, GeoLevel: models.GeoLevelCounty, GeoID: geoID, GeoName: geoID,
		ObservedAt: at, Metric: metric, Value: value, Unit: "USD",
	})
	require.NoError(t, err)
	return s
}

type fakeHUD struct {
	t     *testing.T
	err   error
	empty map[string]bool
	mu    sync.Mutex
	calls []int
}

func (f *fakeHUD) FetchFairMarketRents(_ context.Context, _, geoID string, year int) ([]models.MarketSignal, error) {
	f.mu.Lock()
	f.calls = append(f.calls, year)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.empty[geoID] {
		return nil, nil
	}
	return []models.MarketSignal{
		signal(f.t, models.SourceHUD, geoID, "fmr_2br", 1350, time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)),
	}, nil
}

type fakeACS struct {
	t     *testing.T
	err   error
	empty map[string]bool
	mu    sync.Mutex
	calls []models.ACSQuery
}

func (f *fakeACS) FetchProfile(_ context.Context, q models.ACSQuery) ([]models.MarketSignal, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	geoID := q.StateFIPS + "-" + q.CountyFIPS
	if f.empty[geoID] {
		return nil, nil
	}
	return []models.MarketSignal{
		signal(f.t, models.SourceACS, geoID, "median_household_income", 72000, time.Date(q.Year, 1, 1, 0, 0, 0, 0, time.UTC)),
	}, nil
}

type fakeFRED struct {
	t     *testing.T
	err   error
	empty map[string]bool
	mu    sync.Mutex
	calls []models.SeriesRequest
}

func (f *fakeFRED) FetchSeries(_ context.Context, req models.SeriesRequest) ([]models.MarketSignal, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.empty[req.GeoID] {
		return nil, nil
	}
	return []models.MarketSignal{
		signal(f.t, models.SourceFRED, req.GeoID, req.Metric, 3.4, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)),
	}, nil
}

type fakePublisher struct {
	runIDs []string
	counts []int
	err    error
}

func (f *fakePublisher) PublishSignals(_ context.Context, runID string, signals []models.MarketSignal) error {
	f.runIDs = append(f.runIDs, runID)
	f.counts = append(f.counts, len(signals))
	return f.err
}

func (f *fakePublisher) Close() error { return nil }
