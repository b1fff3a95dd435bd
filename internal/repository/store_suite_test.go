package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	domrepo "github.com/NayellyZurita/CRE-Market-Signals/internal/domain/repository"
)

func mustSignal(t *testing.T, in models.SignalInput) models.MarketSignal {
	t.Helper()
	sig, err := models.NewMarketSignal(in)
	require.NoError(t, err)
	return sig
}

// scenarioSignals is one HUD, one ACS and one FRED record for Salt Lake County.
func scenarioSignals(t *testing.T) []models.MarketSignal {
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	dec := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	base := models.SignalInput{GeoLevel: "county", GeoID: "49-035", GeoName: "Salt Lake County, UT"}

	hud := base
	hud.Source, hud.Metric, hud.Value, hud.Unit, hud.ObservedAt = models.SourceHUD, "fmr_2br", 1350, "USD", jan
	hud.RawPayload = map[string]interface{}{"fmr_2br": 1350}

	acs := base
	acs.Source, acs.Metric, acs.Value, acs.Unit, acs.ObservedAt = models.SourceACS, "median_household_income", 72000, "USD", jan

	fred := base
	fred.Source, fred.Metric, fred.Value, fred.Unit, fred.ObservedAt = models.SourceFRED, "unemp_rate", 3.4, "%", dec
	fred.RawPayload = map[string]interface{}{"date": "2024-12-01", "value": "3.4"}

	return []models.MarketSignal{mustSignal(t, hud), mustSignal(t, acs), mustSignal(t, fred)}
}

// runSignalStoreSuite exercises the SignalStore contract against any backend.
func runSignalStoreSuite(t *testing.T, store domrepo.SignalStore) {
	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx), "schema creation is idempotent")

	t.Run("empty upsert is a no-op", func(t *testing.T) {
		n, err := store.Upsert(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("query orders by observed_at descending", func(t *testing.T) {
		n, err := store.Upsert(ctx, scenarioSignals(t))
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		got, err := store.Query(ctx, models.SignalFilter{GeoID: "49-035", Limit: 10})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, models.SourceFRED, got[2].Source)
		assert.True(t, got[0].ObservedAt.After(got[2].ObservedAt))
		assert.JSONEq(t, `{"date":"2024-12-01","value":"3.4"}`, string(got[2].RawPayload))
	})

	t.Run("filters combine", func(t *testing.T) {
		got, err := store.Query(ctx, models.SignalFilter{GeoLevel: "county", GeoID: "49-035", Metric: "fmr_2br"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 1350.0, got[0].Value)

		got, err = store.Query(ctx, models.SignalFilter{GeoID: "04-013"})
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = store.Query(ctx, models.SignalFilter{GeoID: "49-035", Limit: 1})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("upsert replaces on natural key", func(t *testing.T) {
		first := scenarioSignals(t)[0]
		in := models.SignalInput{
			Source: first.Source, GeoLevel: first.GeoLevel, GeoID: first.GeoID, GeoName: first.GeoName,
			ObservedAt: first.ObservedAt, Metric: first.Metric, Value: 1400, Unit: first.Unit,
			RawPayload: map[string]interface{}{"fmr_2br": 1400},
		}
		_, err := store.Upsert(ctx, []models.MarketSignal{mustSignal(t, in)})
		require.NoError(t, err)

		got, err := store.Query(ctx, models.SignalFilter{GeoID: "49-035", Metric: "fmr_2br"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 1400.0, got[0].Value)
		assert.JSONEq(t, `{"fmr_2br":1400}`, string(got[0].RawPayload))
	})

	t.Run("stream stops on callback error", func(t *testing.T) {
		stop := errors.New("stop")
		seen := 0
		err := store.Stream(ctx, models.SignalFilter{GeoID: "49-035"}, func(models.MarketSignal) error {
			seen++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, seen)
	})

	t.Run("count by source", func(t *testing.T) {
		counts, err := store.CountBySource(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts[models.SourceHUD])
		assert.Equal(t, int64(1), counts[models.SourceACS])
		assert.Equal(t, int64(1), counts[models.SourceFRED])
	})

	t.Run("stream with zero limit is unbounded", func(t *testing.T) {
		start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
		batch := make([]models.MarketSignal, 0, models.MaxQueryLimit+50)
		for i := 0; i < models.MaxQueryLimit+50; i++ {
			batch = append(batch, mustSignal(t, models.SignalInput{
				Source: models.SourceFRED, GeoLevel: "state", GeoID: "49", GeoName: "Utah",
				ObservedAt: start.AddDate(0, 0, i), Metric: "unemp_rate", Value: 3.1, Unit: "%",
			}))
		}
		_, err := store.Upsert(ctx, batch)
		require.NoError(t, err)

		seen := 0
		require.NoError(t, store.Stream(ctx, models.SignalFilter{GeoID: "49"}, func(models.MarketSignal) error {
			seen++
			return nil
		}))
		assert.Equal(t, models.MaxQueryLimit+50, seen)

		got, err := store.Query(ctx, models.SignalFilter{GeoID: "49"})
		require.NoError(t, err)
		assert.Len(t, got, models.DefaultQueryLimit)
	})

	t.Run("sub-millisecond observed_at keeps its natural key", func(t *testing.T) {
		sig := mustSignal(t, models.SignalInput{
			Source: models.SourceFRED, GeoLevel: "state", GeoID: "32", GeoName: "Nevada",
			ObservedAt: time.Date(2024, 12, 1, 0, 0, 0, 123456789, time.UTC),
			Metric: "unemp_rate", Value: 5.6, Unit: "%",
		})
		_, err := store.Upsert(ctx, []models.MarketSignal{sig})
		require.NoError(t, err)

		got, err := store.Query(ctx, models.SignalFilter{GeoID: "32"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, sig.Key(), got[0].Key())
	})

	t.Run("load status", func(t *testing.T) {
		_, err := store.LastLoaded(ctx, "load_all_daily")
		assert.ErrorIs(t, err, models.ErrNotFound)

		at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
		require.NoError(t, store.MarkLoaded(ctx, "load_all_daily", at.Add(-time.Hour)))
		require.NoError(t, store.MarkLoaded(ctx, "load_all_daily", at))

		got, err := store.LastLoaded(ctx, "load_all_daily")
		require.NoError(t, err)
		assert.True(t, at.Equal(got), "got %v", got)
	})

	assert.NoError(t, store.Health(ctx))
}

func TestMemorySignalStore(t *testing.T) {
	runSignalStoreSuite(t, NewMemorySignalStore())
}

func TestMemorySignalStoreDuplicateWithinBatch(t *testing.T) {
	store := NewMemorySignalStore()
	a := scenarioSignals(t)[0]
	b := a
	b.Value = 2000

	n, err := store.Upsert(context.Background(), []models.MarketSignal{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.Query(context.Background(), models.SignalFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2000.0, got[0].Value)
}
