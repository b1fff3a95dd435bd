package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	"github.com/NayellyZurita/CRE-Market-Signals/internal/repository"
	"github.com/NayellyZurita/CRE-Market-Signals/internal/service/export"
	"github.com/NayellyZurita/CRE-Market-Signals/internal/usecase"
	xhttp "github.com/NayellyZurita/CRE-Market-Signals/pkg/http"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/metrics"
)

type brokenStore struct {
	*repository.MemorySignalStore
}

func (brokenStore) Query(context.Context, models.SignalFilter) ([]models.MarketSignal, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Stream(context.Context, models.SignalFilter, func(models.MarketSignal) error) error {
	return errors.New("connection refused")
}

func populatedStore(t *testing.T) *repository.MemorySignalStore {
	t.Helper()
	store := repository.NewMemorySignalStore()
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var batch []models.MarketSignal
	for _, in := range []models.SignalInput{
		{Source: models.SourceHUD, Metric: "fmr_2br", Value: 1350, Unit: "USD", ObservedAt: jan},
		{Source: models.SourceACS, Metric: "median_household_income", Value: 72000, Unit: "USD", ObservedAt: jan},
		{Source: models.SourceFRED, Metric: "unemp_rate", Value: 3.4, Unit: "%", ObservedAt: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
			RawPayload: map[string]string{"date": "2024-12-01", "value": "3.4"}},
	} {
		in.GeoLevel, in.GeoID, in.GeoName = "county", "49-035", "Salt Lake County, UT"
		sig, err := models.NewMarketSignal(in)
		require.NoError(t, err)
		batch = append(batch, sig)
	}
	_, err := store.Upsert(context.Background(), batch)
	require.NoError(t, err)
	return store
}

func serve(t *testing.T, h *SignalsEchoHandler, target string) *httptest.ResponseRecorder {
	t.Helper()
	srv := xhttp.NewServer(h)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func handlerFor(t *testing.T, query *usecase.SignalsQueryUseCase, exp *export.Exporter, store *repository.MemorySignalStore) *SignalsEchoHandler {
	h := NewSignalsEchoHandler(nil, query, exp, store)
	h.tempDir = t.TempDir()
	return h
}

func defaultHandler(t *testing.T) *SignalsEchoHandler {
	store := populatedStore(t)
	return handlerFor(t,
		usecase.NewSignalsQueryUseCase(store, nil, 0, metrics.Nop{}, nil),
		export.New(store),
		store,
	)
}

func TestHealth(t *testing.T) {
	rec := serve(t, defaultHandler(t), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSignalsJSON(t *testing.T) {
	rec := serve(t, defaultHandler(t), "/signals?market=salt_lake_county&format=json&limit=10")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Count int `json:"count"`
		Items []struct {
			Source     string          `json:"source"`
			Metric     string          `json:"metric"`
			ObservedAt string          `json:"observed_at"`
			RawPayload json.RawMessage `json:"raw_payload"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Count)
	require.Len(t, body.Items, 3)
	assert.Equal(t, "fred", body.Items[2].Source)
	assert.Equal(t, "2024-12-01T00:00:00Z", body.Items[2].ObservedAt)
	assert.JSONEq(t, `{"date":"2024-12-01","value":"3.4"}`, string(body.Items[2].RawPayload))
}

func TestSignalsFilterByMetric(t *testing.T) {
	rec := serve(t, defaultHandler(t), "/signals?geo_id=49-035&metric=fmr_2br")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestSignalsCSV(t *testing.T) {
	h := defaultHandler(t)
	rec := serve(t, h, "/signals?market=salt_lake_county&format=CSV")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="signals.csv"`)

	rows, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Contains(t, rec.Body.String(), "median_household_income")

	leftovers, err := os.ReadDir(h.tempDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp export is removed after sending")
}

func TestSignalsParquet(t *testing.T) {
	h := defaultHandler(t)
	rec := serve(t, h, "/signals?market=salt_lake_county&format=parquet")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/vnd.apache.parquet"))

	path := filepath.Join(t.TempDir(), "out.parquet")
	require.NoError(t, os.WriteFile(path, rec.Body.Bytes(), 0o644))
	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(export.ParquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	assert.Equal(t, int64(3), pr.GetNumRows())

	leftovers, err := os.ReadDir(h.tempDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestSignalsErrors(t *testing.T) {
	h := defaultHandler(t)

	rec := serve(t, h, "/signals?market=atlantis")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unknown market key 'atlantis'")

	rec = serve(t, h, "/signals?format=xml")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unsupported format 'xml'")

	rec = serve(t, h, "/signals?limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h, "/signals?limit=2001")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignalsStoreFailure(t *testing.T) {
	mem := repository.NewMemorySignalStore()
	broken := brokenStore{MemorySignalStore: mem}
	h := handlerFor(t,
		usecase.NewSignalsQueryUseCase(broken, nil, 0, metrics.Nop{}, nil),
		export.New(broken),
		mem,
	)

	rec := serve(t, h, "/signals")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Database query failed")

	rec = serve(t, h, "/signals?format=csv")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Database query failed")
}

func TestMarkets(t *testing.T) {
	rec := serve(t, defaultHandler(t), "/markets")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":4`)
	assert.Contains(t, rec.Body.String(), "salt_lake_county")
}

func TestStatus(t *testing.T) {
	h := defaultHandler(t)
	rec := serve(t, h, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"last_loaded":null`)

	at := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, h.store.MarkLoaded(context.Background(), usecase.LoadStatusKey, at))
	rec = serve(t, h, "/status")
	assert.Contains(t, rec.Body.String(), `"last_loaded":"2025-06-01T06:00:00Z"`)
	assert.Contains(t, rec.Body.String(), `"hud_fmr":1`)
}
