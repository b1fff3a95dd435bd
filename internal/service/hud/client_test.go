package hud

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	xhttp "github.com/NayellyZurita/CRE-Market-Signals/pkg/http"
)

func fastClient() *xhttp.Client {
	return xhttp.NewClient(xhttp.WithRetry(2, time.Millisecond, time.Millisecond))
}

func TestEntityID(t *testing.T) {
	for _, in := range []string{"49-035", "49035", "4903599999", "county:4903599999"} {
		got, err := EntityID(in)
		require.NoError(t, err, in)
		assert.Equal(t, "4903599999", got, in)
	}

	for _, in := range []string{"abc", "", "4903", "1234567890"} {
		_, err := EntityID(in)
		var geoErr *models.InvalidGeoFormatError
		assert.True(t, errors.As(err, &geoErr), in)
	}
}

func TestFetchNestedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/4903599999", r.URL.Path)
		assert.Equal(t, "2025", r.URL.Query().Get("year"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"data": {
			"county_name": "Salt Lake County",
			"metro_name": "Salt Lake City, UT HUD Metro FMR Area",
			"state": "UT",
			"basicdata": {
				"year": "2024",
				"Efficiency": 1102,
				"One-Bedroom": "1228",
				"Two-Bedroom": 1480,
				"Three-Bedroom": "N/A",
				"Four-Bedroom": ""
			}
		}}`))
	}))
	defer srv.Close()

	c := New(fastClient(), "secret", WithBaseURL(srv.URL))
	got, err := c.FetchFairMarketRents(context.Background(), "county", "49-035", 2025)
	require.NoError(t, err)
	require.Len(t, got, 3)

	byMetric := map[string]models.MarketSignal{}
	for _, s := range got {
		byMetric[s.Metric] = s
	}
	assert.Equal(t, 1102.0, byMetric["fmr_0br"].Value)
	assert.Equal(t, 1228.0, byMetric["fmr_1br"].Value)
	assert.Equal(t, 1480.0, byMetric["fmr_2br"].Value)

	sig := byMetric["fmr_2br"]
	assert.Equal(t, models.SourceHUD, sig.Source)
	assert.Equal(t, "49-035", sig.GeoID)
	assert.Equal(t, "USD", sig.Unit)
	assert.Equal(t, "Salt Lake City, UT HUD Metro FMR Area, Salt Lake County, UT", sig.GeoName)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), sig.ObservedAt)
	assert.Contains(t, string(sig.RawPayload), `"basicdata"`)
}

func TestFetchFlatShapeList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"fmr_1br": "1200", "fmr_2br": 1350, "fmr_3br": "NA", "area_name": "Maricopa", "name": "Maricopa"},
			"not-a-record"
		]`))
	}))
	defer srv.Close()

	c := New(fastClient(), "secret", WithBaseURL(srv.URL))
	got, err := c.FetchFairMarketRents(context.Background(), "county", "04013", 2025)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Maricopa", got[0].GeoName)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), got[0].ObservedAt)
}

func TestFetchFallsBackToEntityName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"fmr_2br": 900, "county": "  "}]}`))
	}))
	defer srv.Close()

	c := New(fastClient(), "secret", WithBaseURL(srv.URL))
	got, err := c.FetchFairMarketRents(context.Background(), "county", "48-453", 2025)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "4845399999", got[0].GeoName)
}

func TestFetchSkipsWithoutToken(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := New(fastClient(), "  ", WithBaseURL(srv.URL))
	got, err := c.FetchFairMarketRents(context.Background(), "county", "49-035", 2025)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestFetchSkipsInvalidGeo(t *testing.T) {
	c := New(fastClient(), "secret", WithBaseURL("http://127.0.0.1:1"))
	got, err := c.FetchFairMarketRents(context.Background(), "county", "abc", 2025)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchSkipsUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(fastClient(), "secret", WithBaseURL(srv.URL))
	got, err := c.FetchFairMarketRents(context.Background(), "county", "49-035", 2025)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchPropagatesNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	c := New(fastClient(), "secret", WithBaseURL(srv.URL))
	_, err := c.FetchFairMarketRents(context.Background(), "county", "49-035", 2025)
	var netErr *xhttp.NetworkError
	assert.True(t, errors.As(err, &netErr))
}
