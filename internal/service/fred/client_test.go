package fred

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

func series() models.SeriesRequest {
	return models.SeriesRequest{
		SeriesID: "LAUCN490350000000003A",
		Metric:   "unemp_rate",
		Unit:     "%",
		GeoLevel: "county",
		GeoID:    "49-035",
		GeoName:  "Salt Lake County, UT",
	}
}

func TestFetchSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "LAUCN490350000000003A", q.Get("series_id"))
		assert.Equal(t, "key", q.Get("api_key"))
		assert.Equal(t, "json", q.Get("file_type"))
		assert.Equal(t, "2024-01-01", q.Get("observation_start"))
		assert.False(t, q.Has("observation_end"))
		_, _ = w.Write([]byte(`{"observations": [
			{"date": "2024-12-01", "value": "3.4"},
			{"date": "2024-11-01", "value": "."},
			{"date": "11/01/2024", "value": "3.1"},
			{"date": "2024-10-01", "value": " NA "},
			{"date": "2024-09-01T00:00:00", "value": 3.0},
			"junk"
		]}`))
	}))
	defer srv.Close()

	c := New(xhttp.NewClient(xhttp.WithRetry(1, time.Millisecond, time.Millisecond)), "key", WithBaseURL(srv.URL))
	req := series()
	req.ObservationStart = "2024-01-01"

	got, err := c.FetchSeries(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 3.4, got[0].Value)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), got[0].ObservedAt)
	assert.Equal(t, models.SourceFRED, got[0].Source)
	assert.Equal(t, "unemp_rate", got[0].Metric)
	assert.Equal(t, "%", got[0].Unit)
	assert.JSONEq(t, `{"date":"2024-12-01","value":"3.4"}`, string(got[0].RawPayload))

	assert.Equal(t, 3.0, got[1].Value)
	assert.Equal(t, time.September, got[1].ObservedAt.Month())
}

func TestFetchSeriesSkipsWithoutKey(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := New(xhttp.NewClient(), "", WithBaseURL(srv.URL))
	got, err := c.FetchSeries(context.Background(), series())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestFetchSeriesUnexpectedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"observations": "none"}`))
	}))
	defer srv.Close()

	c := New(xhttp.NewClient(), "key", WithBaseURL(srv.URL))
	got, err := c.FetchSeries(context.Background(), series())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchSeriesPropagatesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(xhttp.NewClient(xhttp.WithRetry(2, time.Millisecond, time.Millisecond)), "key", WithBaseURL(srv.URL))
	_, err := c.FetchSeries(context.Background(), series())
	var upstream *xhttp.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusBadRequest, upstream.StatusCode)
}
