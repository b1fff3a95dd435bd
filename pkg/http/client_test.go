package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchJSONRetriesUntilSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "2025", r.URL.Query().Get("year"))
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"value": 72000}`))
	}))
	defer srv.Close()

	var retries []int
	c := NewClient(
		WithRetry(5, time.Millisecond, 4*time.Millisecond),
		WithRetryHook(func(_ string, attempt int, _ time.Duration, _ error) { retries = append(retries, attempt) }),
	)

	var out map[string]interface{}
	err := c.FetchJSON(context.Background(), &RequestOptions{
		Method:      MethodGet,
		URL:         srv.URL,
		Headers:     map[string]string{"Authorization": "Bearer tkn"},
		QueryParams: map[string][]string{"year": {"2025"}},
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []int{1, 2}, retries)
	assert.Equal(t, json.Number("72000"), out["value"])
}

func TestFetchJSONResendsReaderBodyOnRetry(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(WithRetry(3, time.Millisecond, 2*time.Millisecond))
	err := c.FetchJSON(context.Background(), &RequestOptions{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    strings.NewReader(`{"series_id":"UTUR"}`),
	}, &map[string]interface{}{})

	require.NoError(t, err)
	assert.Equal(t, []string{`{"series_id":"UTUR"}`, `{"series_id":"UTUR"}`}, bodies)
}

func TestFetchJSONReturnsLastUpstreamError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "no such entity", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(WithRetry(5, time.Millisecond, 2*time.Millisecond))
	err := c.FetchJSON(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, &map[string]interface{}{})

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusNotFound, upstream.StatusCode)
	assert.Contains(t, upstream.Body, "no such entity")
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestFetchJSONDecodeFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient(WithRetry(2, time.Millisecond, time.Millisecond))
	var out interface{}
	err := c.FetchJSON(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, &out)

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
}

func TestFetchJSONPerAttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(20*time.Millisecond), WithRetry(2, time.Millisecond, time.Millisecond))
	var out interface{}
	err := c.FetchJSON(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, &out)

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestFetchJSONStopsOnCancel(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(WithRetry(5, time.Second, 16*time.Second))
	err := c.FetchJSON(ctx, &RequestOptions{Method: MethodGet, URL: srv.URL}, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBackoff(t *testing.T) {
	c := NewClient()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 16 * time.Second}
	for i, d := range want {
		assert.Equal(t, d, c.Backoff(i+1), "attempt %d", i+1)
	}
}
