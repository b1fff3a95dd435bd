package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Option configures Recorder.
type Option func(*Recorder)

// WithRegistry registers collectors on reg instead of the default registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(r *Recorder) {
		r.registerer = reg
		r.gatherer = reg
	}
}

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	signalsFetched  *prometheus.CounterVec
	sourceSkipped   *prometheus.CounterVec
	signalsUpserted *prometheus.CounterVec
	fetchRetries    *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	lastLoad        prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(r)
	}

	f := promauto.With(r.registerer)
	r.signalsFetched = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_signals_fetched_total",
			Help: "Canonical records produced by each source adapter",
		},
		[]string{"source"},
	)
	r.sourceSkipped = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_signals_source_skipped_total",
			Help: "Adapter calls skipped without error",
		},
		[]string{"source", "reason"},
	)
	r.signalsUpserted = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_signals_upserted_total",
			Help: "Records written to the store per market",
		},
		[]string{"market"},
	)
	r.fetchRetries = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_signals_fetch_retries_total",
			Help: "Upstream fetch retries by host",
		},
		[]string{"host"},
	)
	r.errorsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_signals_errors_total",
			Help: "Total number of errors encountered",
		},
		[]string{"type"},
	)
	r.latency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "market_signals_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"operation"},
	)
	r.lastLoad = f.NewGauge(prometheus.GaugeOpts{
		Name: "market_signals_last_load_timestamp_seconds",
		Help: "Unix time of the last completed load",
	})
	return r
}

func (r *Recorder) RecordSignalsFetched(source string, n int) {
	r.signalsFetched.WithLabelValues(source).Add(float64(n))
}

func (r *Recorder) RecordSourceSkipped(source, reason string) {
	r.sourceSkipped.WithLabelValues(source, reason).Inc()
}

func (r *Recorder) RecordSignalsUpserted(market string, n int) {
	r.signalsUpserted.WithLabelValues(market).Add(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordFetchRetry(host string) {
	r.fetchRetries.WithLabelValues(host).Inc()
}

func (r *Recorder) RecordLastLoad(t time.Time) {
	r.lastLoad.Set(float64(t.Unix()))
}

// Push sends the current state of the recorder's registry to a Pushgateway.
// Batch runs exit before a scrape would see them.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(r.gatherer).PushContext(ctx)
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordSignalsFetched(string, int) {}
func (Nop) RecordSourceSkipped(string, string) {}
func (Nop) RecordSignalsUpserted(string, int) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLatency(string, float64) {}
func (Nop) RecordFetchRetry(string) {}
func (Nop) RecordLastLoad(time.Time) {}
