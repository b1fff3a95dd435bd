package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ExportLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "market_signals",
			Subsystem: "export",
			Name:      "latency_seconds",
			Help:      "Time to materialize an export file",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"format"},
	)

	ExportRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "market_signals",
			Subsystem: "export",
			Name:      "rows_total",
			Help:      "Rows written to export files",
		},
		[]string{"format"},
	)

	ExportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "market_signals",
			Subsystem: "export",
			Name:      "errors_total",
			Help:      "Failed exports by format",
		},
		[]string{"format"},
	)
)

// Register adds the export collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(ExportLatency, ExportRows, ExportErrors)
	})
}
