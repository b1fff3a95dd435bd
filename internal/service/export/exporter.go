// Package export materializes signal queries to CSV or Parquet files.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	svcmetrics "github.com/NayellyZurita/CRE-Market-Signals/internal/service/metrics"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/logger"
)

// Content types served for each file format.
const (
	ContentTypeCSV     = "text/csv"
	ContentTypeParquet = "application/vnd.apache.parquet"
)

// Streamer yields query results one row at a time.
type Streamer interface {
	Stream(ctx context.Context, filter models.SignalFilter, fn func(models.MarketSignal) error) error
}

// Uploader copies a finished export to object storage.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, contentType string) (string, error)
}

// Request describes one export. A zero Filter.Limit exports every matching row.
type Request struct {
	Filter   models.SignalFilter
	Format   models.ExportFormat
	Path     string
	NoHeader bool
	Upload   bool
}

// Result reports where an export landed.
type Result struct {
	Path string
	Rows int
	URI  string
}

// Option configures Exporter.
type Option func(*Exporter)

// WithUploader enables Request.Upload.
func WithUploader(u Uploader) Option {
	return func(e *Exporter) { e.uploader = u }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// Exporter streams store rows into files.
type Exporter struct {
	store    Streamer
	uploader Uploader
	logger   *logger.Logger
}

// New creates an exporter reading from store.
func New(store Streamer, opts ...Option) *Exporter {
	svcmetrics.Register()
	e := &Exporter{store: store, logger: logger.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ContentType returns the media type for a file format.
func ContentType(f models.ExportFormat) string {
	if f == models.FormatParquet {
		return ContentTypeParquet
	}
	return ContentTypeCSV
}

// Export writes the rows matching req.Filter to req.Path, creating parent
// directories. The file is written beside the destination and renamed into
// place so a failed export never leaves a partial file at req.Path. Write
// failures are returned as *models.ExportError.
func (e *Exporter) Export(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	format := string(req.Format)

	res, err := e.export(ctx, req)
	if err != nil {
		svcmetrics.ExportErrors.WithLabelValues(format).Inc()
		return Result{}, err
	}
	svcmetrics.ExportRows.WithLabelValues(format).Add(float64(res.Rows))
	svcmetrics.ExportLatency.WithLabelValues(format).Observe(time.Since(start).Seconds())

	if req.Upload {
		if e.uploader == nil {
			return res, &models.ExportError{Path: res.Path, Err: errors.New("no object storage configured")}
		}
		uri, err := e.uploader.UploadFile(ctx, res.Path, ContentType(req.Format))
		if err != nil {
			return res, &models.ExportError{Path: res.Path, Err: err}
		}
		res.URI = uri
	}

	e.logger.Info("export written",
		logger.String("path", res.Path),
		logger.String("format", format),
		logger.Int("rows", res.Rows),
		logger.String("uri", res.URI),
	)
	return res, nil
}

func (e *Exporter) export(ctx context.Context, req Request) (Result, error) {
	if req.Format != models.FormatCSV && req.Format != models.FormatParquet {
		return Result{}, fmt.Errorf("unsupported export format %q", req.Format)
	}
	if req.Path == "" {
		return Result{}, &models.ExportError{Err: errors.New("destination path is empty")}
	}
	dest := req.Path

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Result{}, &models.ExportError{Path: dest, Err: err}
	}
	tmp := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp")

	w, err := e.open(tmp, req)
	if err != nil {
		return Result{}, &models.ExportError{Path: dest, Err: err}
	}

	filter := req.Filter
	if filter.Limit < 0 {
		filter.Limit = 0
	}

	rows := 0
	var writeErr error
	streamErr := e.store.Stream(ctx, filter, func(s models.MarketSignal) error {
		if err := w.Write(s); err != nil {
			writeErr = err
			return err
		}
		rows++
		return nil
	})
	closeErr := w.Close()

	switch {
	case writeErr != nil:
		_ = os.Remove(tmp)
		return Result{}, &models.ExportError{Path: dest, Err: writeErr}
	case streamErr != nil:
		_ = os.Remove(tmp)
		return Result{}, fmt.Errorf("query export rows: %w", streamErr)
	case closeErr != nil:
		_ = os.Remove(tmp)
		return Result{}, &models.ExportError{Path: dest, Err: closeErr}
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return Result{}, &models.ExportError{Path: dest, Err: err}
	}
	return Result{Path: dest, Rows: rows}, nil
}

func (e *Exporter) open(path string, req Request) (rowWriter, error) {
	if req.Format == models.FormatParquet {
		return newParquetWriter(path)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := newCSVWriter(f, !req.NoHeader)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}
