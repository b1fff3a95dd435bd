package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/util"
)

// Columns is the export column order shared by every format.
var Columns = []string{
	"source", "geo_level", "geo_id", "geo_name", "observed_at",
	"metric", "value", "unit", "raw_payload",
}

type rowWriter interface {
	Write(s models.MarketSignal) error
	Close() error
}

type csvWriter struct {
	w      *csv.Writer
	closer io.Closer
}

func newCSVWriter(out io.WriteCloser, header bool) (*csvWriter, error) {
	w := csv.NewWriter(out)
	if header {
		if err := w.Write(Columns); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return &csvWriter{w: w, closer: out}, nil
}

func (c *csvWriter) Write(s models.MarketSignal) error {
	return c.w.Write([]string{
		s.Source,
		s.GeoLevel,
		s.GeoID,
		s.GeoName,
		util.FormatTimestamp(s.ObservedAt),
		s.Metric,
		strconv.FormatFloat(s.Value, 'f', -1, 64),
		s.Unit,
		string(s.RawPayload),
	})
}

func (c *csvWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.closer.Close()
		return err
	}
	return c.closer.Close()
}

// ParquetRow is the on-disk layout of one exported record.
type ParquetRow struct {
	Source     string  `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	GeoLevel   string  `parquet:"name=geo_level, type=BYTE_ARRAY, convertedtype=UTF8"`
	GeoID      string  `parquet:"name=geo_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	GeoName    string  `parquet:"name=geo_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	ObservedAt int64   `parquet:"name=observed_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Metric     string  `parquet:"name=metric, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value      float64 `parquet:"name=value, type=DOUBLE"`
	Unit       string  `parquet:"name=unit, type=BYTE_ARRAY, convertedtype=UTF8"`
	RawPayload *string `parquet:"name=raw_payload, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

func toParquetRow(s models.MarketSignal) ParquetRow {
	row := ParquetRow{
		Source:     s.Source,
		GeoLevel:   s.GeoLevel,
		GeoID:      s.GeoID,
		GeoName:    s.GeoName,
		ObservedAt: s.ObservedAt.UTC().UnixMilli(),
		Metric:     s.Metric,
		Value:      s.Value,
		Unit:       s.Unit,
	}
	if len(s.RawPayload) > 0 && string(s.RawPayload) != "null" {
		raw := string(s.RawPayload)
		row.RawPayload = &raw
	}
	return row
}

type parquetWriter struct {
	pw *writer.ParquetWriter
	fw source.ParquetFile
}

func newParquetWriter(path string) (*parquetWriter, error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, err
	}
	pw, err := writer.NewParquetWriter(fw, new(ParquetRow), 1)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("new parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	return &parquetWriter{pw: pw, fw: fw}, nil
}

func (p *parquetWriter) Write(s models.MarketSignal) error {
	return p.pw.Write(toParquetRow(s))
}

func (p *parquetWriter) Close() error {
	if err := p.pw.WriteStop(); err != nil {
		_ = p.fw.Close()
		return fmt.Errorf("finalize parquet: %w", err)
	}
	return p.fw.Close()
}
