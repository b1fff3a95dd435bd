package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	domrepo "github.com/NayellyZurita/CRE-Market-Signals/internal/domain/repository"
	pkgch "github.com/NayellyZurita/CRE-Market-Signals/pkg/clickhouse"
	applogger "github.com/NayellyZurita/CRE-Market-Signals/pkg/logger"
)

// ClickHouseSignalStore keeps signals in a ReplacingMergeTree ordered by the natural key.
// Each write carries a nanosecond version so the newest row wins on merge; reads use FINAL.
type ClickHouseSignalStore struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
	status string
	l      *applogger.Logger
}

var _ domrepo.SignalStore = (*ClickHouseSignalStore)(nil)

func NewClickHouseSignalStore(ch *pkgch.Client, l *applogger.Logger) *ClickHouseSignalStore {
	if l == nil {
		l = applogger.NewNop()
	}
	db := ch.Database()
	return &ClickHouseSignalStore{
		client: ch,
		db:     ch.DB(),
		table:  fmt.Sprintf("`%s`.market_signals", db),
		status: fmt.Sprintf("`%s`.load_status", db),
		l:      l,
	}
}

func (s *ClickHouseSignalStore) EnsureSchema(ctx context.Context) error {
	return s.client.InitSchema(ctx, []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			source      LowCardinality(String),
			geo_level   LowCardinality(String),
			geo_id      String,
			geo_name    String,
			observed_at DateTime64(6, 'UTC'),
			metric      LowCardinality(String),
			value       Float64,
			unit        LowCardinality(String),
			raw_payload Nullable(String),
			version     UInt64,
			INDEX idx_market_signals_geo (geo_level, geo_id) TYPE minmax GRANULARITY 4,
			INDEX idx_market_signals_metric metric TYPE set(256) GRANULARITY 4
		) ENGINE = ReplacingMergeTree(version)
		ORDER BY (source, geo_level, geo_id, observed_at, metric)`, s.table),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			status_key String,
			loaded_at  DateTime64(6, 'UTC')
		) ENGINE = ReplacingMergeTree(loaded_at)
		ORDER BY status_key`, s.status),
	})
}

// Upsert writes the batch as a single INSERT.
func (s *ClickHouseSignalStore) Upsert(ctx context.Context, signals []models.MarketSignal) (int, error) {
	if len(signals) == 0 {
		return 0, nil
	}
	start := time.Now()

	base := uint64(time.Now().UnixNano())
	values := make([]string, 0, len(signals))
	args := make([]interface{}, 0, len(signals)*10)
	for i, sig := range signals {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			sig.Source, sig.GeoLevel, sig.GeoID, sig.GeoName,
			sig.ObservedAt.UTC(), sig.Metric, sig.Value, sig.Unit,
			nullablePayload(sig.RawPayload), base+uint64(i),
		)
	}

	q := fmt.Sprintf("INSERT INTO %s (%s, version) VALUES %s", s.table, signalColumns, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		s.l.Error("clickhouse upsert failed", applogger.Int("rows", len(signals)), applogger.Error(err))
		return 0, fmt.Errorf("upsert market signals: %w", err)
	}

	s.l.Debug("clickhouse upsert ok",
		applogger.Int("rows", len(signals)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return len(signals), nil
}

func (s *ClickHouseSignalStore) Query(ctx context.Context, filter models.SignalFilter) ([]models.MarketSignal, error) {
	filter = filter.Normalized()
	out := make([]models.MarketSignal, 0, filter.Limit)
	err := s.Stream(ctx, filter, func(sig models.MarketSignal) error {
		out = append(out, sig)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ClickHouseSignalStore) Stream(ctx context.Context, filter models.SignalFilter, fn func(models.MarketSignal) error) error {
	where, args := whereClause(filter, questionMark)
	q := fmt.Sprintf("SELECT %s FROM %s FINAL%s ORDER BY observed_at DESC, source, metric",
		signalColumns, s.table, where)
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("query market signals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			in  models.SignalInput
			val float64
			raw sql.NullString
		)
		if err := rows.Scan(&in.Source, &in.GeoLevel, &in.GeoID, &in.GeoName, &in.ObservedAt, &in.Metric, &val, &in.Unit, &raw); err != nil {
			return fmt.Errorf("scan market signal: %w", err)
		}
		in.Value = val
		if raw.Valid && raw.String != "" {
			in.RawPayload = json.RawMessage(raw.String)
		}
		sig, err := models.NewMarketSignal(in)
		if err != nil {
			return fmt.Errorf("decode market signal: %w", err)
		}
		if err := fn(sig); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *ClickHouseSignalStore) CountBySource(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT source, count() FROM %s FINAL GROUP BY source", s.table))
	if err != nil {
		return nil, fmt.Errorf("count by source: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			src string
			n   uint64
		)
		if err := rows.Scan(&src, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[src] = int64(n)
	}
	return out, rows.Err()
}

func (s *ClickHouseSignalStore) MarkLoaded(ctx context.Context, key string, at time.Time) error {
	q := fmt.Sprintf("INSERT INTO %s (status_key, loaded_at) VALUES (?, ?)", s.status)
	if _, err := s.db.ExecContext(ctx, q, key, at.UTC()); err != nil {
		return fmt.Errorf("mark loaded %s: %w", key, err)
	}
	return nil
}

func (s *ClickHouseSignalStore) LastLoaded(ctx context.Context, key string) (time.Time, error) {
	var at time.Time
	q := fmt.Sprintf("SELECT loaded_at FROM %s FINAL WHERE status_key = ? ORDER BY loaded_at DESC LIMIT 1", s.status)
	err := s.db.QueryRowContext(ctx, q, key).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, models.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last loaded %s: %w", key, err)
	}
	return at.UTC(), nil
}

func (s *ClickHouseSignalStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *ClickHouseSignalStore) Close() error {
	return s.client.Close()
}

func nullablePayload(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
