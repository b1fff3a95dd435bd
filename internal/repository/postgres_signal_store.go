package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	domrepo "github.com/NayellyZurita/CRE-Market-Signals/internal/domain/repository"
	applogger "github.com/NayellyZurita/CRE-Market-Signals/pkg/logger"
	pkgpg "github.com/NayellyZurita/CRE-Market-Signals/pkg/postgres"
)

// PostgresSignalStore keeps signals in a table keyed on the natural key.
type PostgresSignalStore struct {
	client *pkgpg.Client
	l      *applogger.Logger
}

var _ domrepo.SignalStore = (*PostgresSignalStore)(nil)

func NewPostgresSignalStore(client *pkgpg.Client, l *applogger.Logger) *PostgresSignalStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &PostgresSignalStore{client: client, l: l}
}

func (s *PostgresSignalStore) EnsureSchema(ctx context.Context) error {
	return s.client.RunMigrations(ctx)
}

const upsertSignalSQL = `
	INSERT INTO market_signals (` + signalColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (source, geo_level, geo_id, observed_at, metric) DO UPDATE SET
		geo_name    = EXCLUDED.geo_name,
		value       = EXCLUDED.value,
		unit        = EXCLUDED.unit,
		raw_payload = EXCLUDED.raw_payload`

// Upsert applies the batch in one transaction; statements run in order so the
// last duplicate within a batch wins.
func (s *PostgresSignalStore) Upsert(ctx context.Context, signals []models.MarketSignal) (int, error) {
	if len(signals) == 0 {
		return 0, nil
	}

	tx, err := s.client.Pool().Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("upsert market signals: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, sig := range signals {
		batch.Queue(upsertSignalSQL,
			sig.Source, sig.GeoLevel, sig.GeoID, sig.GeoName,
			sig.ObservedAt.UTC(), sig.Metric, sig.Value, sig.Unit,
			nullablePayload(sig.RawPayload),
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range signals {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			s.l.Error("postgres upsert failed", applogger.Int("row", i), applogger.Error(err))
			return 0, fmt.Errorf("upsert market signals: row %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("upsert market signals: close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("upsert market signals: commit: %w", err)
	}
	return len(signals), nil
}

func (s *PostgresSignalStore) Query(ctx context.Context, filter models.SignalFilter) ([]models.MarketSignal, error) {
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

func (s *PostgresSignalStore) Stream(ctx context.Context, filter models.SignalFilter, fn func(models.MarketSignal) error) error {
	where, args := whereClause(filter, func(n int) string { return fmt.Sprintf("$%d", n) })
	q := fmt.Sprintf("SELECT %s FROM market_signals%s ORDER BY observed_at DESC, source, metric",
		signalColumns, where)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.client.Pool().Query(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("query market signals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			in  models.SignalInput
			val float64
			raw []byte
		)
		if err := rows.Scan(&in.Source, &in.GeoLevel, &in.GeoID, &in.GeoName, &in.ObservedAt, &in.Metric, &val, &in.Unit, &raw); err != nil {
			return fmt.Errorf("scan market signal: %w", err)
		}
		in.Value = val
		if len(raw) > 0 {
			in.RawPayload = json.RawMessage(raw)
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

func (s *PostgresSignalStore) CountBySource(ctx context.Context) (map[string]int64, error) {
	rows, err := s.client.Pool().Query(ctx, "SELECT source, COUNT(*) FROM market_signals GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("count by source: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			src string
			n   int64
		)
		if err := rows.Scan(&src, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[src] = n
	}
	return out, rows.Err()
}

func (s *PostgresSignalStore) MarkLoaded(ctx context.Context, key string, at time.Time) error {
	_, err := s.client.Pool().Exec(ctx, `
		INSERT INTO load_status (status_key, loaded_at) VALUES ($1, $2)
		ON CONFLICT (status_key) DO UPDATE SET loaded_at = EXCLUDED.loaded_at`,
		key, at.UTC())
	if err != nil {
		return fmt.Errorf("mark loaded %s: %w", key, err)
	}
	return nil
}

func (s *PostgresSignalStore) LastLoaded(ctx context.Context, key string) (time.Time, error) {
	var at time.Time
	err := s.client.Pool().QueryRow(ctx, "SELECT loaded_at FROM load_status WHERE status_key = $1", key).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, models.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last loaded %s: %w", key, err)
	}
	return at.UTC(), nil
}

func (s *PostgresSignalStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *PostgresSignalStore) Close() error {
	s.client.Close()
	return nil
}
