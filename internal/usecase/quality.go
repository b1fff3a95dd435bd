package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	drepo "github.com/NayellyZurita/CRE-Market-Signals/internal/domain/repository"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/logger"
)

// LoadStatusKey is the load_status row written after a checked daily run.
const LoadStatusKey = "load_all_daily"

// QualityThresholds are the minimum stored row counts.
type QualityThresholds struct {
	MinTotal int64
	MinHUD   int64
	MinACS   int64
	MinFRED  int64
}

// DefaultQualityThresholds match one fully loaded market.
var DefaultQualityThresholds = QualityThresholds{MinTotal: 1, MinHUD: 5, MinACS: 4, MinFRED: 1}

// QualityReport holds the counts a check saw and every threshold it missed.
type QualityReport struct {
	Total    int64            `json:"total"`
	Counts   map[string]int64 `json:"counts"`
	Failures []string         `json:"failures,omitempty"`
}

// OK reports whether every threshold was met.
func (r QualityReport) OK() bool { return len(r.Failures) == 0 }

// QualityChecker validates stored row counts after a load.
type QualityChecker struct {
	store      drepo.SignalStore
	thresholds QualityThresholds
	logger     *logger.Logger
	now        func() time.Time
}

func NewQualityChecker(store drepo.SignalStore, thresholds QualityThresholds, l *logger.Logger) *QualityChecker {
	if l == nil {
		l = logger.NewNop()
	}
	return &QualityChecker{store: store, thresholds: thresholds, logger: l, now: time.Now}
}

// Check counts rows per source. Every failed threshold is reported together
// and the returned error wraps models.ErrQualityCheck.
func (q *QualityChecker) Check(ctx context.Context) (QualityReport, error) {
	counts, err := q.store.CountBySource(ctx)
	if err != nil {
		return QualityReport{}, fmt.Errorf("count rows: %w", err)
	}

	report := QualityReport{Counts: counts}
	for _, n := range counts {
		report.Total += n
	}

	t := q.thresholds
	if report.Total < t.MinTotal {
		report.Failures = append(report.Failures, "No rows loaded")
	}
	for _, c := range []struct {
		source string
		min    int64
		label  string
	}{
		{models.SourceHUD, t.MinHUD, "HUD"},
		{models.SourceACS, t.MinACS, "ACS"},
		{models.SourceFRED, t.MinFRED, "FRED"},
	} {
		if counts[c.source] < c.min {
			report.Failures = append(report.Failures,
				fmt.Sprintf("Unexpected %s row count: %d < %d", c.label, counts[c.source], c.min))
		}
	}

	if !report.OK() {
		q.logger.Warn("quality check failed", logger.Strings("failures", report.Failures), logger.Int64("total", report.Total))
		return report, fmt.Errorf("%w: %s", models.ErrQualityCheck, strings.Join(report.Failures, "; "))
	}
	q.logger.Info("quality check passed", logger.Int64("total", report.Total), logger.Any("counts", counts))
	return report, nil
}

// RecordSuccess stamps load_status with the current time.
func (q *QualityChecker) RecordSuccess(ctx context.Context) (time.Time, error) {
	at := q.now().UTC()
	if err := q.store.MarkLoaded(ctx, LoadStatusKey, at); err != nil {
		return time.Time{}, fmt.Errorf("record load status: %w", err)
	}
	return at, nil
}
