package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	drepo "github.com/NayellyZurita/CRE-Market-Signals/internal/domain/repository"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/cache"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/logger"
)

const loadLockKey = "lock:load_all"

// SignalsCachePattern matches every cached query result.
var SignalsCachePattern = cache.BuildPattern(signalsCachePrefix)

// Locker guards a run against concurrent invocations.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Invalidator drops cached entries matching a glob.
type Invalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// LoaderConfig tunes SignalLoader.
type LoaderConfig struct {
	MarketTimeout   time.Duration
	ContinueOnError bool
	LockTTL         time.Duration
}

// LoadReport summarizes one run.
type LoadReport struct {
	RunID     string         `json:"run_id"`
	Total     int            `json:"total"`
	PerMarket map[string]int `json:"per_market"`
	Empty     []string       `json:"empty_markets,omitempty"`
	Failed    []string       `json:"failed_markets,omitempty"`
}

// SignalLoader fetches every configured source per market and upserts the
// combined batch. Markets run one after another; the sources within a market
// are fetched concurrently.
type SignalLoader struct {
	hud       drepo.HUDSource
	acs       drepo.ACSSource
	fred      drepo.FREDSource
	store     drepo.SignalStore
	publisher drepo.SignalPublisher
	metrics   drepo.Metrics
	locker    Locker
	cache     Invalidator
	logger    *logger.Logger
	cfg       LoaderConfig
	newRunID  func() string
}

// LoaderOption configures SignalLoader.
type LoaderOption func(*SignalLoader)

// WithPublisher announces each upserted batch.
func WithPublisher(p drepo.SignalPublisher) LoaderOption {
	return func(l *SignalLoader) { l.publisher = p }
}

// WithLocker serializes runs through a shared lock.
func WithLocker(lk Locker) LoaderOption {
	return func(l *SignalLoader) { l.locker = lk }
}

// WithCacheInvalidation clears cached query results after each upsert.
func WithCacheInvalidation(c Invalidator) LoaderOption {
	return func(l *SignalLoader) { l.cache = c }
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(lg *logger.Logger) LoaderOption {
	return func(l *SignalLoader) {
		if lg != nil {
			l.logger = lg
		}
	}
}

func NewSignalLoader(
	hud drepo.HUDSource,
	acs drepo.ACSSource,
	fred drepo.FREDSource,
	store drepo.SignalStore,
	metrics drepo.Metrics,
	cfg LoaderConfig,
	opts ...LoaderOption,
) *SignalLoader {
	if cfg.MarketTimeout <= 0 {
		cfg.MarketTimeout = 5 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Hour
	}
	l := &SignalLoader{
		hud:      hud,
		acs:      acs,
		fred:     fred,
		store:    store,
		metrics:  metrics,
		logger:   logger.NewNop(),
		cfg:      cfg,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadAll processes markets in order and returns the records written. A
// market yielding nothing is skipped with a warning. Any other failure stops
// the run unless ContinueOnError is set.
func (l *SignalLoader) LoadAll(ctx context.Context, markets []models.MarketConfig) (LoadReport, error) {
	report := LoadReport{RunID: l.newRunID(), PerMarket: make(map[string]int, len(markets))}
	log := l.logger.With(logger.String("run_id", report.RunID))

	if l.locker != nil {
		ok, err := l.locker.TryLock(ctx, loadLockKey, l.cfg.LockTTL)
		if err != nil {
			return report, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			return report, models.ErrRunInProgress
		}
		defer func() {
			if err := l.locker.Unlock(context.WithoutCancel(ctx), loadLockKey); err != nil {
				log.Warn("release run lock failed", logger.Error(err))
			}
		}()
	}

	if err := l.store.EnsureSchema(ctx); err != nil {
		return report, fmt.Errorf("ensure schema: %w", err)
	}

	start := time.Now()
	for _, market := range markets {
		written, err := l.loadMarket(ctx, log, report.RunID, market)
		if err != nil {
			l.metrics.RecordError("load_market")
			if !l.cfg.ContinueOnError || ctx.Err() != nil {
				return report, fmt.Errorf("market %s: %w", market.Key, err)
			}
			log.Error("market load failed; continuing", logger.String("market", market.Key), logger.Error(err))
			report.Failed = append(report.Failed, market.Key)
			continue
		}
		if written == 0 {
			report.Empty = append(report.Empty, market.Key)
		}
		report.PerMarket[market.Key] = written
		report.Total += written
	}

	l.metrics.RecordLatency("load_all", time.Since(start).Seconds())
	l.metrics.RecordLastLoad(time.Now())
	log.Info("load-all finished", logger.Int("records_written", report.Total), logger.Int("markets", len(markets)))
	return report, nil
}

func (l *SignalLoader) loadMarket(ctx context.Context, log *logger.Logger, runID string, market models.MarketConfig) (int, error) {
	log = log.With(logger.String("market", market.Key))
	log.Info("fetching signals", logger.String("geo_name", market.GeoName))

	mctx, cancel := context.WithTimeout(ctx, l.cfg.MarketTimeout)
	defer cancel()

	signals, err := l.gather(mctx, log, market)
	if err != nil {
		return 0, err
	}
	if len(signals) == 0 {
		log.Warn("no signals fetched; skipping write")
		return 0, nil
	}

	start := time.Now()
	written, err := l.store.Upsert(ctx, signals)
	if err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	l.metrics.RecordLatency("upsert", time.Since(start).Seconds())
	l.metrics.RecordSignalsUpserted(market.Key, written)
	log.Info("persisted records", logger.Int("written", written))

	if l.publisher != nil {
		if err := l.publisher.PublishSignals(ctx, runID, signals); err != nil {
			l.metrics.RecordError("publish")
			log.Warn("publish signals failed", logger.Error(err))
		}
	}
	if l.cache != nil {
		if err := l.cache.DeleteByPattern(ctx, SignalsCachePattern); err != nil {
			log.Warn("invalidate query cache failed", logger.Error(err))
		}
	}
	return written, nil
}

// gather runs every adapter call for market concurrently. Results keep a
// stable order: HUD then ACS for each year, then FRED.
func (l *SignalLoader) gather(ctx context.Context, log *logger.Logger, market models.MarketConfig) ([]models.MarketSignal, error) {
	years := market.Years()
	state, county := market.SplitFIPS()
	fredReq, hasFRED := market.FREDRequest()
	if !hasFRED {
		log.Info("skipping FRED load (no series configured)")
	}

	slots := make([][]models.MarketSignal, 2*len(years)+1)
	g, gctx := errgroup.WithContext(ctx)

	for i, year := range years {
		g.Go(func() error {
			out, err := l.hud.FetchFairMarketRents(gctx, market.GeoLevel, market.GeoID, year)
			slots[2*i], err = l.adapterResult(log, models.SourceHUD, out, err)
			return err
		})
		g.Go(func() error {
			out, err := l.acs.FetchProfile(gctx, models.ACSQuery{
				Year:       year,
				GeoLevel:   market.GeoLevel,
				StateFIPS:  state,
				CountyFIPS: county,
			})
			slots[2*i+1], err = l.adapterResult(log, models.SourceACS, out, err)
			return err
		})
	}

	if hasFRED {
		if fredReq.ObservationStart == "" {
			fredReq.ObservationStart = fmt.Sprintf("%d-01-01", years[0])
		}
		if fredReq.ObservationEnd == "" {
			fredReq.ObservationEnd = fmt.Sprintf("%d-12-31", years[len(years)-1])
		}
		g.Go(func() error {
			out, err := l.fred.FetchSeries(gctx, fredReq)
			slots[len(slots)-1], err = l.adapterResult(log, models.SourceFRED, out, err)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []models.MarketSignal
	for _, s := range slots {
		all = append(all, s...)
	}
	return all, nil
}

// adapterResult turns geography misconfiguration into a skip and tags other
// errors with their source.
func (l *SignalLoader) adapterResult(log *logger.Logger, source string, out []models.MarketSignal, err error) ([]models.MarketSignal, error) {
	if err == nil {
		l.metrics.RecordSignalsFetched(source, len(out))
		return out, nil
	}
	if models.IsGeoConfigError(err) {
		l.metrics.RecordSourceSkipped(source, "geo_config")
		log.Warn("skipping source for market geography", logger.String("source", source), logger.Error(err))
		return nil, nil
	}
	if errors.Is(err, context.Canceled) {
		return nil, err
	}
	return nil, fmt.Errorf("%s: %w", source, err)
}
