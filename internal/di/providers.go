package di

import (
	"context"
	"fmt"
	"net/url"
	"time"

	drepo "github.com/NayellyZurita/CRE-Market-Signals/internal/domain/repository"
	"github.com/NayellyZurita/CRE-Market-Signals/internal/handler/api"
	internalrepo "github.com/NayellyZurita/CRE-Market-Signals/internal/repository"
	"github.com/NayellyZurita/CRE-Market-Signals/internal/service/census"
	"github.com/NayellyZurita/CRE-Market-Signals/internal/service/export"
	"github.com/NayellyZurita/CRE-Market-Signals/internal/service/fred"
	"github.com/NayellyZurita/CRE-Market-Signals/internal/service/hud"
	"github.com/NayellyZurita/CRE-Market-Signals/internal/service/ratelimit"
	"github.com/NayellyZurita/CRE-Market-Signals/internal/usecase"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/blob"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/cache"
	pkgch "github.com/NayellyZurita/CRE-Market-Signals/pkg/clickhouse"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/config"
	xhttp "github.com/NayellyZurita/CRE-Market-Signals/pkg/http"
	pkgkafka "github.com/NayellyZurita/CRE-Market-Signals/pkg/kafka"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/logger"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/metrics"
	pkgpg "github.com/NayellyZurita/CRE-Market-Signals/pkg/postgres"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/server"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.KafkaEnabled() {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.BatchSize),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopics(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the application logger. Warnings and errors are
// aggregated onto the Kafka log topic when a producer exists.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, func(), error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if producer == nil {
		return l, func() {}, nil
	}
	l.AddCollector(&logger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          cfg.Kafka.LogTopic,
		Publisher:      producer,
	})
	return l, l.RemoveCollector, nil
}

// ProvideMetricsRecorder registers collectors on the default Prometheus registry.
func ProvideMetricsRecorder() *metrics.Recorder {
	return metrics.New()
}

func ProvideMetrics(r *metrics.Recorder) drepo.Metrics {
	return r
}

// ProvideFetcher creates the retrying HTTP client shared by the source adapters.
func ProvideFetcher(cfg *config.Config, m drepo.Metrics, l *logger.Logger) *xhttp.Client {
	return xhttp.NewClient(
		xhttp.WithTimeout(cfg.HTTPClient.Timeout),
		xhttp.WithRetry(cfg.HTTPClient.MaxAttempts, cfg.HTTPClient.BaseDelay, cfg.HTTPClient.MaxDelay),
		xhttp.WithRateLimit(cfg.HTTPClient.RateLimit, cfg.HTTPClient.Burst),
		xhttp.WithRetryHook(func(rawURL string, attempt int, delay time.Duration, err error) {
			host := rawURL
			if u, perr := url.Parse(rawURL); perr == nil && u.Host != "" {
				host = u.Host
			}
			m.RecordFetchRetry(host)
			l.Warn("upstream fetch retry",
				logger.String("host", host),
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Error(err),
			)
		}),
	)
}

func ProvideHUDSource(cfg *config.Config, f *xhttp.Client, m drepo.Metrics, l *logger.Logger) drepo.HUDSource {
	opts := []hud.Option{hud.WithLogger(l), hud.WithMetrics(m)}
	if cfg.HUD.BaseURL != "" {
		opts = append(opts, hud.WithBaseURL(cfg.HUD.BaseURL))
	}
	return hud.New(f, cfg.HUD.Token, opts...)
}

func ProvideACSSource(cfg *config.Config, f *xhttp.Client, l *logger.Logger) drepo.ACSSource {
	opts := []census.Option{census.WithLogger(l)}
	if cfg.Census.BaseURL != "" {
		opts = append(opts, census.WithBaseURL(cfg.Census.BaseURL))
	}
	return census.New(f, cfg.Census.APIKey, opts...)
}

func ProvideFREDSource(cfg *config.Config, f *xhttp.Client, m drepo.Metrics, l *logger.Logger) drepo.FREDSource {
	opts := []fred.Option{fred.WithLogger(l), fred.WithMetrics(m)}
	if cfg.FRED.BaseURL != "" {
		opts = append(opts, fred.WithBaseURL(cfg.FRED.BaseURL))
	}
	return fred.New(f, cfg.FRED.APIKey, opts...)
}

// ProvideSignalStore opens the configured storage backend.
func ProvideSignalStore(cfg *config.Config, l *logger.Logger) (drepo.SignalStore, func(), error) {
	var store drepo.SignalStore
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		store = internalrepo.NewMemorySignalStore()
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		client, err := pkgpg.New(ctx, pkgpg.ClientConfig{
			DSN:      cfg.PostgresDSN(),
			MaxConns: cfg.Postgres.MaxConns,
			MinConns: cfg.Postgres.MinConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres client: %w", err)
		}
		store = internalrepo.NewPostgresSignalStore(client, l)
	default:
		opts := []pkgch.ClientOption{
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouseDatabase()),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
			pkgch.WithCreateDatabase(true),
		}
		if cfg.ClickHouse.DSN != "" {
			opts = append(opts, pkgch.WithDSN(cfg.ClickHouse.DSN))
		}
		client, err := pkgch.NewClient(opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		store = internalrepo.NewClickHouseSignalStore(client, l)
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			l.Warn("store close error", logger.Error(err))
		}
	}
	return store, cleanup, nil
}

// ProvideRedisCache connects to Redis, or returns nil when no address is configured.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if !cfg.RedisEnabled() {
		return nil, func() {}, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCache returns the cache holding the run lock and query entries:
// Redis when configured, otherwise an in-process cache.
func ProvideCache(rc *cache.RedisCache) (cache.Service, func()) {
	if rc != nil {
		return rc, func() {}
	}
	c := cache.NewMemoryCache(cache.WithMemoryMaxSize(1000), cache.WithMemoryCleanup(time.Minute))
	return c, func() { _ = c.Close() }
}

// ProvideQueryCache returns the JSON query cache. Results are cached only in
// Redis, where a load-all run in another process can invalidate them.
func ProvideQueryCache(rc *cache.RedisCache) usecase.QueryCache {
	if rc == nil {
		return nil
	}
	return rc
}

func ProvideSignalPublisher(cfg *config.Config, producer *pkgkafka.Producer) drepo.SignalPublisher {
	if producer == nil {
		return internalrepo.NopSignalPublisher{}
	}
	return internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.Topic)
}

// ProvideBlobClient connects to object storage, or returns nil when no bucket is configured.
func ProvideBlobClient(cfg *config.Config) (*blob.Client, error) {
	if !cfg.S3Enabled() {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	c, err := blob.New(ctx, blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		Prefix:         cfg.S3.Prefix,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return c, nil
}

func ProvideMarketResolver(cfg *config.Config, l *logger.Logger) *usecase.MarketResolver {
	m := cfg.Markets
	return usecase.NewMarketResolver(usecase.MarketDefaults{
		DefaultGeo:           m.DefaultGeo,
		DefaultGeoName:       m.DefaultGeoName,
		DefaultMarketKey:     m.DefaultMarketKey,
		StartYear:            m.StartYear,
		Year:                 m.Year,
		EndYear:              m.EndYear,
		FREDSeriesID:         m.FREDSeriesID,
		FREDMetric:           m.FREDMetric,
		FREDUnit:             m.FREDUnit,
		FREDObservationStart: m.FREDObservationStart,
		FREDObservationEnd:   m.FREDObservationEnd,
		LoadMarkets:          m.Load,
	}, l)
}

func ProvideSignalLoader(
	cfg *config.Config,
	hudSrc drepo.HUDSource,
	acsSrc drepo.ACSSource,
	fredSrc drepo.FREDSource,
	store drepo.SignalStore,
	m drepo.Metrics,
	pub drepo.SignalPublisher,
	c cache.Service,
	l *logger.Logger,
) *usecase.SignalLoader {
	return usecase.NewSignalLoader(hudSrc, acsSrc, fredSrc, store, m,
		usecase.LoaderConfig{
			MarketTimeout:   cfg.Pipeline.MarketTimeout,
			ContinueOnError: cfg.Pipeline.ContinueOnError,
			LockTTL:         cfg.Pipeline.LockTTL,
		},
		usecase.WithPublisher(pub),
		usecase.WithLocker(c),
		usecase.WithCacheInvalidation(c),
		usecase.WithLoaderLogger(l),
	)
}

func ProvideQualityChecker(store drepo.SignalStore, l *logger.Logger) *usecase.QualityChecker {
	return usecase.NewQualityChecker(store, usecase.DefaultQualityThresholds, l)
}

func ProvideExporter(store drepo.SignalStore, bc *blob.Client, l *logger.Logger) *export.Exporter {
	opts := []export.Option{export.WithLogger(l)}
	if bc != nil {
		opts = append(opts, export.WithUploader(bc))
	}
	return export.New(store, opts...)
}

func ProvideSignalsQuery(cfg *config.Config, store drepo.SignalStore, c usecase.QueryCache, m drepo.Metrics, l *logger.Logger) *usecase.SignalsQueryUseCase {
	return usecase.NewSignalsQueryUseCase(store, c, cfg.Redis.QueryTTL, m, l)
}

func ProvideSignalsHandler(l *logger.Logger, q *usecase.SignalsQueryUseCase, e *export.Exporter, store drepo.SignalStore) *api.SignalsEchoHandler {
	return api.NewSignalsEchoHandler(l, q, e, store)
}

// ProvideHTTPServer builds the read API server.
func ProvideHTTPServer(cfg *config.Config, h *api.SignalsEchoHandler, l *logger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins),
		xhttp.WithLogger(l),
	}
	if cfg.Server.RateLimit > 0 {
		opts = append(opts, xhttp.WithRateLimiter(ratelimit.New(float64(cfg.Server.RateBurst), cfg.Server.RateLimit)))
	}
	return xhttp.NewServer(h, opts...)
}

func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	store drepo.SignalStore,
	resolver *usecase.MarketResolver,
	loader *usecase.SignalLoader,
	quality *usecase.QualityChecker,
	exporter *export.Exporter,
	httpServer *xhttp.Server,
	recorder *metrics.Recorder,
) *server.App {
	return server.New(cfg, l, store, resolver, loader, quality, exporter, httpServer, recorder)
}
