package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	drepo "github.com/NayellyZurita/CRE-Market-Signals/internal/domain/repository"
	"github.com/NayellyZurita/CRE-Market-Signals/internal/service/export"
	"github.com/NayellyZurita/CRE-Market-Signals/internal/usecase"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/config"
	xhttp "github.com/NayellyZurita/CRE-Market-Signals/pkg/http"
	applogger "github.com/NayellyZurita/CRE-Market-Signals/pkg/logger"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/metrics"
)

// App holds the wired components behind every command.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	store      drepo.SignalStore
	resolver   *usecase.MarketResolver
	loader     *usecase.SignalLoader
	quality    *usecase.QualityChecker
	exporter   *export.Exporter
	httpServer *xhttp.Server
	recorder   *metrics.Recorder
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	store drepo.SignalStore,
	resolver *usecase.MarketResolver,
	loader *usecase.SignalLoader,
	quality *usecase.QualityChecker,
	exporter *export.Exporter,
	httpServer *xhttp.Server,
	recorder *metrics.Recorder,
) *App {
	return &App{
		cfg:        cfg,
		logger:     l,
		store:      store,
		resolver:   resolver,
		loader:     loader,
		quality:    quality,
		exporter:   exporter,
		httpServer: httpServer,
		recorder:   recorder,
	}
}

func (a *App) Logger() *applogger.Logger { return a.logger }

// LoadOptions selects the markets of a run and whether to verify it.
type LoadOptions struct {
	Markets []string
	Check   bool
}

// LoadAll resolves markets, runs the loader and optionally the quality check.
// Unknown explicit market keys fail before any fetch.
func (a *App) LoadAll(ctx context.Context, opts LoadOptions) (usecase.LoadReport, error) {
	var (
		markets []models.MarketConfig
		err     error
	)
	if len(opts.Markets) > 0 {
		markets, err = a.resolver.Explicit(opts.Markets)
	} else {
		markets, err = a.resolver.Resolve()
	}
	if err != nil {
		return usecase.LoadReport{}, err
	}

	keys := make([]string, 0, len(markets))
	for _, m := range markets {
		keys = append(keys, m.Key)
	}
	a.logger.Info("load-all starting", applogger.Strings("markets", keys), applogger.String("storage", a.cfg.Storage.Driver))

	report, err := a.loader.LoadAll(ctx, markets)
	if err != nil {
		return report, err
	}
	a.logger.Info("load-all complete",
		applogger.String("run_id", report.RunID),
		applogger.Int("records", report.Total),
	)

	if opts.Check {
		if _, err := a.Check(ctx, true); err != nil {
			return report, err
		}
	}
	return report, nil
}

// Check runs the quality checks and, when record is set and they pass,
// stores the load status.
func (a *App) Check(ctx context.Context, record bool) (usecase.QualityReport, error) {
	report, err := a.quality.Check(ctx)
	if err != nil {
		return report, err
	}
	if record {
		at, err := a.quality.RecordSuccess(ctx)
		if err != nil {
			return report, err
		}
		a.recorder.RecordLastLoad(at)
	}
	return report, nil
}

func (a *App) Export(ctx context.Context, req export.Request) (export.Result, error) {
	return a.exporter.Export(ctx, req)
}

// PushMetrics sends batch-run metrics to the configured Pushgateway.
func (a *App) PushMetrics(ctx context.Context) {
	if a.cfg.Metrics.PushgatewayURL == "" {
		return
	}
	if err := a.recorder.Push(ctx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job); err != nil {
		a.logger.Warn("metrics push failed", applogger.Error(err))
	}
}

// Serve runs the read API until ctx is done or SIGINT/SIGTERM arrives.
func (a *App) Serve(ctx context.Context) error {
	if err := a.store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	errCh := a.httpServer.Start()
	a.logger.Info("api listening", applogger.String("addr", a.httpServer.Addr()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case <-ctx.Done():
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received", applogger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
		runErr = errors.Join(runErr, err)
	}
	a.logger.Info("shutdown complete")
	return runErr
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}
