//go:build wireinject
// +build wireinject

package di

import (
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/config"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetricsRecorder,
		ProvideMetrics,
		ProvideFetcher,
		ProvideSignalStore,
		ProvideRedisCache,
		ProvideCache,
		ProvideQueryCache,
		ProvideBlobClient,

		// Source adapters and repositories
		ProvideHUDSource,
		ProvideACSSource,
		ProvideFREDSource,
		ProvideSignalPublisher,

		// Use cases
		ProvideMarketResolver,
		ProvideSignalLoader,
		ProvideQualityChecker,
		ProvideExporter,
		ProvideSignalsQuery,

		// HTTP
		ProvideSignalsHandler,
		ProvideHTTPServer,

		// Application
		ProvideApp,
	)
	return nil, nil, nil
}
