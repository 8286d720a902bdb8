//go:build wireinject
// +build wireinject

package di

import (
	"PatternPulse/pkg/config"
	"PatternPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideCollector,
		ProvideLogger,
		ProvideMetrics,

		// Coordination core
		ProvideResultCache,
		ProvideBus,
		ProvideQueue,
		ProvideManager,
		ProvideBreakerRegistry,
		ProvideHistory,
		ProvideCoordinator,
		ProvideScanner,
		ProvideBarIngest,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideSignalStore,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideMarketStream,
		ProvidePump,
		ProvideCacheService,

		// Subscribers
		ProvideSignalSink,
		ProvideSignalPublisher,
		ProvideAlertLogger,

		// HTTP surface
		ProvideOpsHandler,

		// Application
		ProvideApp,
	)
	return &server.App{}, nil
}
