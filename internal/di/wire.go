//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SignalDesk/internal/agent/sentinel"
	"SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/config"
	"SignalDesk/pkg/metrics"
	"SignalDesk/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),

		// Infrastructure clients
		ProvidePostgresClient,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCache,

		// Repositories
		ProvideSignalRepository,
		ProvideWeightStore,
		ProvideDecisionJournal,
		ProvideCandleStore,
		ProvideEventPublisher,
		ProvidePriceBook,

		// Agents and consensus
		ProvideBus,
		sentinel.NewNewsCache,
		sentinel.NewCalendar,
		ProvideTechnicalAgent,
		ProvideSentinelAgent,
		ProvideNewsSource,
		ProvideCalendarSource,
		ProvideRefresher,
		ProvideOrchestrator,
		ProvideSniper,
		ProvideSignalPipeline,

		// Lifecycle and prices
		ProvideLifecycleManager,
		ProvideSignalIngest,
		ProvidePriceMonitor,
		ProvideTickThrottle,
		ProvideKafkaTicksHandler,
		ProvidePriceFeed,
		ProvideScanner,

		// HTTP
		ProvideRateLimiter,
		ProvideIngressHandler,
		ProvideDecisionHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}
