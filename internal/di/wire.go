//go:build wireinject
// +build wireinject

package di

import (
	"Aegis/internal/domain/repository"
	"Aegis/pkg/config"
	"Aegis/pkg/metrics"
	"Aegis/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,
		wire.Bind(new(repository.Metrics), new(*metrics.Recorder)),

		// Infrastructure clients
		ProvideRedisClient,
		ProvideLocker,
		ProvideDatabase,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideEventStore,
		ProvideAuditLog,
		ProvideSignalPublisher,
		ProvideFailurePublisher,
		ProvideDecisionEngine,

		// Realtime
		ProvideHub,
		ProvideSignalNotifier,

		// Queue and workers
		ProvideSignalWorker,
		ProvideSignalJob,
		ProvideFailureReporter,
		ProvideQueue,
		ProvideJobQueue,

		// Use cases
		ProvideOrderFlowGateway,
		ProvideSignalsUsecase,

		// HTTP
		ProvideRateLimiter,
		ProvideRouteGuards,
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
