//go:build wireinject
// +build wireinject

package di

import (
	"PolyPulse/pkg/config"
	"PolyPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideAlertPublisher,
		ProvideAlertArchive,
		ProvideMarketStream,
		ProvideMarketTitles,

		// Detection core
		ProvideDetector,
		ProvideVelocityMonitor,

		// Delivery
		ProvideAlertRouter,
		ProvideAlertPipeline,
		ProvideKafkaAlertsHandler,

		// Orchestration
		ProvideMarketMonitor,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
