//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SignalGrid/pkg/config"
	"SignalGrid/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		ProvideGridStore,
		ProvideJournal,

		// Grid, fan-out and news
		ProvideWriteBehind,
		ProvideGridEngine,
		ProvideHub,
		ProvideNewsFeed,
		ProvideNewsPoller,
		ProvideSessionScheduler,

		// Ingest
		ProvideSignalIngest,
		ProvideKafkaConsumer,
		ProvideRateLimiter,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
