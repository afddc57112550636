//go:build wireinject
// +build wireinject

package di

import (
	"MarketPulse/pkg/config"
	"MarketPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Cache
		ProvideCacheStore,
		ProvideMarketCache,

		// Providers and streaming
		ProvideRegistry,
		ProvideSimulator,
		ProvideProviders,
		ProvideRequestClient,
		ProvideStreamService,

		// Use cases
		ProvideOrchestrator,

		// Recorder backends
		ProvideClickHouseClient,
		ProvideTickStorage,
		ProvideTickPublisher,
		ProvideTickRecorder,

		// HTTP
		ProvideMarketHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
