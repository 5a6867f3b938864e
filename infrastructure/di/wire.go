//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"branchpost/infrastructure/config"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvidePromptConfig,
	ProvideDomainConfig,
	ProvideMetrics,
	ProvideTracer,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideStorage,
	ProvideEventBridgePublisher,
	ProvideEventPublisher,
	ProvideContentGenerator,
	ProvideFrontAgent,
	ProvideSupervisor,
	ProvideTreeMaterializer,
	ProvideTreeAssembler,
	ProvideJobLedger,
	ProvideOrchestrator,
	ProvideJobRunner,
	ProvideJobDispatcher,
	ProvideInMemoryCache,
	ProvideCommandBus,
	ProvideQueryBus,
	ProvideErrorHandler,
	ProvideRateLimiter,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container. The cleanup drains
// in-process jobs and closes storage.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
