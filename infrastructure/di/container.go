package di

import (
	"branchpost/application/commands/bus"
	"branchpost/application/orchestrator"
	"branchpost/application/ports"
	querybus "branchpost/application/queries/bus"
	"branchpost/application/services"
	"branchpost/infrastructure/config"
	"branchpost/interfaces/http/rest"
	"branchpost/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Prompts      *config.PromptConfig
	Logger       *zap.Logger
	Metrics      *observability.Collector
	Storage      *Storage
	Ledger       *services.JobLedger
	Materializer *services.TreeMaterializer
	Orchestrator *orchestrator.Orchestrator
	Runner       *services.JobRunner
	Dispatcher   ports.JobDispatcher
	CommandBus   *bus.CommandBus
	QueryBus     *querybus.QueryBus
	Router       *rest.Router
}
