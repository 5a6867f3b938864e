package di

import (
	"context"
	"fmt"
	"time"

	"branchpost/application/commands"
	"branchpost/application/commands/bus"
	commands_handlers "branchpost/application/commands/handlers"
	"branchpost/application/orchestrator"
	"branchpost/application/ports"
	"branchpost/application/queries"
	querybus "branchpost/application/queries/bus"
	"branchpost/application/services"
	domainconfig "branchpost/domain/config"
	"branchpost/infrastructure/agents"
	"branchpost/infrastructure/config"
	"branchpost/infrastructure/generation"
	"branchpost/infrastructure/messaging/eventbridge"
	"branchpost/infrastructure/messaging/local"
	"branchpost/infrastructure/persistence/dynamodb"
	"branchpost/infrastructure/persistence/memory"
	"branchpost/infrastructure/persistence/sqlite"
	"branchpost/interfaces/http/rest"
	pkgerrors "branchpost/pkg/errors"
	"branchpost/pkg/observability"
	"branchpost/pkg/ratelimit"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// treeCacheTTL is in seconds. Committed trees never change.
	treeCacheTTL = 300

	runLockLease = 2 * time.Minute
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

// ProvidePromptConfig loads prompt templates and render styles
func ProvidePromptConfig(cfg *config.Config) (*config.PromptConfig, error) {
	return config.LoadPromptConfig(cfg.PromptsFile)
}

// ProvideDomainConfig selects domain limits for the environment
func ProvideDomainConfig(cfg *config.Config) (*domainconfig.DomainConfig, error) {
	domainCfg := domainconfig.LoadDomainConfig(cfg.Environment)
	if err := domainCfg.Validate(); err != nil {
		return nil, err
	}
	return domainCfg, nil
}

// ProvideMetrics creates the Prometheus collector, or nil when disabled
func ProvideMetrics(cfg *config.Config) *observability.Collector {
	if !cfg.EnableMetrics {
		return nil
	}
	return observability.NewCollector("branchpost")
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer("branchpost", cfg.EnableTracing)
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// Storage groups the stores of the selected backend
type Storage struct {
	Trees       ports.TreeRepository
	Jobs        ports.JobRepository
	Checkpoints ports.CheckpointStore
	Locker      ports.RunLocker

	// Ready reports whether the backend answers
	Ready rest.ReadinessCheck
}

// ProvideStorage opens the configured backend. The cleanup closes it.
func ProvideStorage(cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) (*Storage, func(), error) {
	switch cfg.StorageBackend {
	case config.StorageSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("Using sqlite storage", zap.String("path", db.Path()))
		return &Storage{
				Trees:       sqlite.NewTreeStore(db),
				Jobs:        sqlite.NewJobStore(db),
				Checkpoints: sqlite.NewCheckpointStore(db),
				// A single process owns the file, so an in-process lock suffices.
				Locker: memory.NewRunLocker(),
				Ready:  func(ctx context.Context) error { return db.Ping() },
			}, func() {
				if err := db.Close(); err != nil {
					logger.Warn("Failed to close database", zap.Error(err))
				}
			}, nil

	case config.StorageDynamoDB:
		logger.Info("Using dynamodb storage", zap.String("table", cfg.DynamoDBTable))
		lock := dynamodb.NewDistributedLock(client, cfg.DynamoDBTable, runLockLease, logger)
		return &Storage{
			Trees:       dynamodb.NewTreeRepository(client, cfg.DynamoDBTable, cfg.IndexName, cfg.GSI2IndexName, logger),
			Jobs:        dynamodb.NewJobRepository(client, cfg.DynamoDBTable, logger),
			Checkpoints: dynamodb.NewCheckpointStore(client, cfg.DynamoDBTable),
			Locker:      dynamodb.NewRunLocker(lock, logger),
			Ready: func(ctx context.Context) error {
				_, err := client.DescribeTable(ctx, &awsdynamodb.DescribeTableInput{TableName: aws.String(cfg.DynamoDBTable)})
				return err
			},
		}, func() {}, nil

	default:
		logger.Info("Using in-memory storage")
		return &Storage{
			Trees:       memory.NewTreeStore(),
			Jobs:        memory.NewJobStore(),
			Checkpoints: memory.NewCheckpointStore(),
			Locker:      memory.NewRunLocker(),
		}, func() {}, nil
	}
}

// ProvideEventBridgePublisher creates the EventBridge publisher
func ProvideEventBridgePublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) *eventbridge.Publisher {
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
}

// ProvideEventPublisher sends lifecycle events to the bus when jobs are
// dispatched through it and keeps them in-process otherwise.
func ProvideEventPublisher(cfg *config.Config, bridge *eventbridge.Publisher, logger *zap.Logger) ports.EventPublisher {
	if cfg.DispatchMode == config.DispatchEventBridge {
		return bridge
	}
	return local.NewPublisher(logger)
}

// ProvideContentGenerator uses the remote generator when one is configured
func ProvideContentGenerator(cfg *config.Config, prompts *config.PromptConfig, logger *zap.Logger) ports.ContentGenerator {
	if cfg.GeneratorEndpoint != "" {
		return generation.NewHTTPGenerator(
			cfg.GeneratorEndpoint,
			cfg.GeneratorTimeout,
			generation.DefaultBreakerConfig("content-generator"),
			logger,
		)
	}
	return generation.NewTemplateGenerator(prompts.PathOptions)
}

// ProvideFrontAgent creates the conversational agent
func ProvideFrontAgent() ports.FrontAgent {
	return agents.NewRuleBasedFrontAgent()
}

// ProvideSupervisor wires the researcher and copywriter pipeline
func ProvideSupervisor(prompts *config.PromptConfig, generator ports.ContentGenerator, logger *zap.Logger) ports.Supervisor {
	return agents.NewSupervisorPipeline(
		agents.NewTemplateResearcher(prompts.ResearchAngles),
		agents.NewGeneratorCopywriter(generator, prompts.PathOptions),
		logger,
	)
}

// ProvideTreeMaterializer creates the materializer
func ProvideTreeMaterializer(
	storage *Storage,
	domainCfg *domainconfig.DomainConfig,
	publisher ports.EventPublisher,
	logger *zap.Logger,
	metrics *observability.Collector,
	tracer *observability.Tracer,
) *services.TreeMaterializer {
	return services.NewTreeMaterializer(storage.Trees, domainCfg, publisher, logger, metrics, tracer)
}

// ProvideTreeAssembler creates the read-side assembler
func ProvideTreeAssembler(storage *Storage, logger *zap.Logger) *services.TreeAssembler {
	return services.NewTreeAssembler(storage.Trees, logger)
}

// ProvideJobLedger creates the job ledger
func ProvideJobLedger(
	storage *Storage,
	publisher ports.EventPublisher,
	domainCfg *domainconfig.DomainConfig,
	logger *zap.Logger,
	metrics *observability.Collector,
) *services.JobLedger {
	return services.NewJobLedger(storage.Jobs, publisher, domainCfg, logger, metrics)
}

// ProvideOrchestrator creates the interactive orchestrator
func ProvideOrchestrator(
	agent ports.FrontAgent,
	supervisor ports.Supervisor,
	storage *Storage,
	materializer *services.TreeMaterializer,
	cfg *config.Config,
	prompts *config.PromptConfig,
	logger *zap.Logger,
	metrics *observability.Collector,
) *orchestrator.Orchestrator {
	return orchestrator.NewOrchestrator(
		agent,
		supervisor,
		storage.Checkpoints,
		storage.Locker,
		materializer,
		orchestrator.Config{
			StepBudget:      cfg.StepBudget,
			Interactive:     true,
			AgentName:       prompts.AgentName,
			BeginTemplate:   prompts.BeginTemplate,
			ChoiceTemplate:  prompts.ChoiceTemplate,
			SummaryTemplate: prompts.SummaryTemplate,
		},
		logger,
		metrics,
	)
}

// ProvideJobRunner creates the background job runner
func ProvideJobRunner(
	ledger *services.JobLedger,
	orch *orchestrator.Orchestrator,
	generator ports.ContentGenerator,
	materializer *services.TreeMaterializer,
	cfg *config.Config,
	logger *zap.Logger,
	metrics *observability.Collector,
	tracer *observability.Tracer,
) *services.JobRunner {
	return services.NewJobRunner(ledger, orch, generator, materializer, cfg.JobTimeout, logger, metrics, tracer)
}

// ProvideJobDispatcher runs jobs in this process or hands them to the worker
// through the bus. The cleanup drains in-process jobs.
func ProvideJobDispatcher(
	cfg *config.Config,
	runner *services.JobRunner,
	bridge *eventbridge.Publisher,
	logger *zap.Logger,
) (ports.JobDispatcher, func()) {
	if cfg.DispatchMode == config.DispatchEventBridge {
		return eventbridge.NewDispatcher(bridge), func() {}
	}

	dispatcher := services.NewInProcessDispatcher(runner, cfg.MaxConcurrentJobs, logger)
	return dispatcher, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := dispatcher.Shutdown(ctx); err != nil {
			logger.Warn("Jobs still running at shutdown", zap.Error(err))
		}
	}
}

// ProvideInMemoryCache creates the query cache
func ProvideInMemoryCache() ports.Cache {
	return NewInMemoryCache()
}

// CommandHandlerAdapter adapts specific command handlers to the generic interface
type CommandHandlerAdapter struct {
	handler func(context.Context, bus.Command) error
}

func (a *CommandHandlerAdapter) Handle(ctx context.Context, cmd bus.Command) error {
	return a.handler(ctx, cmd)
}

// ProvideCommandBus creates a command bus with registered handlers
func ProvideCommandBus(
	ledger *services.JobLedger,
	dispatcher ports.JobDispatcher,
	logger *zap.Logger,
) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus(bus.LoggingMiddleware(logger))

	createHandler := commands_handlers.NewCreateGenerationJobHandler(ledger, dispatcher, logger)
	if err := commandBus.Register(commands.CreateGenerationJobCommand{}, &CommandHandlerAdapter{
		handler: func(ctx context.Context, cmd bus.Command) error {
			createCmd, ok := cmd.(commands.CreateGenerationJobCommand)
			if !ok {
				return fmt.Errorf("invalid command type")
			}
			return createHandler.Handle(ctx, createCmd)
		},
	}); err != nil {
		return nil, err
	}

	cancelHandler := commands_handlers.NewCancelJobHandler(ledger, dispatcher, logger)
	if err := commandBus.Register(commands.CancelJobCommand{}, &CommandHandlerAdapter{
		handler: func(ctx context.Context, cmd bus.Command) error {
			cancelCmd, ok := cmd.(commands.CancelJobCommand)
			if !ok {
				return fmt.Errorf("invalid command type")
			}
			return cancelHandler.Handle(ctx, cancelCmd)
		},
	}); err != nil {
		return nil, err
	}

	return commandBus, nil
}

// QueryHandlerAdapter adapts specific query handlers to the generic interface
type QueryHandlerAdapter struct {
	handler func(context.Context, querybus.Query) (interface{}, error)
}

func (a *QueryHandlerAdapter) Handle(ctx context.Context, query querybus.Query) (interface{}, error) {
	return a.handler(ctx, query)
}

// ProvideQueryBus creates a query bus with registered handlers
func ProvideQueryBus(
	ledger *services.JobLedger,
	assembler *services.TreeAssembler,
	storage *Storage,
	orch *orchestrator.Orchestrator,
	cache ports.Cache,
	logger *zap.Logger,
) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus()
	caching := querybus.NewCachingMiddleware(cache, treeCacheTTL)

	getJobHandler := queries.NewGetJobHandler(ledger)
	getTreeHandler := queries.NewGetTreeHandler(assembler, logger)
	getNodeHandler := queries.NewGetNodeHandler(storage.Trees)
	listTreesHandler := queries.NewListTreesHandler(storage.Trees)
	getRunHandler := queries.NewGetRunHandler(orch)

	registrations := []struct {
		query   querybus.Query
		handler querybus.QueryHandler
	}{
		{queries.GetJobQuery{}, &QueryHandlerAdapter{
			handler: func(ctx context.Context, query querybus.Query) (interface{}, error) {
				q, ok := query.(queries.GetJobQuery)
				if !ok {
					return nil, fmt.Errorf("invalid query type")
				}
				return getJobHandler.Handle(ctx, q)
			},
		}},
		{queries.GetTreeQuery{}, caching.Wrap(&QueryHandlerAdapter{
			handler: func(ctx context.Context, query querybus.Query) (interface{}, error) {
				q, ok := query.(queries.GetTreeQuery)
				if !ok {
					return nil, fmt.Errorf("invalid query type")
				}
				return getTreeHandler.Handle(ctx, q)
			},
		})},
		{queries.GetNodeQuery{}, &QueryHandlerAdapter{
			handler: func(ctx context.Context, query querybus.Query) (interface{}, error) {
				q, ok := query.(queries.GetNodeQuery)
				if !ok {
					return nil, fmt.Errorf("invalid query type")
				}
				return getNodeHandler.Handle(ctx, q)
			},
		}},
		{queries.ListTreesQuery{}, &QueryHandlerAdapter{
			handler: func(ctx context.Context, query querybus.Query) (interface{}, error) {
				q, ok := query.(queries.ListTreesQuery)
				if !ok {
					return nil, fmt.Errorf("invalid query type")
				}
				return listTreesHandler.Handle(ctx, q)
			},
		}},
		{queries.GetRunQuery{}, &QueryHandlerAdapter{
			handler: func(ctx context.Context, query querybus.Query) (interface{}, error) {
				q, ok := query.(queries.GetRunQuery)
				if !ok {
					return nil, fmt.Errorf("invalid query type")
				}
				return getRunHandler.Handle(ctx, q)
			},
		}},
	}

	for _, reg := range registrations {
		if err := queryBus.Register(reg.query, reg.handler); err != nil {
			return nil, err
		}
	}
	return queryBus, nil
}

// ProvideErrorHandler creates the HTTP error writer. Causes are only exposed
// outside production.
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, !cfg.IsProduction())
}

// ProvideRateLimiter limits API callers by address. Lambda instances share
// their counters through the table; servers keep them in memory.
func ProvideRateLimiter(cfg *config.Config, client *awsdynamodb.Client) ratelimit.RateLimiter {
	if cfg.RateLimitPerMinute <= 0 {
		return nil
	}
	if cfg.IsLambda && cfg.StorageBackend == config.StorageDynamoDB {
		return dynamodb.NewRateLimiter(client, cfg.DynamoDBTable, cfg.RateLimitPerMinute, time.Minute, "ip")
	}

	burst := cfg.RateLimitPerMinute/6 + 1
	return ratelimit.NewIPRateLimiter(ratelimit.NewCompositeRateLimiter(
		ratelimit.NewTokenBucketLimiter(burst, time.Minute/time.Duration(cfg.RateLimitPerMinute)),
		ratelimit.NewSlidingWindowLimiter(cfg.RateLimitPerMinute, time.Minute),
	))
}

// ProvideRouter creates the HTTP router
func ProvideRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	orch *orchestrator.Orchestrator,
	errorHandler *pkgerrors.ErrorHandler,
	metrics *observability.Collector,
	limiter ratelimit.RateLimiter,
	storage *Storage,
	cfg *config.Config,
	logger *zap.Logger,
) *rest.Router {
	return rest.NewRouter(
		commandBus,
		queryBus,
		orch,
		errorHandler,
		metrics,
		limiter,
		storage.Ready,
		rest.Options{
			EnableCORS:         cfg.EnableCORS,
			AllowedOrigins:     cfg.AllowedOrigins,
			RateLimitPerMinute: cfg.RateLimitPerMinute,
		},
		logger,
	)
}
