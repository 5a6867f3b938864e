package rest

import (
	"context"
	"net/http"
	"time"

	"branchpost/application/commands/bus"
	"branchpost/application/orchestrator"
	querybus "branchpost/application/queries/bus"
	"branchpost/interfaces/http/rest/handlers"
	"branchpost/interfaces/http/rest/middleware"
	pkgerrors "branchpost/pkg/errors"
	"branchpost/pkg/observability"
	"branchpost/pkg/ratelimit"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether a dependency can serve requests
type ReadinessCheck func(ctx context.Context) error

// Options configures optional router behaviour
type Options struct {
	EnableCORS         bool
	AllowedOrigins     []string
	RateLimitPerMinute int
}

// Router creates and configures the HTTP router
type Router struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	orch       *orchestrator.Orchestrator
	errors     *pkgerrors.ErrorHandler
	metrics    *observability.Collector
	limiter    ratelimit.RateLimiter
	ready      ReadinessCheck
	opts       Options
	logger     *zap.Logger
}

// NewRouter creates a new router instance. metrics, limiter and ready may be nil.
func NewRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	orch *orchestrator.Orchestrator,
	errorHandler *pkgerrors.ErrorHandler,
	metrics *observability.Collector,
	limiter ratelimit.RateLimiter,
	ready ReadinessCheck,
	opts Options,
	logger *zap.Logger,
) *Router {
	return &Router{
		commandBus: commandBus,
		queryBus:   queryBus,
		orch:       orch,
		errors:     errorHandler,
		metrics:    metrics,
		limiter:    limiter,
		ready:      ready,
		opts:       opts,
		logger:     logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(rt.errors.Middleware)
	router.Use(middleware.Logger(rt.logger))
	if rt.metrics != nil {
		router.Use(middleware.Metrics(rt.metrics))
	}

	if rt.opts.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.metrics != nil {
		router.Handle("/metrics", rt.metrics.Handler())
	}

	router.Route("/api", func(r chi.Router) {
		if rt.limiter != nil {
			r.Use(middleware.RateLimit(rt.limiter, rt.opts.RateLimitPerMinute, rt.errors, rt.logger))
		}

		jobHandler := handlers.NewJobHandler(rt.commandBus, rt.queryBus, rt.errors, rt.logger)
		postHandler := handlers.NewPostHandler(rt.queryBus, rt.errors)

		r.Route("/posts", func(r chi.Router) {
			r.Post("/create", jobHandler.CreatePost)
			r.Get("/", postHandler.ListPosts)
			r.Get("/{treeID}/complete", postHandler.GetCompletePost)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/{jobID}", jobHandler.GetJob)
			r.Delete("/{jobID}", jobHandler.CancelJob)
		})

		r.Get("/nodes/{nodeID}", postHandler.GetNode)

		if rt.orch != nil {
			runHandler := handlers.NewRunHandler(rt.orch, rt.queryBus, rt.errors, rt.logger)
			r.Route("/runs", func(r chi.Router) {
				r.Post("/", runHandler.StartRun)
				r.Get("/{runID}", runHandler.GetRun)
				r.Post("/{runID}/messages", runHandler.SendMessage)
				r.Post("/{runID}/choice", runHandler.ChoosePath)
			})
		}
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		rt.errors.HandleStatus(w, r, http.StatusNotFound, "route not found")
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck reports whether storage answers
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	if rt.ready != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := rt.ready(ctx); err != nil {
			rt.logger.Warn("Readiness check failed", zap.Error(err))
			rt.errors.HandleStatus(w, req, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
