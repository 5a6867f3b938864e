package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"branchpost/application/orchestrator"
	"branchpost/application/ports"
	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"
	"branchpost/pkg/observability"

	"go.uber.org/zap"
)

// Generation paths reported in metrics and logs
const (
	PathOrchestrator = "orchestrator"
	PathDirect       = "direct"
)

// JobRunner executes one generation job end to end. Every failure ends in
// a failed job; Run never returns an error.
type JobRunner struct {
	ledger       *JobLedger
	orchestrator *orchestrator.Orchestrator
	generator    ports.ContentGenerator
	materializer *TreeMaterializer
	timeout      time.Duration
	logger       *zap.Logger
	metrics      *observability.Collector
	tracer       *observability.Tracer
}

// NewJobRunner creates a runner. orch may be nil, in which case every job
// takes the direct generation path.
func NewJobRunner(
	ledger *JobLedger,
	orch *orchestrator.Orchestrator,
	generator ports.ContentGenerator,
	materializer *TreeMaterializer,
	timeout time.Duration,
	logger *zap.Logger,
	metrics *observability.Collector,
	tracer *observability.Tracer,
) *JobRunner {
	if orch != nil {
		orch = orch.NonInteractive()
	}
	return &JobRunner{
		ledger:       ledger,
		orchestrator: orch,
		generator:    generator,
		materializer: materializer,
		timeout:      timeout,
		logger:       logger,
		metrics:      metrics,
		tracer:       tracer,
	}
}

// Run moves the job to processing, generates and materializes a tree, and
// records the outcome.
func (r *JobRunner) Run(ctx context.Context, jobID valueobjects.JobID, topic, sessionID string) {
	start := time.Now()
	logger := r.logger.With(zap.String("job_id", jobID.String()))

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Job runner panicked",
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			r.fail(ctx, jobID, fmt.Sprintf("internal error: %v", rec), "unknown", start)
		}
	}()

	if _, err := r.ledger.MarkProcessing(context.WithoutCancel(ctx), jobID); err != nil {
		// The job was cancelled or already claimed by another worker.
		logger.Warn("Job could not be started", zap.Error(err))
		return
	}

	r.metrics.JobStarted()
	defer r.metrics.JobEnded()

	if ctx.Err() != nil {
		r.fail(ctx, jobID, fmt.Sprintf("cancelled before generation: %v", context.Cause(ctx)), "none", start)
		return
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(ctx, r.timeout, pkgerrors.NewTimeoutError("generation"))
		defer cancel()
	}

	var (
		treeID valueobjects.TreeID
		path   string
	)
	err := r.tracer.TraceSegment(runCtx, "generation-job", func(ctx context.Context) error {
		var genErr error
		treeID, path, genErr = r.generate(ctx, jobID, topic, sessionID)
		return genErr
	})

	// A committed tree completes the job even when the deadline passed after the commit.
	if err == nil && treeID.IsZero() && runCtx.Err() != nil {
		err = runCtx.Err()
	}
	if err != nil {
		if cause := context.Cause(runCtx); cause != nil && !errors.Is(err, cause) && runCtx.Err() != nil {
			err = fmt.Errorf("%w: %v", cause, err)
		}
		logger.Error("Generation job failed", zap.String("path", path), zap.Error(err))
		r.fail(ctx, jobID, err.Error(), path, start)
		return
	}

	if _, err := r.ledger.MarkCompleted(context.WithoutCancel(ctx), jobID, treeID); err != nil {
		logger.Error("Failed to record job completion", zap.Error(err))
		// The tree exists but the job never says so; fail it so it is not
		// left in processing.
		r.fail(ctx, jobID, pkgerrors.Wrap(err, "record completion").Error(), path, start)
		return
	}

	r.metrics.RecordJobFinished(string(entities.JobStatusCompleted), path, time.Since(start))
	logger.Info("Generation job completed",
		zap.String("tree_id", treeID.String()),
		zap.String("path", path),
		zap.Duration("duration", time.Since(start)),
	)
}

// generate returns the committed tree and which path produced it. The
// orchestrator is tried first; the direct generator runs only when the
// orchestrator ended without final content.
func (r *JobRunner) generate(ctx context.Context, jobID valueobjects.JobID, topic, sessionID string) (valueobjects.TreeID, string, error) {
	if r.orchestrator != nil {
		out, err := r.orchestrator.Run(ctx, valueobjects.RunID(jobID), sessionID, topic)
		if err != nil {
			return "", PathOrchestrator, err
		}
		if !out.TreeID.IsZero() {
			return out.TreeID, PathOrchestrator, nil
		}
		if out.FinalContent != nil {
			result, err := r.materializer.Materialize(ctx, sessionID, out.FinalContent)
			if err != nil {
				return "", PathOrchestrator, err
			}
			return result.TreeID, PathOrchestrator, nil
		}
		r.logger.Info("Orchestrator produced no content, falling back to direct generation",
			zap.String("job_id", jobID.String()),
			zap.String("phase", string(out.Phase)),
		)
	}

	if r.generator == nil {
		return "", PathDirect, pkgerrors.NewInternalError("no content generator configured")
	}
	payload, err := r.generator.Generate(ctx, topic)
	if err != nil {
		return "", PathDirect, pkgerrors.Wrap(err, "generate content")
	}
	result, err := r.materializer.Materialize(ctx, sessionID, payload)
	if err != nil {
		return "", PathDirect, err
	}
	return result.TreeID, PathDirect, nil
}

func (r *JobRunner) fail(ctx context.Context, jobID valueobjects.JobID, reason, path string, start time.Time) {
	if _, err := r.ledger.MarkFailed(context.WithoutCancel(ctx), jobID, reason); err != nil {
		r.logger.Error("Failed to record job failure",
			zap.String("job_id", jobID.String()),
			zap.Error(err),
		)
		return
	}
	r.metrics.RecordJobFinished(string(entities.JobStatusFailed), path, time.Since(start))
}
