package services

import (
	"context"
	"fmt"

	"branchpost/application/ports"
	"branchpost/domain/config"
	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"
	"branchpost/pkg/observability"
	"branchpost/pkg/utils"

	"go.uber.org/zap"
)

// TransitionDetails carries the outcome attached to a terminal transition
type TransitionDetails struct {
	TreeID valueobjects.TreeID
	Error  string
}

// JobLedger owns the lifecycle of generation jobs. Every transition is a
// single conditional update on the job's previous status, so two writers
// can never both move the same job.
type JobLedger struct {
	repo        ports.JobRepository
	publisher   ports.EventPublisher
	logger      *zap.Logger
	metrics     *observability.Collector
	maxErrorLen int
}

// NewJobLedger creates a job ledger. publisher and metrics may be nil.
func NewJobLedger(
	repo ports.JobRepository,
	publisher ports.EventPublisher,
	domainCfg *config.DomainConfig,
	logger *zap.Logger,
	metrics *observability.Collector,
) *JobLedger {
	if domainCfg == nil {
		domainCfg = config.DefaultDomainConfig()
	}
	return &JobLedger{
		repo:        repo,
		publisher:   publisher,
		logger:      logger,
		metrics:     metrics,
		maxErrorLen: domainCfg.MaxJobErrorLength,
	}
}

// Create stores a new pending job. An empty id gets a fresh one.
func (l *JobLedger) Create(ctx context.Context, id valueobjects.JobID, topic, sessionID string) (*entities.GenerationJob, error) {
	if id == "" {
		id = valueobjects.NewJobID()
	}
	job, err := entities.NewGenerationJob(id, sessionID, topic)
	if err != nil {
		return nil, err
	}
	if err := l.repo.Create(ctx, job); err != nil {
		return nil, pkgerrors.Wrap(err, "create job")
	}

	l.publish(ctx, job)
	l.metrics.RecordJobTransition(string(entities.JobStatusPending))
	l.logger.Info("Generation job created",
		zap.String("job_id", id.String()),
		zap.String("session_id", sessionID),
	)
	return job, nil
}

// Get loads a job by id
func (l *JobLedger) Get(ctx context.Context, id valueobjects.JobID) (*entities.GenerationJob, error) {
	return l.repo.GetByID(ctx, id)
}

// Transition moves a job to status. Terminal jobs reject every transition
// and a pending job can only move to processing.
func (l *JobLedger) Transition(ctx context.Context, id valueobjects.JobID, status entities.JobStatus, details TransitionDetails) (*entities.GenerationJob, error) {
	job, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := job.Status()

	switch status {
	case entities.JobStatusProcessing:
		err = job.Start()
	case entities.JobStatusCompleted:
		err = job.Complete(details.TreeID)
	case entities.JobStatusFailed:
		err = job.Fail(utils.SanitizeErrorText(details.Error, l.maxErrorLen))
	default:
		err = pkgerrors.NewValidationError(fmt.Sprintf("unknown job status %q", status))
	}
	if err != nil {
		l.logger.Warn("Rejected job transition",
			zap.String("job_id", id.String()),
			zap.String("from", string(expected)),
			zap.String("to", string(status)),
			zap.Error(err),
		)
		return nil, err
	}

	if err := l.repo.Update(ctx, job, expected); err != nil {
		return nil, pkgerrors.Wrap(err, "update job")
	}

	l.publish(ctx, job)
	l.metrics.RecordJobTransition(string(status))
	l.logger.Info("Generation job transitioned",
		zap.String("job_id", id.String()),
		zap.String("from", string(expected)),
		zap.String("to", string(status)),
	)
	return job, nil
}

// MarkProcessing moves a pending job into processing
func (l *JobLedger) MarkProcessing(ctx context.Context, id valueobjects.JobID) (*entities.GenerationJob, error) {
	return l.Transition(ctx, id, entities.JobStatusProcessing, TransitionDetails{})
}

// MarkCompleted records the tree and completes a processing job
func (l *JobLedger) MarkCompleted(ctx context.Context, id valueobjects.JobID, treeID valueobjects.TreeID) (*entities.GenerationJob, error) {
	return l.Transition(ctx, id, entities.JobStatusCompleted, TransitionDetails{TreeID: treeID})
}

// MarkFailed records the error and fails a processing job
func (l *JobLedger) MarkFailed(ctx context.Context, id valueobjects.JobID, reason string) (*entities.GenerationJob, error) {
	return l.Transition(ctx, id, entities.JobStatusFailed, TransitionDetails{Error: reason})
}

func (l *JobLedger) publish(ctx context.Context, job *entities.GenerationJob) {
	if l.publisher == nil {
		job.MarkEventsAsCommitted()
		return
	}
	if err := l.publisher.PublishBatch(ctx, job.GetUncommittedEvents()); err != nil {
		l.logger.Warn("Failed to publish job events",
			zap.String("job_id", job.ID().String()),
			zap.Error(err),
		)
		return
	}
	job.MarkEventsAsCommitted()
}
