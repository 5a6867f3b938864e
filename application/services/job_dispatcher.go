package services

import (
	"context"
	"errors"
	"sync"

	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"

	"go.uber.org/zap"
)

// ErrJobCancelled is the cancellation cause recorded for cancelled jobs
var ErrJobCancelled = errors.New("job cancelled by request")

// errShuttingDown is the cancellation cause for jobs cut off by Shutdown
var errShuttingDown = errors.New("server shutting down")

// InProcessDispatcher runs jobs on goroutines in this process, at most
// limit at a time. Jobs beyond the limit wait for a slot without holding up
// the caller.
type InProcessDispatcher struct {
	runner *JobRunner
	slots  chan struct{}
	logger *zap.Logger

	base       context.Context
	cancelBase context.CancelCauseFunc

	mu      sync.Mutex
	cancels map[valueobjects.JobID]context.CancelCauseFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewInProcessDispatcher creates a dispatcher with the given concurrency limit
func NewInProcessDispatcher(runner *JobRunner, limit int, logger *zap.Logger) *InProcessDispatcher {
	if limit < 1 {
		limit = 1
	}
	base, cancel := context.WithCancelCause(context.Background())
	return &InProcessDispatcher{
		runner:     runner,
		slots:      make(chan struct{}, limit),
		logger:     logger,
		base:       base,
		cancelBase: cancel,
		cancels:    make(map[valueobjects.JobID]context.CancelCauseFunc),
	}
}

// Dispatch implements ports.JobDispatcher. It returns immediately.
func (d *InProcessDispatcher) Dispatch(ctx context.Context, job *entities.GenerationJob) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return pkgerrors.NewConflictError("dispatcher is shut down")
	}
	if _, running := d.cancels[job.ID()]; running {
		d.mu.Unlock()
		return pkgerrors.NewConflictError("job already dispatched").WithDetail("job_id", job.ID().String())
	}
	jobCtx, cancel := context.WithCancelCause(d.base)
	d.cancels[job.ID()] = cancel
	d.wg.Add(1)
	d.mu.Unlock()

	id, topic, sessionID := job.ID(), job.Topic(), job.SessionID()
	go func() {
		defer d.wg.Done()
		defer d.forget(id)

		select {
		case d.slots <- struct{}{}:
			defer func() { <-d.slots }()
		case <-jobCtx.Done():
			// Run still records the outcome so the job does not stay pending.
		}
		d.runner.Run(jobCtx, id, topic, sessionID)
	}()

	d.logger.Debug("Job dispatched", zap.String("job_id", id.String()))
	return nil
}

// Cancel implements ports.JobDispatcher
func (d *InProcessDispatcher) Cancel(id valueobjects.JobID) bool {
	d.mu.Lock()
	cancel, ok := d.cancels[id]
	d.mu.Unlock()
	if ok {
		cancel(ErrJobCancelled)
	}
	return ok
}

// InFlight returns the number of dispatched jobs that have not finished
func (d *InProcessDispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cancels)
}

// Shutdown stops accepting jobs and waits for running ones. When ctx ends
// first, remaining jobs are cancelled and Shutdown waits for them to record
// their failure.
func (d *InProcessDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.cancelBase(errShuttingDown)
		<-done
		return ctx.Err()
	}
}

func (d *InProcessDispatcher) forget(id valueobjects.JobID) {
	d.mu.Lock()
	if cancel, ok := d.cancels[id]; ok {
		cancel(nil)
		delete(d.cancels, id)
	}
	d.mu.Unlock()
}
