package eventbridge

import (
	"context"
	"time"

	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	"branchpost/domain/events"
	pkgerrors "branchpost/pkg/errors"
)

// Dispatcher hands pending jobs to the job worker Lambda by publishing a
// JobRequested event. The bus rule targeting the worker is provisioned
// outside this service.
type Dispatcher struct {
	publisher *Publisher
}

// NewDispatcher creates a remote job dispatcher
func NewDispatcher(publisher *Publisher) *Dispatcher {
	return &Dispatcher{publisher: publisher}
}

// Dispatch implements ports.JobDispatcher
func (d *Dispatcher) Dispatch(ctx context.Context, job *entities.GenerationJob) error {
	event := events.NewJobRequested(job.ID().String(), job.SessionID(), job.Topic(), time.Now().UTC())
	if err := d.publisher.Publish(ctx, event); err != nil {
		return pkgerrors.NewExternalError("eventbridge", err)
	}
	return nil
}

// Cancel always reports false; remote workers cannot be signalled.
func (d *Dispatcher) Cancel(jobID valueobjects.JobID) bool {
	return false
}
