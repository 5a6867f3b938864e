package main

import (
	"context"
	"encoding/json"
	"fmt"

	"branchpost/domain/core/valueobjects"
	domainevents "branchpost/domain/events"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

// JobRunner runs one job to a terminal state
type JobRunner interface {
	Run(ctx context.Context, jobID valueobjects.JobID, topic, sessionID string)
}

// Worker turns JobRequested events into job runs
type Worker struct {
	runner JobRunner
	logger *zap.Logger
}

// NewWorker creates a worker
func NewWorker(runner JobRunner, logger *zap.Logger) *Worker {
	return &Worker{runner: runner, logger: logger}
}

// Handle runs the job named by the event. Malformed events are errors so
// the bus retries and eventually dead-letters them. Job failures are
// recorded in the ledger and are not errors here.
func (w *Worker) Handle(ctx context.Context, event events.CloudWatchEvent) error {
	if event.DetailType != domainevents.TypeJobRequested {
		w.logger.Warn("Ignoring unexpected event", zap.String("detail_type", event.DetailType))
		return nil
	}

	var req domainevents.JobRequested
	if err := json.Unmarshal(event.Detail, &req); err != nil {
		return fmt.Errorf("decode job request: %w", err)
	}
	if req.JobID == "" {
		return fmt.Errorf("job request %s has no job id", event.ID)
	}

	w.logger.Info("Running dispatched job",
		zap.String("job_id", req.JobID),
		zap.String("event_id", event.ID),
	)
	w.runner.Run(ctx, valueobjects.JobID(req.JobID), req.Topic, req.SessionID)
	return nil
}
