package handlers

import (
	"context"
	"strings"

	"branchpost/application/commands"
	"branchpost/application/ports"
	"branchpost/application/services"
	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"

	"go.uber.org/zap"
)

// CreateGenerationJobHandler creates a job and dispatches it off the request path
type CreateGenerationJobHandler struct {
	ledger     *services.JobLedger
	dispatcher ports.JobDispatcher
	logger     *zap.Logger
}

// NewCreateGenerationJobHandler creates a new handler instance
func NewCreateGenerationJobHandler(ledger *services.JobLedger, dispatcher ports.JobDispatcher, logger *zap.Logger) *CreateGenerationJobHandler {
	return &CreateGenerationJobHandler{ledger: ledger, dispatcher: dispatcher, logger: logger}
}

// Handle stores the pending job and dispatches it. A job that cannot be
// dispatched is failed so pollers do not wait on it forever.
func (h *CreateGenerationJobHandler) Handle(ctx context.Context, cmd commands.CreateGenerationJobCommand) error {
	job, err := h.ledger.Create(ctx, cmd.ID(), strings.TrimSpace(cmd.Topic), cmd.SessionID)
	if err != nil {
		return err
	}

	if err := h.dispatcher.Dispatch(ctx, job); err != nil {
		h.logger.Error("Failed to dispatch job",
			zap.String("job_id", job.ID().String()),
			zap.Error(err),
		)
		bg := context.WithoutCancel(ctx)
		if _, startErr := h.ledger.MarkProcessing(bg, job.ID()); startErr == nil {
			if _, failErr := h.ledger.MarkFailed(bg, job.ID(), "dispatch failed: "+err.Error()); failErr != nil {
				h.logger.Error("Failed to record dispatch failure",
					zap.String("job_id", job.ID().String()),
					zap.Error(failErr),
				)
			}
		}
		return pkgerrors.Wrap(err, "dispatch job")
	}
	return nil
}

// CancelJobHandler cancels a job running in this process
type CancelJobHandler struct {
	ledger     *services.JobLedger
	dispatcher ports.JobDispatcher
	logger     *zap.Logger
}

// NewCancelJobHandler creates a new handler instance
func NewCancelJobHandler(ledger *services.JobLedger, dispatcher ports.JobDispatcher, logger *zap.Logger) *CancelJobHandler {
	return &CancelJobHandler{ledger: ledger, dispatcher: dispatcher, logger: logger}
}

// Handle signals the job. Unknown jobs are not found, finished jobs and jobs
// owned by another process are conflicts.
func (h *CancelJobHandler) Handle(ctx context.Context, cmd commands.CancelJobCommand) error {
	id := valueobjects.JobID(cmd.JobID)
	job, err := h.ledger.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status().IsTerminal() {
		return pkgerrors.NewConflictError("job already finished").
			WithCode(pkgerrors.CodeInvalidTransition).
			WithDetail("status", string(job.Status()))
	}
	if !h.dispatcher.Cancel(id) {
		return pkgerrors.NewConflictError("job is not running in this process").
			WithDetail("job_id", id.String())
	}

	h.logger.Info("Job cancellation requested", zap.String("job_id", id.String()))
	return nil
}
