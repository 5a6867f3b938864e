package handlers

import (
	"net/http"

	"branchpost/application/commands"
	"branchpost/application/commands/bus"
	"branchpost/application/queries"
	querybus "branchpost/application/queries/bus"
	"branchpost/domain/core/valueobjects"
	"branchpost/pkg/common"
	pkgerrors "branchpost/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxRequestBytes = 64 << 10

// JobHandler handles generation job requests
type JobHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *JobHandler {
	return &JobHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     errorHandler,
		logger:     logger,
	}
}

// CreatePostRequest is the body of POST /api/posts/create
type CreatePostRequest struct {
	Topic string `json:"topic"`
}

// CreatePost handles POST /api/posts/create. It returns as soon as the
// pending job is stored.
func (h *JobHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req CreatePostRequest
	if err := common.ParseJSONBody(w, r, &req, maxRequestBytes); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
		return
	}

	cmd := commands.CreateGenerationJobCommand{
		JobID:     valueobjects.NewJobID().String(),
		SessionID: sessionID(w, r),
		Topic:     req.Topic,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	h.writeJob(w, r, cmd.JobID, http.StatusAccepted)
}

// GetJob handles GET /api/jobs/{jobID}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	h.writeJob(w, r, chi.URLParam(r, "jobID"), http.StatusOK)
}

// CancelJob handles DELETE /api/jobs/{jobID}
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	cmd := commands.CancelJobCommand{JobID: chi.URLParam(r, "jobID")}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  cmd.JobID,
		"message": "cancellation requested",
	})
}

func (h *JobHandler) writeJob(w http.ResponseWriter, r *http.Request, jobID string, status int) {
	result, err := h.queryBus.Ask(r.Context(), queries.GetJobQuery{JobID: jobID})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, status, result)
}
