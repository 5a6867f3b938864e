package handlers

import (
	"net/http"

	"branchpost/application/orchestrator"
	"branchpost/application/queries"
	querybus "branchpost/application/queries/bus"
	"branchpost/domain/core/valueobjects"
	"branchpost/pkg/common"
	pkgerrors "branchpost/pkg/errors"
	"branchpost/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RunHandler exposes interactive orchestrator runs
type RunHandler struct {
	orch     *orchestrator.Orchestrator
	queryBus *querybus.QueryBus
	errors   *pkgerrors.ErrorHandler
	logger   *zap.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(
	orch *orchestrator.Orchestrator,
	queryBus *querybus.QueryBus,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *RunHandler {
	return &RunHandler{
		orch:     orch,
		queryBus: queryBus,
		errors:   errorHandler,
		logger:   logger,
	}
}

// MessageRequest carries a user message for a run
type MessageRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// ChoiceRequest carries the label of an offered option
type ChoiceRequest struct {
	Option string `json:"option" validate:"required"`
}

// StartRun handles POST /api/runs
func (h *RunHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, valueobjects.NewRunID(), true, http.StatusCreated)
}

// SendMessage handles POST /api/runs/{runID}/messages
func (h *RunHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	runID, err := valueobjects.ParseRunID(chi.URLParam(r, "runID"))
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}
	h.send(w, r, runID, false, http.StatusOK)
}

// ChoosePath handles POST /api/runs/{runID}/choice
func (h *RunHandler) ChoosePath(w http.ResponseWriter, r *http.Request) {
	var req ChoiceRequest
	if !h.decode(w, r, &req) {
		return
	}

	outcome, err := h.orch.ChoosePath(r.Context(), valueobjects.RunID(chi.URLParam(r, "runID")), req.Option)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, outcome)
}

// GetRun handles GET /api/runs/{runID}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.GetRunQuery{RunID: chi.URLParam(r, "runID")})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

func (h *RunHandler) send(w http.ResponseWriter, r *http.Request, runID valueobjects.RunID, start bool, status int) {
	var req MessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	send := h.orch.Send
	if start {
		send = h.orch.Start
	}
	outcome, err := send(r.Context(), runID, sessionID(w, r), req.Message)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	h.logger.Debug("Run advanced",
		zap.String("run_id", runID.String()),
		zap.String("phase", string(outcome.Phase)),
	)
	common.RespondJSON(w, status, outcome)
}

func (h *RunHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := common.ParseJSONBody(w, r, v, maxRequestBytes); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
		return false
	}
	if err := utils.ValidateStruct(v); err != nil {
		h.errors.Handle(w, r, err)
		return false
	}
	return true
}
