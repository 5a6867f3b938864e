package queries

import (
	"context"

	"branchpost/application/orchestrator"
	"branchpost/application/ports"
	"branchpost/application/services"
	"branchpost/domain/core/valueobjects"
	"branchpost/pkg/common"
	pkgerrors "branchpost/pkg/errors"

	"go.uber.org/zap"
)

// GetJobHandler serves GetJobQuery
type GetJobHandler struct {
	ledger *services.JobLedger
}

// NewGetJobHandler creates a new handler instance
func NewGetJobHandler(ledger *services.JobLedger) *GetJobHandler {
	return &GetJobHandler{ledger: ledger}
}

// Handle loads the job
func (h *GetJobHandler) Handle(ctx context.Context, q GetJobQuery) (*JobView, error) {
	job, err := h.ledger.Get(ctx, valueobjects.JobID(q.JobID))
	if err != nil {
		return nil, err
	}
	return NewJobView(job), nil
}

// GetTreeHandler serves GetTreeQuery through the read-side assembler
type GetTreeHandler struct {
	assembler *services.TreeAssembler
	logger    *zap.Logger
}

// NewGetTreeHandler creates a new handler instance
func NewGetTreeHandler(assembler *services.TreeAssembler, logger *zap.Logger) *GetTreeHandler {
	return &GetTreeHandler{assembler: assembler, logger: logger}
}

// Handle reconstructs the tree. Corrupt trees surface as consistency errors.
func (h *GetTreeHandler) Handle(ctx context.Context, q GetTreeQuery) (*TreeView, error) {
	tree, err := h.assembler.Reconstruct(ctx, valueobjects.TreeID(q.TreeID))
	if err != nil {
		if pkgerrors.IsConsistency(err) {
			h.logger.Error("Stored tree failed assembly",
				zap.String("tree_id", q.TreeID),
				zap.Error(err),
			)
		}
		return nil, err
	}
	return NewTreeView(tree), nil
}

// GetNodeHandler serves GetNodeQuery
type GetNodeHandler struct {
	repo ports.TreeRepository
}

// NewGetNodeHandler creates a new handler instance
func NewGetNodeHandler(repo ports.TreeRepository) *GetNodeHandler {
	return &GetNodeHandler{repo: repo}
}

// Handle loads the node
func (h *GetNodeHandler) Handle(ctx context.Context, q GetNodeQuery) (*NodeView, error) {
	id, err := parseNodeID(q.NodeID)
	if err != nil {
		return nil, pkgerrors.NewValidationError("invalid node id").WithDetail("node_id", q.NodeID)
	}
	node, err := h.repo.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewNodeView(node), nil
}

// ListTreesHandler serves ListTreesQuery
type ListTreesHandler struct {
	repo ports.TreeRepository
}

// NewListTreesHandler creates a new handler instance
func NewListTreesHandler(repo ports.TreeRepository) *ListTreesHandler {
	return &ListTreesHandler{repo: repo}
}

// Handle returns one page of summaries
func (h *ListTreesHandler) Handle(ctx context.Context, q ListTreesQuery) (*common.PaginatedResult, error) {
	trees, total, err := h.repo.ListTrees(ctx, q.Offset, q.Limit)
	if err != nil {
		return nil, err
	}
	items := make([]TreeSummary, 0, len(trees))
	for _, tree := range trees {
		items = append(items, NewTreeSummary(tree))
	}
	return common.NewPaginatedResult(items, q.Offset, q.Limit, total), nil
}

// GetRunHandler serves GetRunQuery
type GetRunHandler struct {
	orch *orchestrator.Orchestrator
}

// NewGetRunHandler creates a new handler instance
func NewGetRunHandler(orch *orchestrator.Orchestrator) *GetRunHandler {
	return &GetRunHandler{orch: orch}
}

// Handle loads the run's checkpoint
func (h *GetRunHandler) Handle(ctx context.Context, q GetRunQuery) (*RunView, error) {
	state, err := h.orch.Get(ctx, valueobjects.RunID(q.RunID))
	if err != nil {
		return nil, err
	}
	return NewRunView(state), nil
}
