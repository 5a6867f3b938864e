package services

import (
	"context"

	"branchpost/application/ports"
	"branchpost/domain/core/aggregates"
	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"

	"go.uber.org/zap"
)

// TreeAssembler is the read-side pair of TreeMaterializer. It loads a tree
// and its nodes and resolves them into one rooted structure.
type TreeAssembler struct {
	repo   ports.TreeRepository
	logger *zap.Logger
}

// NewTreeAssembler creates a tree assembler
func NewTreeAssembler(repo ports.TreeRepository, logger *zap.Logger) *TreeAssembler {
	return &TreeAssembler{repo: repo, logger: logger}
}

// Reconstruct loads and assembles a tree. A tree that breaks its structural
// invariants is reported as a consistency error.
func (a *TreeAssembler) Reconstruct(ctx context.Context, id valueobjects.TreeID) (*aggregates.PostTree, error) {
	tree, err := a.repo.GetTree(ctx, id)
	if err != nil {
		return nil, err
	}
	nodes, err := a.repo.GetTreeNodes(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := tree.Assemble(nodes); err != nil {
		if pkgerrors.IsConsistency(err) {
			a.logger.Error("Corrupt tree detected",
				zap.String("tree_id", id.String()),
				zap.Int("nodes", len(nodes)),
				zap.Error(err),
			)
		}
		return nil, err
	}
	return tree, nil
}
