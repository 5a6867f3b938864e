package services

import (
	"context"

	"branchpost/application/ports"
	"branchpost/domain/config"
	"branchpost/domain/core/aggregates"
	"branchpost/domain/core/entities"
	"branchpost/domain/core/validators"
	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"
	"branchpost/pkg/observability"

	"go.uber.org/zap"
)

// MaterializeResult describes a committed tree
type MaterializeResult struct {
	TreeID    valueobjects.TreeID
	Title     string
	NodeCount int
	// DanglingLeaves are non-ending nodes persisted without options.
	DanglingLeaves []valueobjects.NodeID
	// IgnoredOptions counts options dropped from ending nodes.
	IgnoredOptions int
}

// TreeMaterializer converts a nested post into a persisted, flat tree.
// Nodes are written depth-first and each node's options are attached only
// after all of its children exist. The whole tree is one atomic commit.
type TreeMaterializer struct {
	repo      ports.TreeRepository
	validator *validators.TreeValidator
	publisher ports.EventPublisher
	logger    *zap.Logger
	metrics   *observability.Collector
	tracer    *observability.Tracer
}

// NewTreeMaterializer creates a materializer. publisher, metrics and tracer may be nil.
func NewTreeMaterializer(
	repo ports.TreeRepository,
	domainCfg *config.DomainConfig,
	publisher ports.EventPublisher,
	logger *zap.Logger,
	metrics *observability.Collector,
	tracer *observability.Tracer,
) *TreeMaterializer {
	return &TreeMaterializer{
		repo:      repo,
		validator: validators.NewTreeValidator(domainCfg),
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		tracer:    tracer,
	}
}

// Materialize decodes, validates and commits payload as a new tree owned by
// sessionID. Invalid input fails before anything is written.
func (m *TreeMaterializer) Materialize(ctx context.Context, sessionID string, payload interface{}) (*MaterializeResult, error) {
	post, err := valueobjects.DecodeNestedPost(payload)
	if err != nil {
		return nil, err
	}
	stats, err := m.validator.Validate(post)
	if err != nil {
		return nil, err
	}

	tree, err := aggregates.NewPostTree(post.Title, sessionID)
	if err != nil {
		return nil, err
	}

	result := &MaterializeResult{TreeID: tree.ID(), Title: tree.Title()}
	err = m.tracer.TraceFunction(ctx, "materialize", func(ctx context.Context) error {
		return m.commit(ctx, tree, post, result)
	})
	if err != nil {
		return nil, err
	}

	tree.MarkMaterialized(result.NodeCount)
	m.publishEvents(ctx, tree)
	m.metrics.RecordMaterialization(result.NodeCount, len(result.DanglingLeaves))

	fields := []zap.Field{
		zap.String("tree_id", tree.ID().String()),
		zap.Int("nodes", result.NodeCount),
		zap.Int("depth", stats.Depth),
	}
	if result.IgnoredOptions > 0 {
		fields = append(fields, zap.Int("ignored_options", result.IgnoredOptions))
	}
	if len(result.DanglingLeaves) > 0 {
		m.logger.Warn("Tree materialized with dangling leaves",
			append(fields, zap.Strings("dangling_paths", stats.DanglingLeaves))...)
	} else {
		m.logger.Info("Tree materialized", fields...)
	}

	return result, nil
}

// Publish implements ports.TreePublisher
func (m *TreeMaterializer) Publish(ctx context.Context, sessionID string, content *valueobjects.NestedPost) (valueobjects.TreeID, error) {
	result, err := m.Materialize(ctx, sessionID, content)
	if err != nil {
		return "", err
	}
	return result.TreeID, nil
}

func (m *TreeMaterializer) commit(ctx context.Context, tree *aggregates.PostTree, post *valueobjects.NestedPost, result *MaterializeResult) error {
	tx, err := m.repo.Begin(ctx)
	if err != nil {
		return pkgerrors.Wrap(err, "begin tree transaction")
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				m.logger.Error("Failed to roll back tree transaction",
					zap.String("tree_id", tree.ID().String()),
					zap.Error(rbErr),
				)
			}
		}
	}()

	if err := tx.CreateTree(ctx, tree); err != nil {
		return pkgerrors.Wrap(err, "create tree")
	}
	if _, err := m.materializeNode(ctx, tx, tree.ID(), post.RootNode, true, result); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return pkgerrors.Wrap(err, "commit tree")
	}
	committed = true
	return nil
}

// materializeNode persists n, then its children, then n's option sequence.
func (m *TreeMaterializer) materializeNode(
	ctx context.Context,
	tx ports.TreeTransaction,
	treeID valueobjects.TreeID,
	n *valueobjects.NestedNode,
	isRoot bool,
	result *MaterializeResult,
) (valueobjects.NodeID, error) {
	if err := ctx.Err(); err != nil {
		return valueobjects.NodeID{}, pkgerrors.NewTimeoutError("materialize tree").WithCause(err)
	}

	node, err := entities.NewPostNode(treeID, n.Content, isRoot, n.IsEnding)
	if err != nil {
		return valueobjects.NodeID{}, err
	}
	id, err := tx.CreateNode(ctx, node)
	if err != nil {
		return valueobjects.NodeID{}, pkgerrors.Wrap(err, "create node")
	}
	result.NodeCount++

	if n.IsEnding {
		result.IgnoredOptions += len(n.Options)
		return id, nil
	}
	if len(n.Options) == 0 {
		result.DanglingLeaves = append(result.DanglingLeaves, id)
		return id, nil
	}

	options := make([]entities.Option, 0, len(n.Options))
	for _, opt := range n.Options {
		childID, err := m.materializeNode(ctx, tx, treeID, opt.NextNode, false, result)
		if err != nil {
			return valueobjects.NodeID{}, err
		}
		options = append(options, entities.Option{Text: opt.Text, Target: childID})
	}

	if err := node.AttachOptions(options); err != nil {
		return valueobjects.NodeID{}, err
	}
	if err := tx.AttachOptions(ctx, node); err != nil {
		return valueobjects.NodeID{}, pkgerrors.Wrap(err, "attach options")
	}
	return id, nil
}

func (m *TreeMaterializer) publishEvents(ctx context.Context, tree *aggregates.PostTree) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.PublishBatch(ctx, tree.GetUncommittedEvents()); err != nil {
		m.logger.Warn("Failed to publish tree events",
			zap.String("tree_id", tree.ID().String()),
			zap.Error(err),
		)
		return
	}
	tree.MarkEventsAsCommitted()
}
