// Package memory provides in-process stores used for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"branchpost/application/ports"
	"branchpost/domain/core/aggregates"
	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"
)

type treeRow struct {
	id        valueobjects.TreeID
	title     string
	sessionID string
	createdAt time.Time
}

type nodeRow struct {
	id        valueobjects.NodeID
	treeID    valueobjects.TreeID
	content   string
	isRoot    bool
	isEnding  bool
	options   []entities.Option
	createdAt time.Time
}

// TreeStore keeps trees and nodes in maps guarded by one lock
type TreeStore struct {
	mu     sync.RWMutex
	trees  map[valueobjects.TreeID]treeRow
	nodes  map[string]nodeRow
	byTree map[valueobjects.TreeID][]string
}

// NewTreeStore creates an empty tree store
func NewTreeStore() *TreeStore {
	return &TreeStore{
		trees:  make(map[valueobjects.TreeID]treeRow),
		nodes:  make(map[string]nodeRow),
		byTree: make(map[valueobjects.TreeID][]string),
	}
}

// Begin starts a buffered transaction
func (s *TreeStore) Begin(ctx context.Context) (ports.TreeTransaction, error) {
	return &treeTx{store: s, staged: make(map[string]*nodeRow)}, nil
}

// GetTree loads the tree header
func (s *TreeStore) GetTree(ctx context.Context, id valueobjects.TreeID) (*aggregates.PostTree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.trees[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("tree").WithDetail("tree_id", id.String())
	}
	return aggregates.ReconstructPostTree(row.id, row.title, row.sessionID, row.createdAt), nil
}

// GetTreeNodes loads all nodes of a tree
func (s *TreeStore) GetTreeNodes(ctx context.Context, id valueobjects.TreeID) ([]*entities.PostNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.trees[id]; !ok {
		return nil, pkgerrors.NewNotFoundError("tree").WithDetail("tree_id", id.String())
	}
	ids := s.byTree[id]
	out := make([]*entities.PostNode, 0, len(ids))
	for _, nid := range ids {
		out = append(out, s.nodes[nid].toEntity())
	}
	return out, nil
}

// GetNode loads a single node
func (s *TreeStore) GetNode(ctx context.Context, id valueobjects.NodeID) (*entities.PostNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.nodes[id.String()]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("node").WithDetail("node_id", id.String())
	}
	return row.toEntity(), nil
}

// ListTrees returns a page of trees, newest first
func (s *TreeStore) ListTrees(ctx context.Context, offset, limit int) ([]*aggregates.PostTree, int, error) {
	s.mu.RLock()
	rows := make([]treeRow, 0, len(s.trees))
	for _, row := range s.trees {
		rows = append(rows, row)
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].createdAt.Equal(rows[j].createdAt) {
			return rows[i].id > rows[j].id
		}
		return rows[i].createdAt.After(rows[j].createdAt)
	})

	total := len(rows)
	if offset >= total {
		return []*aggregates.PostTree{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}

	out := make([]*aggregates.PostTree, 0, end-offset)
	for _, row := range rows[offset:end] {
		out = append(out, aggregates.ReconstructPostTree(row.id, row.title, row.sessionID, row.createdAt))
	}
	return out, total, nil
}

// NodeCount reports the number of committed nodes across all trees
func (s *TreeStore) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func (r nodeRow) toEntity() *entities.PostNode {
	opts := append([]entities.Option(nil), r.options...)
	return entities.ReconstructPostNode(r.id, r.treeID, r.content, r.isRoot, r.isEnding, opts, r.createdAt)
}

type treeTx struct {
	store  *TreeStore
	trees  []treeRow
	order  []string
	staged map[string]*nodeRow
	done   bool
}

func (tx *treeTx) CreateTree(ctx context.Context, tree *aggregates.PostTree) error {
	if tx.done {
		return pkgerrors.NewInternalError("transaction already finished")
	}
	tx.trees = append(tx.trees, treeRow{
		id:        tree.ID(),
		title:     tree.Title(),
		sessionID: tree.SessionID(),
		createdAt: tree.CreatedAt(),
	})
	return nil
}

func (tx *treeTx) CreateNode(ctx context.Context, node *entities.PostNode) (valueobjects.NodeID, error) {
	if tx.done {
		return valueobjects.NodeID{}, pkgerrors.NewInternalError("transaction already finished")
	}
	id := valueobjects.NewNodeID()
	if err := node.AssignID(id); err != nil {
		return valueobjects.NodeID{}, err
	}
	tx.staged[id.String()] = &nodeRow{
		id:        id,
		treeID:    node.TreeID(),
		content:   node.Content(),
		isRoot:    node.IsRoot(),
		isEnding:  node.IsEnding(),
		createdAt: node.CreatedAt(),
	}
	tx.order = append(tx.order, id.String())
	return id, nil
}

func (tx *treeTx) AttachOptions(ctx context.Context, node *entities.PostNode) error {
	if tx.done {
		return pkgerrors.NewInternalError("transaction already finished")
	}
	row, ok := tx.staged[node.ID().String()]
	if !ok {
		return pkgerrors.NewNotFoundError("staged node").WithDetail("node_id", node.ID().String())
	}
	row.options = node.Options()
	return nil
}

func (tx *treeTx) Commit(ctx context.Context) error {
	if tx.done {
		return pkgerrors.NewInternalError("transaction already finished")
	}
	if err := ctx.Err(); err != nil {
		return pkgerrors.NewDatabaseError("commit tree", err)
	}

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tx.trees {
		if _, exists := s.trees[t.id]; exists {
			return pkgerrors.NewConflictError("tree already exists").WithDetail("tree_id", t.id.String())
		}
	}
	for _, t := range tx.trees {
		s.trees[t.id] = t
	}
	for _, id := range tx.order {
		row := *tx.staged[id]
		s.nodes[id] = row
		s.byTree[row.treeID] = append(s.byTree[row.treeID], id)
	}
	tx.done = true
	return nil
}

func (tx *treeTx) Rollback(ctx context.Context) error {
	tx.done = true
	tx.trees = nil
	tx.order = nil
	tx.staged = nil
	return nil
}
