package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"branchpost/application/ports"
	"branchpost/domain/core/aggregates"
	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"
)

// TreeStore persists trees and nodes in SQLite
type TreeStore struct {
	db *DB
}

// NewTreeStore creates a tree store
func NewTreeStore(db *DB) *TreeStore {
	return &TreeStore{db: db}
}

// Begin starts a database transaction for one tree
func (s *TreeStore) Begin(ctx context.Context) (ports.TreeTransaction, error) {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("begin tree transaction", err)
	}
	return &treeTx{tx: tx}, nil
}

// GetTree loads the tree header
func (s *TreeStore) GetTree(ctx context.Context, id valueobjects.TreeID) (*aggregates.PostTree, error) {
	row := s.db.conn.QueryRowContext(ctx,
		`SELECT tree_id, title, session_id, created_at FROM trees WHERE tree_id = ?`, id.String())
	tree, err := scanTree(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("tree").WithDetail("tree_id", id.String())
	}
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get tree", err)
	}
	return tree, nil
}

// GetTreeNodes loads all nodes of a tree
func (s *TreeStore) GetTreeNodes(ctx context.Context, id valueobjects.TreeID) ([]*entities.PostNode, error) {
	if _, err := s.GetTree(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT node_id, tree_id, content, is_root, is_ending, options, created_at
		 FROM nodes WHERE tree_id = ?`, id.String())
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get tree nodes", err)
	}
	defer rows.Close()

	var nodes []*entities.PostNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("scan node", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.NewDatabaseError("iterate nodes", err)
	}
	return nodes, nil
}

// GetNode loads a single node
func (s *TreeStore) GetNode(ctx context.Context, id valueobjects.NodeID) (*entities.PostNode, error) {
	row := s.db.conn.QueryRowContext(ctx,
		`SELECT node_id, tree_id, content, is_root, is_ending, options, created_at
		 FROM nodes WHERE node_id = ?`, id.String())
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("node").WithDetail("node_id", id.String())
	}
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get node", err)
	}
	return node, nil
}

// ListTrees returns a page of trees, newest first
func (s *TreeStore) ListTrees(ctx context.Context, offset, limit int) ([]*aggregates.PostTree, int, error) {
	var total int
	if err := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM trees`).Scan(&total); err != nil {
		return nil, 0, pkgerrors.NewDatabaseError("count trees", err)
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT tree_id, title, session_id, created_at FROM trees
		 ORDER BY created_at DESC, tree_id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, pkgerrors.NewDatabaseError("list trees", err)
	}
	defer rows.Close()

	trees := []*aggregates.PostTree{}
	for rows.Next() {
		tree, err := scanTree(rows)
		if err != nil {
			return nil, 0, pkgerrors.NewDatabaseError("scan tree", err)
		}
		trees = append(trees, tree)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, pkgerrors.NewDatabaseError("iterate trees", err)
	}
	return trees, total, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTree(s scanner) (*aggregates.PostTree, error) {
	var id, title, sessionID, createdAt string
	if err := s.Scan(&id, &title, &sessionID, &createdAt); err != nil {
		return nil, err
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return aggregates.ReconstructPostTree(valueobjects.TreeID(id), title, sessionID, created), nil
}

func scanNode(s scanner) (*entities.PostNode, error) {
	var (
		id, treeID, content, options, createdAt string
		isRoot, isEnding                        int
	)
	if err := s.Scan(&id, &treeID, &content, &isRoot, &isEnding, &options, &createdAt); err != nil {
		return nil, err
	}
	nodeID, err := valueobjects.NewNodeIDFromString(id)
	if err != nil {
		return nil, err
	}
	var opts []entities.Option
	if err := json.Unmarshal([]byte(options), &opts); err != nil {
		return nil, err
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructPostNode(nodeID, valueobjects.TreeID(treeID), content, isRoot == 1, isEnding == 1, opts, created), nil
}

type treeTx struct {
	tx *sql.Tx
}

func (t *treeTx) CreateTree(ctx context.Context, tree *aggregates.PostTree) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO trees (tree_id, title, session_id, created_at) VALUES (?, ?, ?, ?)`,
		tree.ID().String(), tree.Title(), tree.SessionID(), formatTime(tree.CreatedAt()))
	if err != nil {
		return pkgerrors.NewDatabaseError("insert tree", err)
	}
	return nil
}

func (t *treeTx) CreateNode(ctx context.Context, node *entities.PostNode) (valueobjects.NodeID, error) {
	id := valueobjects.NewNodeID()
	if err := node.AssignID(id); err != nil {
		return valueobjects.NodeID{}, err
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO nodes (node_id, tree_id, content, is_root, is_ending, options, created_at)
		 VALUES (?, ?, ?, ?, ?, '[]', ?)`,
		id.String(), node.TreeID().String(), node.Content(),
		boolToInt(node.IsRoot()), boolToInt(node.IsEnding()), formatTime(node.CreatedAt()))
	if err != nil {
		return valueobjects.NodeID{}, pkgerrors.NewDatabaseError("insert node", err)
	}
	return id, nil
}

func (t *treeTx) AttachOptions(ctx context.Context, node *entities.PostNode) error {
	data, err := json.Marshal(node.Options())
	if err != nil {
		return pkgerrors.NewInternalError("encode options").WithCause(err)
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE nodes SET options = ? WHERE node_id = ?`, string(data), node.ID().String())
	if err != nil {
		return pkgerrors.NewDatabaseError("attach options", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkgerrors.NewNotFoundError("staged node").WithDetail("node_id", node.ID().String())
	}
	return nil
}

func (t *treeTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return pkgerrors.NewDatabaseError("commit tree", err)
	}
	return nil
}

func (t *treeTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return pkgerrors.NewDatabaseError("rollback tree", err)
	}
	return nil
}
