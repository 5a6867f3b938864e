package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"
)

// CheckpointStore persists orchestrator run state as JSON documents
type CheckpointStore struct {
	db *DB
}

// NewCheckpointStore creates a checkpoint store
func NewCheckpointStore(db *DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Load returns the stored run state
func (s *CheckpointStore) Load(ctx context.Context, runID valueobjects.RunID) (*entities.OrchestratorState, error) {
	var data string
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT state FROM run_checkpoints WHERE run_id = ?`, runID.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("run").WithDetail("run_id", runID.String())
	}
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("load checkpoint", err)
	}

	var state entities.OrchestratorState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, pkgerrors.NewDatabaseError("decode checkpoint", err)
	}
	return &state, nil
}

// Save replaces the stored run state
func (s *CheckpointStore) Save(ctx context.Context, state *entities.OrchestratorState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return pkgerrors.NewInternalError("encode checkpoint").WithCause(err)
	}
	_, err = s.db.conn.ExecContext(ctx,
		`INSERT INTO run_checkpoints (run_id, session_id, phase, state, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET phase = excluded.phase, state = excluded.state, updated_at = excluded.updated_at`,
		state.RunID.String(), state.SessionID, string(state.Phase), string(data), formatTime(state.UpdatedAt))
	if err != nil {
		return pkgerrors.NewDatabaseError("save checkpoint", err)
	}
	return nil
}
