package memory

import (
	"context"
	"encoding/json"
	"sync"

	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"
)

// CheckpointStore keeps serialized run state so that callers never share
// memory with a stored checkpoint.
type CheckpointStore struct {
	mu   sync.RWMutex
	runs map[valueobjects.RunID][]byte
}

// NewCheckpointStore creates an empty checkpoint store
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{runs: make(map[valueobjects.RunID][]byte)}
}

// Load returns a copy of the stored run state
func (s *CheckpointStore) Load(ctx context.Context, runID valueobjects.RunID) (*entities.OrchestratorState, error) {
	s.mu.RLock()
	data, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, pkgerrors.NewNotFoundError("run").WithDetail("run_id", runID.String())
	}
	var state entities.OrchestratorState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, pkgerrors.NewDatabaseError("decode checkpoint", err)
	}
	return &state, nil
}

// Save stores a snapshot of the run state
func (s *CheckpointStore) Save(ctx context.Context, state *entities.OrchestratorState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return pkgerrors.NewDatabaseError("encode checkpoint", err)
	}

	s.mu.Lock()
	s.runs[state.RunID] = data
	s.mu.Unlock()
	return nil
}
