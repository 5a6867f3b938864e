package ports

import (
	"context"

	"branchpost/domain/core/aggregates"
	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	"branchpost/domain/events"
)

// TreeRepository persists post trees. Writes only happen through a
// TreeTransaction so that a tree is either fully visible or absent.
type TreeRepository interface {
	// Begin starts an atomic write of one tree
	Begin(ctx context.Context) (TreeTransaction, error)

	// GetTree loads the tree header without nodes
	GetTree(ctx context.Context, id valueobjects.TreeID) (*aggregates.PostTree, error)

	// GetTreeNodes loads every node of a tree in no particular order
	GetTreeNodes(ctx context.Context, id valueobjects.TreeID) ([]*entities.PostNode, error)

	// GetNode loads a single node
	GetNode(ctx context.Context, id valueobjects.NodeID) (*entities.PostNode, error)

	// ListTrees returns a page of tree headers, newest first, and the total count
	ListTrees(ctx context.Context, offset, limit int) ([]*aggregates.PostTree, int, error)
}

// TreeTransaction stages the rows of one tree. Nothing is visible to
// readers until Commit returns successfully.
type TreeTransaction interface {
	// CreateTree stages the tree row
	CreateTree(ctx context.Context, tree *aggregates.PostTree) error

	// CreateNode stages a node with its empty option placeholder and assigns its identity
	CreateNode(ctx context.Context, node *entities.PostNode) (valueobjects.NodeID, error)

	// AttachOptions stages the node's final option sequence
	AttachOptions(ctx context.Context, node *entities.PostNode) error

	// Commit makes all staged rows visible at once
	Commit(ctx context.Context) error

	// Rollback discards all staged rows. It is safe to call after Commit.
	Rollback(ctx context.Context) error
}

// JobRepository persists generation jobs
type JobRepository interface {
	// Create stores a new job. Creating an existing job id is a conflict.
	Create(ctx context.Context, job *entities.GenerationJob) error

	// GetByID loads a job by its client-facing identity
	GetByID(ctx context.Context, id valueobjects.JobID) (*entities.GenerationJob, error)

	// Update stores the job only if its stored status still equals expected
	Update(ctx context.Context, job *entities.GenerationJob, expected entities.JobStatus) error
}

// CheckpointStore persists orchestrator run state between calls
type CheckpointStore interface {
	// Load returns the run state or a not found error
	Load(ctx context.Context, runID valueobjects.RunID) (*entities.OrchestratorState, error)

	// Save replaces the stored run state
	Save(ctx context.Context, state *entities.OrchestratorState) error
}

// RunLocker serializes operations on the same run
type RunLocker interface {
	// Lock blocks until the run is held or ctx ends
	Lock(ctx context.Context, runID valueobjects.RunID) (unlock func(), err error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// Cache defines the interface for caching
type Cache interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value in cache with TTL in seconds
	Set(ctx context.Context, key string, value interface{}, ttl int) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// Clear removes all values from cache
	Clear(ctx context.Context) error
}
