package memory

import (
	"context"
	"sync"
	"time"

	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"
)

type jobRow struct {
	id          valueobjects.JobID
	sessionID   string
	topic       string
	status      entities.JobStatus
	treeID      valueobjects.TreeID
	errorText   string
	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
	version     int
}

// JobStore keeps jobs in a map. Updates are compare-and-set on status.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[valueobjects.JobID]jobRow
}

// NewJobStore creates an empty job store
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[valueobjects.JobID]jobRow)}
}

// Create stores a new job
func (s *JobStore) Create(ctx context.Context, job *entities.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID()]; exists {
		return pkgerrors.NewConflictError("job already exists").WithDetail("job_id", job.ID().String())
	}
	s.jobs[job.ID()] = rowFromJob(job)
	return nil
}

// GetByID loads a job
func (s *JobStore) GetByID(ctx context.Context, id valueobjects.JobID) (*entities.GenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.jobs[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("job").WithDetail("job_id", id.String())
	}
	return row.toEntity(), nil
}

// Update replaces the job if the stored status still equals expected
func (s *JobStore) Update(ctx context.Context, job *entities.GenerationJob, expected entities.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[job.ID()]
	if !ok {
		return pkgerrors.NewNotFoundError("job").WithDetail("job_id", job.ID().String())
	}
	if current.status != expected {
		return pkgerrors.NewConflictError("job status changed concurrently").
			WithCode(pkgerrors.CodeInvalidTransition).
			WithDetails(map[string]interface{}{
				"job_id":   job.ID().String(),
				"expected": string(expected),
				"actual":   string(current.status),
			})
	}
	s.jobs[job.ID()] = rowFromJob(job)
	return nil
}

func rowFromJob(job *entities.GenerationJob) jobRow {
	return jobRow{
		id:          job.ID(),
		sessionID:   job.SessionID(),
		topic:       job.Topic(),
		status:      job.Status(),
		treeID:      job.TreeID(),
		errorText:   job.ErrorText(),
		createdAt:   job.CreatedAt(),
		startedAt:   copyTime(job.StartedAt()),
		completedAt: copyTime(job.CompletedAt()),
		version:     job.Version(),
	}
}

func (r jobRow) toEntity() *entities.GenerationJob {
	return entities.ReconstructGenerationJob(
		r.id, r.sessionID, r.topic, r.status, r.treeID, r.errorText,
		r.createdAt, copyTime(r.startedAt), copyTime(r.completedAt), r.version,
	)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
