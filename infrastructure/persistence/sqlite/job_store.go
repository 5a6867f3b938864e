package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"
)

// JobStore persists generation jobs in SQLite
type JobStore struct {
	db *DB
}

// NewJobStore creates a job store
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

// Create stores a new job
func (s *JobStore) Create(ctx context.Context, job *entities.GenerationJob) error {
	res, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO jobs (job_id, session_id, topic, status, tree_id, error, created_at, started_at, completed_at, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id) DO NOTHING`,
		job.ID().String(), job.SessionID(), job.Topic(), string(job.Status()),
		nullString(job.TreeID().String()), nullString(job.ErrorText()),
		formatTime(job.CreatedAt()), formatTimePtr(job.StartedAt()), formatTimePtr(job.CompletedAt()),
		job.Version())
	if err != nil {
		return pkgerrors.NewDatabaseError("insert job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkgerrors.NewConflictError("job already exists").WithDetail("job_id", job.ID().String())
	}
	return nil
}

// GetByID loads a job
func (s *JobStore) GetByID(ctx context.Context, id valueobjects.JobID) (*entities.GenerationJob, error) {
	row := s.db.conn.QueryRowContext(ctx,
		`SELECT job_id, session_id, topic, status, tree_id, error, created_at, started_at, completed_at, version
		 FROM jobs WHERE job_id = ?`, id.String())

	var (
		jobID, sessionID, topic, status, createdAt string
		treeID, errText, startedAt, completedAt    sql.NullString
		version                                    int
	)
	err := row.Scan(&jobID, &sessionID, &topic, &status, &treeID, &errText, &createdAt, &startedAt, &completedAt, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("job").WithDetail("job_id", id.String())
	}
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get job", err)
	}

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse job created_at", err)
	}
	started, err := parseTimePtr(startedAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse job started_at", err)
	}
	completed, err := parseTimePtr(completedAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse job completed_at", err)
	}

	return entities.ReconstructGenerationJob(
		valueobjects.JobID(jobID), sessionID, topic, entities.JobStatus(status),
		valueobjects.TreeID(treeID.String), errText.String,
		created, started, completed, version,
	), nil
}

// Update stores the job only if the stored status still equals expected
func (s *JobStore) Update(ctx context.Context, job *entities.GenerationJob, expected entities.JobStatus) error {
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE jobs SET status = ?, tree_id = ?, error = ?, started_at = ?, completed_at = ?, version = ?
		 WHERE job_id = ? AND status = ?`,
		string(job.Status()), nullString(job.TreeID().String()), nullString(job.ErrorText()),
		formatTimePtr(job.StartedAt()), formatTimePtr(job.CompletedAt()), job.Version(),
		job.ID().String(), string(expected))
	if err != nil {
		return pkgerrors.NewDatabaseError("update job", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	current, err := s.GetByID(ctx, job.ID())
	if err != nil {
		return err
	}
	return pkgerrors.NewConflictError("job status changed concurrently").
		WithCode(pkgerrors.CodeInvalidTransition).
		WithDetails(map[string]interface{}{
			"job_id":   job.ID().String(),
			"expected": string(expected),
			"actual":   string(current.Status()),
		})
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
