package entities

import (
	"fmt"
	"time"

	"branchpost/domain/core/valueobjects"
	"branchpost/domain/events"
	pkgerrors "branchpost/pkg/errors"
)

// JobStatus represents the lifecycle state of a generation job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsValid reports whether s is a known status
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// GenerationJob tracks one asynchronous generation request.
//
// Allowed transitions:
//
//	pending -> processing -> completed
//	pending -> processing -> failed
//
// Terminal states are write-once.
type GenerationJob struct {
	id          valueobjects.JobID
	sessionID   string
	topic       string
	status      JobStatus
	treeID      valueobjects.TreeID
	errorText   string
	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
	version     int

	events []events.DomainEvent
}

// NewGenerationJob creates a job in the pending state
func NewGenerationJob(id valueobjects.JobID, sessionID, topic string) (*GenerationJob, error) {
	if id == "" {
		return nil, pkgerrors.NewValidationError("job id cannot be empty")
	}
	if topic == "" {
		return nil, pkgerrors.NewValidationError("topic cannot be empty")
	}

	now := time.Now().UTC()
	job := &GenerationJob{
		id:        id,
		sessionID: sessionID,
		topic:     topic,
		status:    JobStatusPending,
		createdAt: now,
		version:   1,
	}
	job.addEvent(events.NewJobCreated(id.String(), sessionID, topic, now))
	return job, nil
}

// ReconstructGenerationJob rebuilds a job from stored data
func ReconstructGenerationJob(
	id valueobjects.JobID,
	sessionID, topic string,
	status JobStatus,
	treeID valueobjects.TreeID,
	errorText string,
	createdAt time.Time,
	startedAt, completedAt *time.Time,
	version int,
) *GenerationJob {
	return &GenerationJob{
		id:          id,
		sessionID:   sessionID,
		topic:       topic,
		status:      status,
		treeID:      treeID,
		errorText:   errorText,
		createdAt:   createdAt,
		startedAt:   startedAt,
		completedAt: completedAt,
		version:     version,
	}
}

// Start moves a pending job into processing
func (j *GenerationJob) Start() error {
	if err := j.ensureTransition(JobStatusProcessing); err != nil {
		return err
	}
	now := time.Now().UTC()
	j.status = JobStatusProcessing
	j.startedAt = &now
	j.version++
	j.addEvent(events.NewJobStatusChanged(j.id.String(), string(JobStatusProcessing), "", "", now))
	return nil
}

// Complete records the resulting tree and ends the job
func (j *GenerationJob) Complete(treeID valueobjects.TreeID) error {
	if treeID.IsZero() {
		return pkgerrors.NewValidationError("completed job requires a tree id")
	}
	if err := j.ensureTransition(JobStatusCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	j.status = JobStatusCompleted
	j.treeID = treeID
	j.completedAt = &now
	j.version++
	j.addEvent(events.NewJobStatusChanged(j.id.String(), string(JobStatusCompleted), treeID.String(), "", now))
	return nil
}

// Fail records the error description and ends the job
func (j *GenerationJob) Fail(errorText string) error {
	if errorText == "" {
		errorText = "unknown error"
	}
	if err := j.ensureTransition(JobStatusFailed); err != nil {
		return err
	}
	now := time.Now().UTC()
	j.status = JobStatusFailed
	j.errorText = errorText
	j.completedAt = &now
	j.version++
	j.addEvent(events.NewJobStatusChanged(j.id.String(), string(JobStatusFailed), "", errorText, now))
	return nil
}

func (j *GenerationJob) ensureTransition(to JobStatus) error {
	allowed := false
	switch j.status {
	case JobStatusPending:
		allowed = to == JobStatusProcessing
	case JobStatusProcessing:
		allowed = to == JobStatusCompleted || to == JobStatusFailed
	}
	if !allowed {
		return pkgerrors.NewConflictError(fmt.Sprintf("job cannot move from %s to %s", j.status, to)).
			WithCode(pkgerrors.CodeInvalidTransition).
			WithDetails(map[string]interface{}{
				"job_id": j.id.String(),
				"from":   string(j.status),
				"to":     string(to),
			})
	}
	return nil
}

func (j *GenerationJob) ID() valueobjects.JobID { return j.id }

func (j *GenerationJob) SessionID() string { return j.sessionID }

func (j *GenerationJob) Topic() string { return j.topic }

func (j *GenerationJob) Status() JobStatus { return j.status }

func (j *GenerationJob) TreeID() valueobjects.TreeID { return j.treeID }

// ErrorText is the sanitized failure description of a failed job
func (j *GenerationJob) ErrorText() string { return j.errorText }

func (j *GenerationJob) CreatedAt() time.Time { return j.createdAt }

// StartedAt is set when the job entered processing
func (j *GenerationJob) StartedAt() *time.Time { return j.startedAt }

func (j *GenerationJob) CompletedAt() *time.Time { return j.completedAt }

func (j *GenerationJob) Version() int { return j.version }

// GetUncommittedEvents returns events raised since the job was loaded
func (j *GenerationJob) GetUncommittedEvents() []events.DomainEvent {
	return j.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (j *GenerationJob) MarkEventsAsCommitted() {
	j.events = nil
}

func (j *GenerationJob) addEvent(event events.DomainEvent) {
	j.events = append(j.events, event)
}
