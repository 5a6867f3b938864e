package events

import (
	"time"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Event type names, also used as EventBridge detail types.
const (
	TypeJobCreated       = "generation.job.created"
	TypeJobRequested     = "generation.job.requested"
	TypeJobStatusChanged = "generation.job.status_changed"
	TypeTreeMaterialized = "post.tree.materialized"
)

// Job Events

// JobCreated is raised when a generation job is accepted
type JobCreated struct {
	BaseEvent
	JobID     string `json:"job_id"`
	SessionID string `json:"session_id"`
	Topic     string `json:"topic"`
}

// NewJobCreated creates a JobCreated event
func NewJobCreated(jobID, sessionID, topic string, timestamp time.Time) JobCreated {
	return JobCreated{
		BaseEvent: BaseEvent{
			AggregateID: jobID,
			EventType:   TypeJobCreated,
			Timestamp:   timestamp,
			Version:     1,
		},
		JobID:     jobID,
		SessionID: sessionID,
		Topic:     topic,
	}
}

// JobRequested asks a worker to run a pending job. It is the dispatch message
// when jobs run outside the API process.
type JobRequested struct {
	BaseEvent
	JobID     string `json:"job_id"`
	SessionID string `json:"session_id"`
	Topic     string `json:"topic"`
}

// NewJobRequested creates a JobRequested event
func NewJobRequested(jobID, sessionID, topic string, timestamp time.Time) JobRequested {
	return JobRequested{
		BaseEvent: BaseEvent{
			AggregateID: jobID,
			EventType:   TypeJobRequested,
			Timestamp:   timestamp,
			Version:     1,
		},
		JobID:     jobID,
		SessionID: sessionID,
		Topic:     topic,
	}
}

// JobStatusChanged is raised on every job transition
type JobStatusChanged struct {
	BaseEvent
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	TreeID string `json:"tree_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewJobStatusChanged creates a JobStatusChanged event
func NewJobStatusChanged(jobID, status, treeID, errText string, timestamp time.Time) JobStatusChanged {
	return JobStatusChanged{
		BaseEvent: BaseEvent{
			AggregateID: jobID,
			EventType:   TypeJobStatusChanged,
			Timestamp:   timestamp,
			Version:     1,
		},
		JobID:  jobID,
		Status: status,
		TreeID: treeID,
		Error:  errText,
	}
}

// Tree Events

// TreeMaterialized is raised after a tree has been committed
type TreeMaterialized struct {
	BaseEvent
	TreeID    string `json:"tree_id"`
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	NodeCount int    `json:"node_count"`
}

// NewTreeMaterialized creates a TreeMaterialized event
func NewTreeMaterialized(treeID, sessionID, title string, nodeCount int, timestamp time.Time) TreeMaterialized {
	return TreeMaterialized{
		BaseEvent: BaseEvent{
			AggregateID: treeID,
			EventType:   TypeTreeMaterialized,
			Timestamp:   timestamp,
			Version:     1,
		},
		TreeID:    treeID,
		SessionID: sessionID,
		Title:     title,
		NodeCount: nodeCount,
	}
}
