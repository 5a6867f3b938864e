package valueobjects

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// NodeID is a value object representing a persisted node identity.
// It is assigned by the store when the node is first written.
type NodeID struct {
	value string
}

// NewNodeID creates a new random NodeID
func NewNodeID() NodeID {
	return NodeID{value: uuid.New().String()}
}

// NewNodeIDFromString creates a NodeID from an existing string
func NewNodeIDFromString(id string) (NodeID, error) {
	if id == "" {
		return NodeID{}, errors.New("node ID cannot be empty")
	}
	if !isValidUUID(id) {
		return NodeID{}, errors.New("node ID must be a valid UUID")
	}
	return NodeID{value: id}, nil
}

// String returns the string representation of the NodeID
func (id NodeID) String() string {
	return id.value
}

// Equals checks if two NodeIDs are equal
func (id NodeID) Equals(other NodeID) bool {
	return id.value == other.value
}

// IsZero checks if the NodeID is the zero value
func (id NodeID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id NodeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (id *NodeID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("NodeID must be a string")
	}
	id.value = s
	return nil
}

// TreeID identifies a PostTree
type TreeID string

// NewTreeID creates a new random TreeID
func NewTreeID() TreeID {
	return TreeID(uuid.New().String())
}

// String returns the string representation
func (id TreeID) String() string {
	return string(id)
}

// IsZero reports whether the id is unset
func (id TreeID) IsZero() bool {
	return id == ""
}

// JobID is the client-facing identity of a generation job
type JobID string

// NewJobID creates a new random JobID
func NewJobID() JobID {
	return JobID(uuid.New().String())
}

// ParseJobID validates a client supplied job id
func ParseJobID(s string) (JobID, error) {
	if !isValidUUID(s) {
		return "", errors.New("job ID must be a valid UUID")
	}
	return JobID(s), nil
}

// String returns the string representation
func (id JobID) String() string {
	return string(id)
}

// RunID keys the checkpointed conversation state of one orchestrator run
type RunID string

// NewRunID creates a new random RunID
func NewRunID() RunID {
	return RunID(uuid.New().String())
}

// ParseRunID validates and creates a RunID from a string
func ParseRunID(s string) (RunID, error) {
	if !isValidUUID(s) {
		return "", errors.New("run ID must be a valid UUID")
	}
	return RunID(s), nil
}

// String returns the string representation
func (id RunID) String() string {
	return string(id)
}

func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
