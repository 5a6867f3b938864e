package commands

import (
	"strings"

	"branchpost/domain/core/valueobjects"
	"branchpost/pkg/utils"
)

// CreateGenerationJobCommand registers a pending job and hands it to the
// dispatcher. JobID is chosen by the caller so it can be returned at once.
type CreateGenerationJobCommand struct {
	JobID     string `json:"job_id" validate:"required,uuid"`
	SessionID string `json:"session_id" validate:"required"`
	Topic     string `json:"topic" validate:"required,max=500"`
}

// Validate validates the command
func (c CreateGenerationJobCommand) Validate() error {
	c.Topic = strings.TrimSpace(c.Topic)
	return utils.ValidateStruct(c)
}

// ID returns the job identity
func (c CreateGenerationJobCommand) ID() valueobjects.JobID {
	return valueobjects.JobID(c.JobID)
}

// CancelJobCommand stops an in-flight job
type CancelJobCommand struct {
	JobID string `json:"job_id" validate:"required,uuid"`
}

// Validate validates the command
func (c CancelJobCommand) Validate() error {
	return utils.ValidateStruct(c)
}
