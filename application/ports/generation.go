package ports

import (
	"context"

	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
)

// ContentGenerator produces a nested post in one call. The returned payload
// is anything DecodeNestedPost accepts.
type ContentGenerator interface {
	Generate(ctx context.Context, topic string) (interface{}, error)
}

// AgentTurn is what the front agent produced in one turn: a reply, and at
// most one operation invocation.
type AgentTurn struct {
	Reply       string
	Invocations []entities.Invocation
}

// FrontAgent is the conversational agent that talks to the caller and
// decides which operation to invoke next.
type FrontAgent interface {
	NextTurn(ctx context.Context, state *entities.OrchestratorState) (AgentTurn, error)
}

// SupervisorTask is handed to the supervisor on begin and choosePath
type SupervisorTask struct {
	RunID             valueobjects.RunID
	Topic             string
	ChosenPath        string
	Description       string
	ResearchArtifacts []string
	Interactive       bool
}

// SupervisorResult is what the supervisor pipeline returned. When Content is
// nil and OfferedOptions is not empty the caller must choose a path.
type SupervisorResult struct {
	Content           interface{}
	ResearchArtifacts []string
	OfferedOptions    []string
	Messages          []entities.Message
}

// Supervisor coordinates the research and copy sub-agents
type Supervisor interface {
	Delegate(ctx context.Context, task SupervisorTask) (*SupervisorResult, error)
}

// TreePublisher materializes final content for a session
type TreePublisher interface {
	Publish(ctx context.Context, sessionID string, content *valueobjects.NestedPost) (valueobjects.TreeID, error)
}

// JobDispatcher hands a pending job to whatever runs it off the request path
type JobDispatcher interface {
	Dispatch(ctx context.Context, job *entities.GenerationJob) error

	// Cancel signals a job running in this process. It reports false when
	// the job is unknown here.
	Cancel(id valueobjects.JobID) bool
}
