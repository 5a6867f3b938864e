package entities

import (
	"time"

	"branchpost/domain/core/valueobjects"
)

// RunPhase is a state of the orchestrator state machine
type RunPhase string

const (
	PhaseIdle                   RunPhase = "idle"
	PhaseAwaitingAgentTurn      RunPhase = "awaiting_agent_turn"
	PhaseDelegatingToSupervisor RunPhase = "delegating_to_supervisor"
	PhaseCompleted              RunPhase = "completed"
	PhaseDone                   RunPhase = "done"
	PhaseFailed                 RunPhase = "failed"
)

// IsTerminal reports whether the run accepts no further input
func (p RunPhase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseDone || p == PhaseFailed
}

// Operation names an action the front agent may invoke mid-turn
type Operation string

const (
	OpBegin      Operation = "begin"
	OpChoosePath Operation = "choose_path"
	OpFinalize   Operation = "finalize"
)

// IsValid reports whether op is one of the known operations
func (op Operation) IsValid() bool {
	return op == OpBegin || op == OpChoosePath || op == OpFinalize
}

// Invocation is one operation call with its single argument
type Invocation struct {
	Operation Operation `json:"operation"`
	Argument  string    `json:"argument"`
}

// MessageRole identifies who produced a message
type MessageRole string

const (
	RoleUser       MessageRole = "user"
	RoleAgent      MessageRole = "agent"
	RoleSupervisor MessageRole = "supervisor"
	RoleTool       MessageRole = "tool"
)

// Message is one entry of a run's conversation history
type Message struct {
	Role       MessageRole `json:"role"`
	Name       string      `json:"name,omitempty"`
	Content    string      `json:"content"`
	Invocation *Invocation `json:"invocation,omitempty"`
	At         time.Time   `json:"at"`
}

// OrchestratorState is the checkpointed conversation state of one run.
// It is keyed by RunID and never stored alongside trees or jobs.
type OrchestratorState struct {
	RunID             valueobjects.RunID       `json:"run_id"`
	SessionID         string                   `json:"session_id"`
	Phase             RunPhase                 `json:"phase"`
	Messages          []Message                `json:"messages"`
	Topic             string                   `json:"topic,omitempty"`
	TreeID            valueobjects.TreeID      `json:"tree_id,omitempty"`
	ResearchArtifacts []string                 `json:"research_artifacts,omitempty"`
	CurrentOptions    []string                 `json:"current_options,omitempty"`
	WaitingForChoice  bool                     `json:"waiting_for_choice"`
	ChosenPath        string                   `json:"chosen_path,omitempty"`
	FinalContent      *valueobjects.NestedPost `json:"final_content,omitempty"`
	Steps             int                      `json:"steps"`
	Failure           string                   `json:"failure,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

// NewOrchestratorState creates an idle run
func NewOrchestratorState(runID valueobjects.RunID, sessionID string) *OrchestratorState {
	now := time.Now().UTC()
	return &OrchestratorState{
		RunID:     runID,
		SessionID: sessionID,
		Phase:     PhaseIdle,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the history
func (s *OrchestratorState) Append(msg Message) {
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = msg.At
}

// IsOfferedOption reports whether label is one of the currently offered options
func (s *OrchestratorState) IsOfferedOption(label string) bool {
	for _, opt := range s.CurrentOptions {
		if opt == label {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to collaborators
func (s *OrchestratorState) Clone() *OrchestratorState {
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	out.ResearchArtifacts = append([]string(nil), s.ResearchArtifacts...)
	out.CurrentOptions = append([]string(nil), s.CurrentOptions...)
	return &out
}
