// Package agents holds deterministic implementations of the front agent and
// the supervisor pipeline. They make the orchestrator usable without a model
// backend and serve as its reference collaborators.
package agents

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"branchpost/application/ports"
	"branchpost/domain/core/entities"
)

// RuleBasedFrontAgent picks the next operation from the run state alone
type RuleBasedFrontAgent struct{}

// NewRuleBasedFrontAgent creates the front agent
func NewRuleBasedFrontAgent() *RuleBasedFrontAgent {
	return &RuleBasedFrontAgent{}
}

// NextTurn implements ports.FrontAgent
func (a *RuleBasedFrontAgent) NextTurn(ctx context.Context, state *entities.OrchestratorState) (ports.AgentTurn, error) {
	if err := ctx.Err(); err != nil {
		return ports.AgentTurn{}, err
	}

	if state.FinalContent != nil && state.TreeID.IsZero() {
		return invoke(entities.OpFinalize, "", "Your post is ready. Saving it now."), nil
	}

	userMsg, fresh := lastUserMessage(state)

	if state.Topic == "" {
		if !fresh || strings.TrimSpace(userMsg) == "" {
			return ports.AgentTurn{Reply: "What should the post be about?"}, nil
		}
		topic := strings.TrimSpace(userMsg)
		return invoke(entities.OpBegin, topic, fmt.Sprintf("Great, let's build a post about %s.", topic)), nil
	}

	if state.WaitingForChoice {
		if fresh {
			if label, ok := matchOption(userMsg, state.CurrentOptions); ok {
				return invoke(entities.OpChoosePath, label, fmt.Sprintf("Going with %q.", label)), nil
			}
		}
		return ports.AgentTurn{Reply: choicePrompt(state.CurrentOptions)}, nil
	}

	if !state.TreeID.IsZero() {
		return ports.AgentTurn{Reply: fmt.Sprintf("Your post was saved as %s.", state.TreeID)}, nil
	}
	return ports.AgentTurn{Reply: "I have nothing further to add for this topic."}, nil
}

func invoke(op entities.Operation, arg, reply string) ports.AgentTurn {
	return ports.AgentTurn{
		Reply:       reply,
		Invocations: []entities.Invocation{{Operation: op, Argument: arg}},
	}
}

// lastUserMessage returns the newest user message and whether nothing but
// user messages came after it.
func lastUserMessage(state *entities.OrchestratorState) (string, bool) {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		msg := state.Messages[i]
		if msg.Role != entities.RoleUser {
			return "", false
		}
		if msg.Invocation == nil {
			return msg.Content, true
		}
	}
	return "", false
}

// matchOption accepts an option label, case-insensitively, or its 1-based
// position.
func matchOption(input string, options []string) (string, bool) {
	input = strings.TrimSpace(input)
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(options) {
		return options[n-1], true
	}
	for _, opt := range options {
		if strings.EqualFold(opt, input) {
			return opt, true
		}
	}
	return "", false
}

func choicePrompt(options []string) string {
	var b strings.Builder
	b.WriteString("Choose how the post should continue:")
	for i, opt := range options {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, opt)
	}
	return b.String()
}
