package orchestrator

import "strings"

// Default prompt templates. Placeholders are {topic}, {path} and {count}.
const (
	DefaultBeginTemplate   = "Create a multi-path social media post about: {topic}. First, research the topic thoroughly, then create engaging post options for the user to choose from."
	DefaultChoiceTemplate  = "Continue creating the post about {topic} following the user's chosen path: {path}. Develop the content further based on this direction."
	DefaultSummaryTemplate = "Supervisor completed coordination for topic: {topic}. Research reports: {count} found."
	DefaultAgentName       = "PostGenerator"
	DefaultStepBudget      = 50
)

// Config is injected at construction time; the orchestrator keeps no global
// prompt tables.
type Config struct {
	// StepBudget caps agent turns plus supervisor delegations per run.
	StepBudget int
	// Interactive runs suspend when the supervisor offers paths. Job runs do not.
	Interactive bool

	AgentName       string
	BeginTemplate   string
	ChoiceTemplate  string
	SummaryTemplate string
}

// DefaultConfig returns an interactive configuration with the built-in prompts
func DefaultConfig() Config {
	return Config{
		StepBudget:      DefaultStepBudget,
		Interactive:     true,
		AgentName:       DefaultAgentName,
		BeginTemplate:   DefaultBeginTemplate,
		ChoiceTemplate:  DefaultChoiceTemplate,
		SummaryTemplate: DefaultSummaryTemplate,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StepBudget <= 0 {
		c.StepBudget = d.StepBudget
	}
	if c.AgentName == "" {
		c.AgentName = d.AgentName
	}
	if c.BeginTemplate == "" {
		c.BeginTemplate = d.BeginTemplate
	}
	if c.ChoiceTemplate == "" {
		c.ChoiceTemplate = d.ChoiceTemplate
	}
	if c.SummaryTemplate == "" {
		c.SummaryTemplate = d.SummaryTemplate
	}
	return c
}

func render(template string, pairs ...string) string {
	return strings.NewReplacer(pairs...).Replace(template)
}
