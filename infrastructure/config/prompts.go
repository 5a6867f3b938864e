package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AgentStyle controls how a named agent's messages are rendered by the
// console client.
type AgentStyle struct {
	Color string `yaml:"color"`
	Emoji string `yaml:"emoji"`
}

// PromptConfig holds the orchestrator templates and the content the
// rule-based agents draw from. Values in the file override the defaults
// key by key.
type PromptConfig struct {
	AgentName       string `yaml:"agent_name"`
	BeginTemplate   string `yaml:"begin_template"`
	ChoiceTemplate  string `yaml:"choice_template"`
	SummaryTemplate string `yaml:"summary_template"`

	// ResearchAngles are rendered with {topic} into research artifacts.
	ResearchAngles []string `yaml:"research_angles"`

	// PathOptions are the branches offered after research.
	PathOptions []string `yaml:"path_options"`

	Styles map[string]AgentStyle `yaml:"styles"`
}

// DefaultPromptConfig returns the built-in prompts
func DefaultPromptConfig() *PromptConfig {
	return &PromptConfig{
		AgentName:       "PostGenerator",
		BeginTemplate:   "Create a multi-path social media post about: {topic}. First, research the topic thoroughly, then create engaging post options for the user to choose from.",
		ChoiceTemplate:  "Continue creating the post about {topic} following the user's chosen path: {path}. Develop the content further based on this direction.",
		SummaryTemplate: "Supervisor completed coordination for topic: {topic}. Research reports: {count} found.",
		ResearchAngles: []string{
			"Background and key facts about {topic}",
			"Common questions readers ask about {topic}",
			"Practical takeaways on {topic}",
		},
		PathOptions: []string{
			"Personal story",
			"Data-driven deep dive",
			"Practical how-to",
		},
		Styles: map[string]AgentStyle{
			"PostGenerator": {Color: "12", Emoji: "🚀"},
			"researcher":    {Color: "14", Emoji: "🔬"},
			"copywriter":    {Color: "13", Emoji: "✍️"},
			"supervisor":    {Color: "10", Emoji: "🎯"},
		},
	}
}

// LoadPromptConfig reads a YAML prompt file over the defaults. An empty path
// returns the defaults.
func LoadPromptConfig(path string) (*PromptConfig, error) {
	cfg := DefaultPromptConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file %s: %w", path, err)
	}

	var override PromptConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &override); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file %s: %w", path, err)
	}
	cfg.merge(&override)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid prompts file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *PromptConfig) merge(o *PromptConfig) {
	if o.AgentName != "" {
		c.AgentName = o.AgentName
	}
	if o.BeginTemplate != "" {
		c.BeginTemplate = o.BeginTemplate
	}
	if o.ChoiceTemplate != "" {
		c.ChoiceTemplate = o.ChoiceTemplate
	}
	if o.SummaryTemplate != "" {
		c.SummaryTemplate = o.SummaryTemplate
	}
	if len(o.ResearchAngles) > 0 {
		c.ResearchAngles = o.ResearchAngles
	}
	if len(o.PathOptions) > 0 {
		c.PathOptions = o.PathOptions
	}
	for name, style := range o.Styles {
		c.Styles[name] = style
	}
}

// Validate checks that the templates can drive a run
func (c *PromptConfig) Validate() error {
	if len(c.PathOptions) == 0 {
		return fmt.Errorf("at least one path option is required")
	}
	seen := make(map[string]bool, len(c.PathOptions))
	for _, opt := range c.PathOptions {
		if opt == "" {
			return fmt.Errorf("path options cannot be empty")
		}
		if seen[opt] {
			return fmt.Errorf("duplicate path option %q", opt)
		}
		seen[opt] = true
	}
	return nil
}

// Style returns the render style for an agent name
func (c *PromptConfig) Style(name string) AgentStyle {
	if s, ok := c.Styles[name]; ok {
		return s
	}
	return AgentStyle{Color: "7"}
}
