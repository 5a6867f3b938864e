package agents

import (
	"context"
	"fmt"
	"strings"

	"branchpost/application/ports"
	"branchpost/domain/core/entities"

	"go.uber.org/zap"
)

// Sub-agent names as they appear in run history
const (
	ResearcherName = "researcher"
	CopywriterName = "copywriter"
)

// Researcher gathers material for a topic
type Researcher interface {
	Research(ctx context.Context, topic string) ([]string, error)
}

// Copywriter offers branches and writes the final nested post
type Copywriter interface {
	Offer(ctx context.Context, task ports.SupervisorTask) ([]string, error)
	Write(ctx context.Context, task ports.SupervisorTask) (interface{}, error)
}

// SupervisorPipeline runs research once per run, then either offers paths
// (interactive, nothing chosen yet) or writes the post.
type SupervisorPipeline struct {
	researcher Researcher
	copywriter Copywriter
	logger     *zap.Logger
}

// NewSupervisorPipeline creates the supervisor
func NewSupervisorPipeline(researcher Researcher, copywriter Copywriter, logger *zap.Logger) *SupervisorPipeline {
	return &SupervisorPipeline{researcher: researcher, copywriter: copywriter, logger: logger}
}

// Delegate implements ports.Supervisor
func (s *SupervisorPipeline) Delegate(ctx context.Context, task ports.SupervisorTask) (*ports.SupervisorResult, error) {
	result := &ports.SupervisorResult{}

	if len(task.ResearchArtifacts) == 0 {
		artifacts, err := s.researcher.Research(ctx, task.Topic)
		if err != nil {
			return nil, fmt.Errorf("researcher: %w", err)
		}
		result.ResearchArtifacts = artifacts
		task.ResearchArtifacts = artifacts
		result.Messages = append(result.Messages, say(ResearcherName,
			fmt.Sprintf("Collected %d research notes on %s.", len(artifacts), task.Topic)))
	}

	if task.Interactive && task.ChosenPath == "" {
		options, err := s.copywriter.Offer(ctx, task)
		if err != nil {
			return nil, fmt.Errorf("copywriter: %w", err)
		}
		result.OfferedOptions = options
		result.Messages = append(result.Messages, say(CopywriterName,
			"Possible directions: "+strings.Join(options, ", ")))
		return result, nil
	}

	content, err := s.copywriter.Write(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("copywriter: %w", err)
	}
	result.Content = content
	result.Messages = append(result.Messages, say(CopywriterName, "Draft complete."))

	s.logger.Debug("Supervisor pipeline finished",
		zap.String("run_id", task.RunID.String()),
		zap.Int("research_notes", len(task.ResearchArtifacts)),
		zap.String("chosen_path", task.ChosenPath),
	)
	return result, nil
}

func say(name, content string) entities.Message {
	return entities.Message{Role: entities.RoleSupervisor, Name: name, Content: content}
}

// TemplateResearcher renders a fixed list of research angles for a topic
type TemplateResearcher struct {
	angles []string
}

// NewTemplateResearcher creates a researcher. Angles may contain {topic}.
func NewTemplateResearcher(angles []string) *TemplateResearcher {
	return &TemplateResearcher{angles: append([]string(nil), angles...)}
}

// Research implements Researcher
func (r *TemplateResearcher) Research(ctx context.Context, topic string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(r.angles))
	for _, angle := range r.angles {
		out = append(out, strings.ReplaceAll(angle, "{topic}", topic))
	}
	return out, nil
}

// GeneratorCopywriter writes through a ContentGenerator. The chosen path is
// folded into the topic the generator sees.
type GeneratorCopywriter struct {
	generator ports.ContentGenerator
	paths     []string
}

// NewGeneratorCopywriter creates a copywriter offering the given paths
func NewGeneratorCopywriter(generator ports.ContentGenerator, paths []string) *GeneratorCopywriter {
	return &GeneratorCopywriter{generator: generator, paths: append([]string(nil), paths...)}
}

// Offer implements Copywriter
func (c *GeneratorCopywriter) Offer(ctx context.Context, task ports.SupervisorTask) ([]string, error) {
	return append([]string(nil), c.paths...), nil
}

// Write implements Copywriter
func (c *GeneratorCopywriter) Write(ctx context.Context, task ports.SupervisorTask) (interface{}, error) {
	topic := task.Topic
	if task.ChosenPath != "" {
		topic = fmt.Sprintf("%s (%s)", task.Topic, task.ChosenPath)
	}
	return c.generator.Generate(ctx, topic)
}
