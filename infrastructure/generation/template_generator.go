// Package generation provides ContentGenerator implementations.
package generation

import (
	"context"
	"fmt"
	"strings"

	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"
)

// TemplateGenerator builds a deterministic three-level post from a fixed
// set of branch labels. It is the generator used when no remote endpoint
// is configured.
type TemplateGenerator struct {
	branches []string
}

// NewTemplateGenerator creates a generator offering the given branches at
// the root. At least one branch is required.
func NewTemplateGenerator(branches []string) *TemplateGenerator {
	if len(branches) == 0 {
		branches = []string{"Personal story", "Data-driven deep dive"}
	}
	return &TemplateGenerator{branches: append([]string(nil), branches...)}
}

// Generate returns a *valueobjects.NestedPost for the topic
func (g *TemplateGenerator) Generate(ctx context.Context, topic string) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, pkgerrors.NewValidationError("topic cannot be empty")
	}

	root := &valueobjects.NestedNode{
		Content: fmt.Sprintf("Let's talk about %s. Where should this post go?", topic),
	}
	for _, branch := range g.branches {
		root.Options = append(root.Options, valueobjects.NestedOption{
			Text:     branch,
			NextNode: g.branch(topic, branch),
		})
	}

	return &valueobjects.NestedPost{
		Title:    fmt.Sprintf("%s: choose your path", topic),
		RootNode: root,
	}, nil
}

func (g *TemplateGenerator) branch(topic, label string) *valueobjects.NestedNode {
	return &valueobjects.NestedNode{
		Content: fmt.Sprintf("%s on %s. Short or long version?", label, topic),
		Options: []valueobjects.NestedOption{
			{
				Text: "Keep it short",
				NextNode: &valueobjects.NestedNode{
					Content:  fmt.Sprintf("In one line: %s matters, and here's the %s take.", topic, strings.ToLower(label)),
					IsEnding: true,
				},
			},
			{
				Text: "Go long",
				NextNode: &valueobjects.NestedNode{
					Content:  fmt.Sprintf("A longer %s piece on %s, closing with a question for readers.", strings.ToLower(label), topic),
					IsEnding: true,
				},
			},
		},
	}
}
