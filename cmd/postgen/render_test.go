package main

import (
	"bytes"
	"strings"
	"testing"

	"branchpost/application/queries"
	"branchpost/domain/core/entities"
	"branchpost/infrastructure/config"

	"github.com/stretchr/testify/assert"
)

func TestRendererLabelsAgents(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, config.DefaultPromptConfig())

	r.Message(entities.Message{Role: entities.RoleUser, Content: "coffee"})
	r.Message(entities.Message{Role: entities.RoleSupervisor, Name: "researcher", Content: "notes"})
	r.Message(entities.Message{Role: entities.RoleTool, Content: "ok"})

	out := buf.String()
	assert.Contains(t, out, "you:")
	assert.Contains(t, out, "🔬")
	assert.Contains(t, out, "researcher:")
	assert.Contains(t, out, "tool:")
}

func TestRendererTreeOutline(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, config.DefaultPromptConfig())

	r.Tree(&queries.TreeView{
		TreeID:    "t-1",
		Title:     "Coffee",
		NodeCount: 2,
		Root: &queries.NodeView{
			Content: "Start",
			Options: []queries.OptionView{{
				Text:     "Go on",
				NextNode: &queries.NodeView{Content: "Done", IsEnding: true},
			}},
		},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 5)
	assert.Contains(t, lines[2], "Start")
	assert.Contains(t, lines[3], "Go on")
	assert.True(t, strings.HasPrefix(lines[4], "    Done"))
	assert.Contains(t, lines[4], "(end)")
}

func TestResolveChoice(t *testing.T) {
	options := []string{"Personal story", "Practical how-to"}
	assert.Equal(t, "Practical how-to", resolveChoice("2", options))
	assert.Equal(t, "3", resolveChoice("3", options))
	assert.Equal(t, "Personal story", resolveChoice("Personal story", options))
}
