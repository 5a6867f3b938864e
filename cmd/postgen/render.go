package main

import (
	"fmt"
	"io"
	"strings"

	"branchpost/application/queries"
	"branchpost/domain/core/entities"
	"branchpost/infrastructure/config"

	"github.com/charmbracelet/lipgloss"
)

var (
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	optionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// Renderer writes transcript lines styled per agent
type Renderer struct {
	out     io.Writer
	prompts *config.PromptConfig
}

// NewRenderer creates a renderer
func NewRenderer(out io.Writer, prompts *config.PromptConfig) *Renderer {
	return &Renderer{out: out, prompts: prompts}
}

// Message prints one transcript message
func (r *Renderer) Message(msg entities.Message) {
	if msg.Role == entities.RoleUser {
		fmt.Fprintf(r.out, "%s %s\n", userStyle.Render("you:"), msg.Content)
		return
	}

	name := msg.Name
	if name == "" {
		name = string(msg.Role)
	}
	style := r.prompts.Style(name)
	label := name + ":"
	if style.Emoji != "" {
		label = style.Emoji + " " + label
	}
	head := lipgloss.NewStyle().Foreground(lipgloss.Color(style.Color)).Bold(true).Render(label)

	content := msg.Content
	if msg.Role == entities.RoleTool {
		content = mutedStyle.Render(content)
	}
	fmt.Fprintf(r.out, "%s %s\n", head, content)
}

// Options prints the numbered path choices
func (r *Renderer) Options(options []string) {
	for i, opt := range options {
		fmt.Fprintf(r.out, "  %s %s\n", optionStyle.Render(fmt.Sprintf("[%d]", i+1)), opt)
	}
}

// Error prints a failure line
func (r *Renderer) Error(err error) {
	fmt.Fprintln(r.out, errorStyle.Render("error:"), err.Error())
}

// Tree prints an assembled tree as an indented outline
func (r *Renderer) Tree(tree *queries.TreeView) {
	fmt.Fprintln(r.out, titleStyle.Render(tree.Title))
	fmt.Fprintln(r.out, mutedStyle.Render(fmt.Sprintf("tree %s, %d nodes", tree.TreeID, tree.NodeCount)))
	if tree.Root != nil {
		r.node(tree.Root, 0)
	}
}

func (r *Renderer) node(node *queries.NodeView, depth int) {
	indent := strings.Repeat("  ", depth)
	content := node.Content
	if node.IsEnding {
		content += " " + mutedStyle.Render("(end)")
	}
	fmt.Fprintf(r.out, "%s%s\n", indent, content)
	for _, opt := range node.Options {
		fmt.Fprintf(r.out, "%s  %s %s\n", indent, optionStyle.Render("→"), opt.Text)
		if opt.NextNode != nil {
			r.node(opt.NextNode, depth+2)
		}
	}
}
