package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"branchpost/application/orchestrator"
	"branchpost/application/queries"
	"branchpost/domain/core/valueobjects"
	"branchpost/infrastructure/di"

	"github.com/google/uuid"
)

func runChat(ctx context.Context, in io.Reader, out io.Writer) error {
	container, cleanup, err := openContainer(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	session := &chatSession{
		container: container,
		render:    NewRenderer(out, container.Prompts),
		runID:     valueobjects.NewRunID(),
		sessionID: uuid.New().String(),
	}
	return session.loop(ctx, bufio.NewScanner(in), out)
}

type chatSession struct {
	container *di.Container
	render    *Renderer
	runID     valueobjects.RunID
	sessionID string
	seen      int
}

func (s *chatSession) loop(ctx context.Context, scanner *bufio.Scanner, out io.Writer) error {
	fmt.Fprintln(out, mutedStyle.Render("What should the post be about? (empty line or \"quit\" exits)"))

	var last *orchestrator.Outcome
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "quit" {
			return nil
		}

		var outcome *orchestrator.Outcome
		var err error
		if last != nil && last.WaitingForChoice {
			outcome, err = s.container.Orchestrator.ChoosePath(ctx, s.runID, resolveChoice(line, last.OfferedOptions))
		} else if last == nil {
			outcome, err = s.container.Orchestrator.Start(ctx, s.runID, s.sessionID, line)
		} else {
			outcome, err = s.container.Orchestrator.Send(ctx, s.runID, s.sessionID, line)
		}
		if err != nil {
			s.render.Error(err)
			continue
		}
		last = outcome

		if err := s.printTranscript(ctx); err != nil {
			return err
		}
		if outcome.WaitingForChoice {
			s.render.Options(outcome.OfferedOptions)
			continue
		}
		if !outcome.TreeID.IsZero() {
			return s.printTree(ctx, outcome.TreeID)
		}
	}
}

// printTranscript prints messages added since the last call
func (s *chatSession) printTranscript(ctx context.Context) error {
	state, err := s.container.Orchestrator.Get(ctx, s.runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	for _, msg := range state.Messages[s.seen:] {
		s.render.Message(msg)
	}
	s.seen = len(state.Messages)
	return nil
}

func (s *chatSession) printTree(ctx context.Context, treeID valueobjects.TreeID) error {
	result, err := s.container.QueryBus.Ask(ctx, queries.GetTreeQuery{TreeID: treeID.String()})
	if err != nil {
		return fmt.Errorf("load tree: %w", err)
	}
	tree, ok := result.(*queries.TreeView)
	if !ok {
		return fmt.Errorf("unexpected tree result %T", result)
	}
	s.render.Tree(tree)
	return nil
}

// resolveChoice maps a 1-based option number to its label. Anything else
// is passed through as the label itself.
func resolveChoice(input string, options []string) string {
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(options) {
		return options[n-1]
	}
	return input
}
