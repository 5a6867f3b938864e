package agents

import (
	"context"
	"testing"

	"branchpost/application/orchestrator"
	"branchpost/application/ports"
	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	"branchpost/infrastructure/generation"
	"branchpost/infrastructure/persistence/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedPublisher struct {
	calls int
}

func (p *fixedPublisher) Publish(ctx context.Context, sessionID string, content *valueobjects.NestedPost) (valueobjects.TreeID, error) {
	p.calls++
	return valueobjects.TreeID("published"), nil
}

func newPipeline() *SupervisorPipeline {
	gen := generation.NewTemplateGenerator([]string{"Funny", "Serious"})
	return NewSupervisorPipeline(
		NewTemplateResearcher([]string{"facts about {topic}", "questions about {topic}"}),
		NewGeneratorCopywriter(gen, []string{"Funny", "Serious"}),
		zap.NewNop(),
	)
}

func TestFrontAgentBeginsWithUserTopic(t *testing.T) {
	state := entities.NewOrchestratorState(valueobjects.NewRunID(), "s")
	state.Append(entities.Message{Role: entities.RoleUser, Content: "  remote work  "})

	turn, err := NewRuleBasedFrontAgent().NextTurn(context.Background(), state)
	require.NoError(t, err)
	require.Len(t, turn.Invocations, 1)
	assert.Equal(t, entities.OpBegin, turn.Invocations[0].Operation)
	assert.Equal(t, "remote work", turn.Invocations[0].Argument)
}

func TestFrontAgentMatchesChoiceByLabelOrNumber(t *testing.T) {
	agent := NewRuleBasedFrontAgent()
	for input, want := range map[string]string{"serious": "Serious", "1": "Funny"} {
		state := entities.NewOrchestratorState(valueobjects.NewRunID(), "s")
		state.Topic = "coffee"
		state.WaitingForChoice = true
		state.CurrentOptions = []string{"Funny", "Serious"}
		state.Append(entities.Message{Role: entities.RoleUser, Content: input})

		turn, err := agent.NextTurn(context.Background(), state)
		require.NoError(t, err)
		require.Len(t, turn.Invocations, 1, input)
		assert.Equal(t, entities.OpChoosePath, turn.Invocations[0].Operation)
		assert.Equal(t, want, turn.Invocations[0].Argument)
	}
}

func TestFrontAgentRepromptsOnUnknownChoice(t *testing.T) {
	state := entities.NewOrchestratorState(valueobjects.NewRunID(), "s")
	state.Topic = "coffee"
	state.WaitingForChoice = true
	state.CurrentOptions = []string{"Funny", "Serious"}
	state.Append(entities.Message{Role: entities.RoleUser, Content: "sarcastic"})

	turn, err := NewRuleBasedFrontAgent().NextTurn(context.Background(), state)
	require.NoError(t, err)
	assert.Empty(t, turn.Invocations)
	assert.Contains(t, turn.Reply, "2. Serious")
}

func TestSupervisorOffersThenWrites(t *testing.T) {
	ctx := context.Background()
	sup := newPipeline()

	first, err := sup.Delegate(ctx, ports.SupervisorTask{Topic: "coffee", Interactive: true})
	require.NoError(t, err)
	assert.Nil(t, first.Content)
	assert.Equal(t, []string{"Funny", "Serious"}, first.OfferedOptions)
	assert.Equal(t, []string{"facts about coffee", "questions about coffee"}, first.ResearchArtifacts)

	second, err := sup.Delegate(ctx, ports.SupervisorTask{
		Topic:             "coffee",
		ChosenPath:        "Funny",
		Interactive:       true,
		ResearchArtifacts: first.ResearchArtifacts,
	})
	require.NoError(t, err)
	assert.Empty(t, second.ResearchArtifacts)
	post, err := valueobjects.DecodeNestedPost(second.Content)
	require.NoError(t, err)
	assert.Contains(t, post.Title, "Funny")
}

func TestInteractiveRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	pub := &fixedPublisher{}
	orch := orchestrator.NewOrchestrator(
		NewRuleBasedFrontAgent(), newPipeline(),
		memory.NewCheckpointStore(), memory.NewRunLocker(), pub,
		orchestrator.DefaultConfig(), zap.NewNop(), nil,
	)
	runID := valueobjects.NewRunID()

	out, err := orch.Start(ctx, runID, "s", "coffee")
	require.NoError(t, err)
	require.True(t, out.WaitingForChoice)
	assert.Equal(t, []string{"Funny", "Serious"}, out.OfferedOptions)

	out, err = orch.Send(ctx, runID, "s", "2")
	require.NoError(t, err)
	assert.Equal(t, entities.PhaseCompleted, out.Phase)
	assert.Equal(t, valueobjects.TreeID("published"), out.TreeID)
	assert.Equal(t, "Serious", out.ChosenPath)
	assert.Equal(t, 1, pub.calls)
}

func TestNonInteractiveRunFinalizesWithoutChoice(t *testing.T) {
	pub := &fixedPublisher{}
	orch := orchestrator.NewOrchestrator(
		NewRuleBasedFrontAgent(), newPipeline(),
		memory.NewCheckpointStore(), memory.NewRunLocker(), pub,
		orchestrator.DefaultConfig(), zap.NewNop(), nil,
	)

	out, err := orch.Run(context.Background(), valueobjects.NewRunID(), "s", "coffee")
	require.NoError(t, err)
	assert.Equal(t, entities.PhaseCompleted, out.Phase)
	assert.False(t, out.WaitingForChoice)
	assert.Equal(t, 1, pub.calls)
	assert.LessOrEqual(t, out.Steps, orchestrator.DefaultStepBudget)
}
