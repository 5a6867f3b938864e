package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"branchpost/application/orchestrator"
	"branchpost/application/ports"
	"branchpost/domain/config"
	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	"branchpost/infrastructure/persistence/memory"
	pkgerrors "branchpost/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubGenerator struct {
	payload interface{}
	err     error
	panics  bool
	block   bool
	calls   int
}

func (g *stubGenerator) Generate(ctx context.Context, topic string) (interface{}, error) {
	g.calls++
	if g.panics {
		panic("generator exploded")
	}
	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return g.payload, g.err
}

// silentAgent never invokes an operation, so runs end without content.
type silentAgent struct{}

func (silentAgent) NextTurn(ctx context.Context, state *entities.OrchestratorState) (ports.AgentTurn, error) {
	return ports.AgentTurn{Reply: "no"}, nil
}

type beginFinalizeAgent struct{}

func (beginFinalizeAgent) NextTurn(ctx context.Context, state *entities.OrchestratorState) (ports.AgentTurn, error) {
	if state.Topic == "" {
		return ports.AgentTurn{Invocations: []entities.Invocation{{Operation: entities.OpBegin, Argument: "coffee"}}}, nil
	}
	return ports.AgentTurn{Invocations: []entities.Invocation{{Operation: entities.OpFinalize}}}, nil
}

type contentSupervisor struct {
	content interface{}
	err     error
}

func (s contentSupervisor) Delegate(ctx context.Context, task ports.SupervisorTask) (*ports.SupervisorResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ports.SupervisorResult{Content: s.content}, nil
}

type runnerFixture struct {
	trees  *memory.TreeStore
	ledger *JobLedger
	mat    *TreeMaterializer
}

func newRunnerFixture() *runnerFixture {
	trees := memory.NewTreeStore()
	return &runnerFixture{
		trees:  trees,
		ledger: NewJobLedger(memory.NewJobStore(), nil, config.DefaultDomainConfig(), zap.NewNop(), nil),
		mat:    newMaterializer(trees),
	}
}

func (f *runnerFixture) orchestrator(agent ports.FrontAgent, sup ports.Supervisor) *orchestrator.Orchestrator {
	return orchestrator.NewOrchestrator(agent, sup, memory.NewCheckpointStore(), memory.NewRunLocker(), f.mat,
		orchestrator.DefaultConfig(), zap.NewNop(), nil)
}

func (f *runnerFixture) runner(orch *orchestrator.Orchestrator, gen ports.ContentGenerator, timeout time.Duration) *JobRunner {
	return NewJobRunner(f.ledger, orch, gen, f.mat, timeout, zap.NewNop(), nil, nil)
}

func (f *runnerFixture) newJob(t *testing.T) *entities.GenerationJob {
	t.Helper()
	job, err := f.ledger.Create(context.Background(), "", "coffee", "session")
	require.NoError(t, err)
	return job
}

func TestRunnerDirectPathCompletes(t *testing.T) {
	f := newRunnerFixture()
	job := f.newJob(t)

	f.runner(nil, &stubGenerator{payload: scenarioPayload()}, time.Second).Run(context.Background(), job.ID(), job.Topic(), job.SessionID())

	stored, err := f.ledger.Get(context.Background(), job.ID())
	require.NoError(t, err)
	require.Equal(t, entities.JobStatusCompleted, stored.Status(), stored.ErrorText())
	assert.NotNil(t, stored.StartedAt())

	_, err = f.trees.GetTree(context.Background(), stored.TreeID())
	assert.NoError(t, err)
}

func TestRunnerGenerateErrorFailsJob(t *testing.T) {
	f := newRunnerFixture()
	job := f.newJob(t)

	f.runner(nil, &stubGenerator{err: errors.New("model unavailable")}, time.Second).Run(context.Background(), job.ID(), job.Topic(), job.SessionID())

	stored, err := f.ledger.Get(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusFailed, stored.Status())
	assert.Contains(t, stored.ErrorText(), "model unavailable")
	assert.True(t, stored.TreeID().IsZero())

	_, err = f.trees.GetTree(context.Background(), stored.TreeID())
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestRunnerInvalidPayloadFailsJob(t *testing.T) {
	f := newRunnerFixture()
	job := f.newJob(t)

	f.runner(nil, &stubGenerator{payload: map[string]interface{}{"title": "no root"}}, time.Second).Run(context.Background(), job.ID(), job.Topic(), job.SessionID())

	stored, err := f.ledger.Get(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusFailed, stored.Status())
	assert.Contains(t, stored.ErrorText(), "rootNode")
	assert.Equal(t, 0, f.trees.NodeCount())
}

func TestRunnerRecoversFromPanic(t *testing.T) {
	f := newRunnerFixture()
	job := f.newJob(t)

	assert.NotPanics(t, func() {
		f.runner(nil, &stubGenerator{panics: true}, time.Second).Run(context.Background(), job.ID(), job.Topic(), job.SessionID())
	})

	stored, err := f.ledger.Get(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusFailed, stored.Status())
	assert.Contains(t, stored.ErrorText(), "generator exploded")
}

func TestRunnerTimeoutFailsJob(t *testing.T) {
	f := newRunnerFixture()
	job := f.newJob(t)

	f.runner(nil, &stubGenerator{block: true}, 20*time.Millisecond).Run(context.Background(), job.ID(), job.Topic(), job.SessionID())

	stored, err := f.ledger.Get(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusFailed, stored.Status())
	assert.Contains(t, stored.ErrorText(), "timed out")
}

func TestRunnerOrchestratorPathPublishesTree(t *testing.T) {
	f := newRunnerFixture()
	job := f.newJob(t)
	gen := &stubGenerator{payload: scenarioPayload()}

	orch := f.orchestrator(beginFinalizeAgent{}, contentSupervisor{content: scenarioPayload()})
	f.runner(orch, gen, time.Second).Run(context.Background(), job.ID(), job.Topic(), job.SessionID())

	stored, err := f.ledger.Get(context.Background(), job.ID())
	require.NoError(t, err)
	require.Equal(t, entities.JobStatusCompleted, stored.Status(), stored.ErrorText())
	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, 3, f.trees.NodeCount())
}

func TestRunnerFallsBackWhenOrchestratorHasNoContent(t *testing.T) {
	f := newRunnerFixture()
	job := f.newJob(t)
	gen := &stubGenerator{payload: scenarioPayload()}

	f.runner(f.orchestrator(silentAgent{}, contentSupervisor{}), gen, time.Second).Run(context.Background(), job.ID(), job.Topic(), job.SessionID())

	stored, err := f.ledger.Get(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusCompleted, stored.Status())
	assert.Equal(t, 1, gen.calls)
}

func TestRunnerOrchestratorErrorFailsJob(t *testing.T) {
	f := newRunnerFixture()
	job := f.newJob(t)
	gen := &stubGenerator{payload: scenarioPayload()}

	orch := f.orchestrator(beginFinalizeAgent{}, contentSupervisor{err: errors.New("supervisor crashed")})
	f.runner(orch, gen, time.Second).Run(context.Background(), job.ID(), job.Topic(), job.SessionID())

	stored, err := f.ledger.Get(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusFailed, stored.Status())
	assert.Contains(t, stored.ErrorText(), "supervisor crashed")
	assert.Equal(t, 0, gen.calls)
}

func TestRunnerSkipsJobsItCannotStart(t *testing.T) {
	f := newRunnerFixture()
	job := f.newJob(t)
	_, err := f.ledger.MarkProcessing(context.Background(), job.ID())
	require.NoError(t, err)

	gen := &stubGenerator{payload: scenarioPayload()}
	f.runner(nil, gen, time.Second).Run(context.Background(), job.ID(), job.Topic(), job.SessionID())

	assert.Equal(t, 0, gen.calls)
	stored, err := f.ledger.Get(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusProcessing, stored.Status())
}

func TestInProcessDispatcherRunsAndCancels(t *testing.T) {
	f := newRunnerFixture()
	ctx := context.Background()

	done := f.newJob(t)
	blocked := f.newJob(t)

	d := NewInProcessDispatcher(f.runner(nil, &stubGenerator{payload: scenarioPayload()}, time.Minute), 2, zap.NewNop())
	require.NoError(t, d.Dispatch(ctx, done))

	blockingRunner := f.runner(nil, &stubGenerator{block: true}, time.Minute)
	bd := NewInProcessDispatcher(blockingRunner, 1, zap.NewNop())
	require.NoError(t, bd.Dispatch(ctx, blocked))

	require.Eventually(t, func() bool {
		job, err := f.ledger.Get(ctx, blocked.ID())
		return err == nil && job.Status() == entities.JobStatusProcessing
	}, time.Second, 5*time.Millisecond)
	assert.True(t, bd.Cancel(blocked.ID()))
	assert.False(t, bd.Cancel(valueobjects.NewJobID()))

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(shutdownCtx))
	require.NoError(t, bd.Shutdown(shutdownCtx))

	first, err := f.ledger.Get(ctx, done.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusCompleted, first.Status())

	second, err := f.ledger.Get(ctx, blocked.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusFailed, second.Status())
	assert.Contains(t, second.ErrorText(), ErrJobCancelled.Error())

	assert.True(t, pkgerrors.IsConflict(d.Dispatch(ctx, f.newJob(t))))
}

// lateCommitStore commits, then holds the caller until its deadline passes
type lateCommitStore struct {
	*memory.TreeStore
}

func (s lateCommitStore) Begin(ctx context.Context) (ports.TreeTransaction, error) {
	tx, err := s.TreeStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return lateCommitTx{tx}, nil
}

type lateCommitTx struct {
	ports.TreeTransaction
}

func (tx lateCommitTx) Commit(ctx context.Context) error {
	if err := tx.TreeTransaction.Commit(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func TestRunnerCompletesJobWhenDeadlinePassesAfterCommit(t *testing.T) {
	ctx := context.Background()
	f := newRunnerFixture()
	mat := NewTreeMaterializer(lateCommitStore{f.trees}, config.DefaultDomainConfig(), nil, zap.NewNop(), nil, nil)
	job := f.newJob(t)

	runner := NewJobRunner(f.ledger, nil, &stubGenerator{payload: scenarioPayload()}, mat, 20*time.Millisecond, zap.NewNop(), nil, nil)
	runner.Run(ctx, job.ID(), job.Topic(), job.SessionID())

	stored, err := f.ledger.Get(ctx, job.ID())
	require.NoError(t, err)
	require.Equal(t, entities.JobStatusCompleted, stored.Status(), stored.ErrorText())

	_, total, err := f.trees.ListTrees(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	_, err = f.trees.GetTree(ctx, stored.TreeID())
	assert.NoError(t, err)
}
