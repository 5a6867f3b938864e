package handlers

import (
	"context"
	"errors"
	"testing"

	"branchpost/application/commands"
	"branchpost/application/services"
	"branchpost/domain/config"
	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	"branchpost/infrastructure/persistence/memory"
	pkgerrors "branchpost/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, job *entities.GenerationJob) error {
	return m.Called(ctx, job).Error(0)
}

func (m *mockDispatcher) Cancel(id valueobjects.JobID) bool {
	return m.Called(id).Bool(0)
}

func newLedger() *services.JobLedger {
	return services.NewJobLedger(memory.NewJobStore(), nil, config.DefaultDomainConfig(), zap.NewNop(), nil)
}

func TestCreateGenerationJob(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatches the pending job", func(t *testing.T) {
		ledger := newLedger()
		dispatcher := &mockDispatcher{}
		dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(job *entities.GenerationJob) bool {
			return job.Topic() == "coffee" && job.Status() == entities.JobStatusPending
		})).Return(nil).Once()

		cmd := commands.CreateGenerationJobCommand{JobID: valueobjects.NewJobID().String(), SessionID: "s", Topic: "  coffee "}
		require.NoError(t, cmd.Validate())
		require.NoError(t, NewCreateGenerationJobHandler(ledger, dispatcher, zap.NewNop()).Handle(ctx, cmd))

		job, err := ledger.Get(ctx, cmd.ID())
		require.NoError(t, err)
		assert.Equal(t, entities.JobStatusPending, job.Status())
		dispatcher.AssertExpectations(t)
	})

	t.Run("dispatch failure fails the job", func(t *testing.T) {
		ledger := newLedger()
		dispatcher := &mockDispatcher{}
		dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(errors.New("bus unavailable"))

		cmd := commands.CreateGenerationJobCommand{JobID: valueobjects.NewJobID().String(), SessionID: "s", Topic: "coffee"}
		err := NewCreateGenerationJobHandler(ledger, dispatcher, zap.NewNop()).Handle(ctx, cmd)
		require.Error(t, err)

		job, err := ledger.Get(ctx, cmd.ID())
		require.NoError(t, err)
		assert.Equal(t, entities.JobStatusFailed, job.Status())
		assert.Contains(t, job.ErrorText(), "bus unavailable")
	})
}

// failingFailStore rejects writes of failed jobs
type failingFailStore struct {
	*memory.JobStore
}

func (s failingFailStore) Update(ctx context.Context, job *entities.GenerationJob, expected entities.JobStatus) error {
	if job.Status() == entities.JobStatusFailed {
		return pkgerrors.NewDatabaseError("update job", errors.New("disk full"))
	}
	return s.JobStore.Update(ctx, job, expected)
}

func TestDispatchFailureThatCannotBeRecordedIsLogged(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.ErrorLevel)
	ledger := services.NewJobLedger(failingFailStore{memory.NewJobStore()}, nil, config.DefaultDomainConfig(), zap.NewNop(), nil)
	dispatcher := &mockDispatcher{}
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(errors.New("bus unavailable"))

	cmd := commands.CreateGenerationJobCommand{JobID: valueobjects.NewJobID().String(), SessionID: "s", Topic: "coffee"}
	err := NewCreateGenerationJobHandler(ledger, dispatcher, zap.New(core)).Handle(ctx, cmd)
	require.Error(t, err)

	entries := logs.FilterMessage("Failed to record dispatch failure").All()
	require.Len(t, entries, 1)
	assert.Equal(t, cmd.JobID, entries[0].ContextMap()["job_id"])
}

func TestCreateGenerationJobValidation(t *testing.T) {
	tests := []struct {
		name string
		cmd  commands.CreateGenerationJobCommand
	}{
		{"blank topic", commands.CreateGenerationJobCommand{JobID: valueobjects.NewJobID().String(), SessionID: "s", Topic: "   "}},
		{"bad job id", commands.CreateGenerationJobCommand{JobID: "nope", SessionID: "s", Topic: "coffee"}},
		{"missing session", commands.CreateGenerationJobCommand{JobID: valueobjects.NewJobID().String(), Topic: "coffee"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, pkgerrors.IsValidation(tt.cmd.Validate()))
		})
	}
}

func TestCancelJob(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger()
	dispatcher := &mockDispatcher{}
	handler := NewCancelJobHandler(ledger, dispatcher, zap.NewNop())

	running, err := ledger.Create(ctx, "", "coffee", "s")
	require.NoError(t, err)
	dispatcher.On("Cancel", running.ID()).Return(true).Once()
	require.NoError(t, handler.Handle(ctx, commands.CancelJobCommand{JobID: running.ID().String()}))

	elsewhere, err := ledger.Create(ctx, "", "tea", "s")
	require.NoError(t, err)
	dispatcher.On("Cancel", elsewhere.ID()).Return(false).Once()
	assert.True(t, pkgerrors.IsConflict(handler.Handle(ctx, commands.CancelJobCommand{JobID: elsewhere.ID().String()})))

	finished, err := ledger.Create(ctx, "", "cake", "s")
	require.NoError(t, err)
	_, err = ledger.MarkProcessing(ctx, finished.ID())
	require.NoError(t, err)
	_, err = ledger.MarkFailed(ctx, finished.ID(), "boom")
	require.NoError(t, err)
	assert.True(t, pkgerrors.IsConflict(handler.Handle(ctx, commands.CancelJobCommand{JobID: finished.ID().String()})))

	err = handler.Handle(ctx, commands.CancelJobCommand{JobID: valueobjects.NewJobID().String()})
	assert.True(t, pkgerrors.IsNotFound(err))

	dispatcher.AssertExpectations(t)
}
