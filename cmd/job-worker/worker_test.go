package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"branchpost/domain/core/valueobjects"
	domainevents "branchpost/domain/events"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, jobID valueobjects.JobID, topic, sessionID string) {
	m.Called(ctx, jobID, topic, sessionID)
}

func TestWorkerRunsRequestedJob(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, valueobjects.JobID("job-1"), "coffee", "s-1").Once()

	detail, err := json.Marshal(domainevents.NewJobRequested("job-1", "s-1", "coffee", time.Now()))
	require.NoError(t, err)

	err = NewWorker(runner, zap.NewNop()).Handle(context.Background(), events.CloudWatchEvent{
		ID:         "evt-1",
		DetailType: domainevents.TypeJobRequested,
		Detail:     detail,
	})
	require.NoError(t, err)
	runner.AssertExpectations(t)
}

func TestWorkerRejectsMalformedEvents(t *testing.T) {
	runner := &mockRunner{}
	worker := NewWorker(runner, zap.NewNop())

	err := worker.Handle(context.Background(), events.CloudWatchEvent{
		DetailType: domainevents.TypeJobRequested,
		Detail:     json.RawMessage(`{"topic":"coffee"}`),
	})
	assert.Error(t, err)

	err = worker.Handle(context.Background(), events.CloudWatchEvent{
		DetailType: domainevents.TypeJobStatusChanged,
		Detail:     json.RawMessage(`{}`),
	})
	assert.NoError(t, err, "other event types are ignored")

	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
