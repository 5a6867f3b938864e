package services

import (
	"context"
	"strings"
	"testing"

	"branchpost/application/ports"
	"branchpost/domain/config"
	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	"branchpost/domain/events"
	"branchpost/infrastructure/persistence/memory"
	pkgerrors "branchpost/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingEvents struct {
	events []events.DomainEvent
}

func (r *recordingEvents) Publish(ctx context.Context, event events.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) PublishBatch(ctx context.Context, evts []events.DomainEvent) error {
	r.events = append(r.events, evts...)
	return nil
}

func (r *recordingEvents) statuses() []string {
	var out []string
	for _, e := range r.events {
		if sc, ok := e.(events.JobStatusChanged); ok {
			out = append(out, sc.Status)
		}
	}
	return out
}

func newLedger(pub *recordingEvents) *JobLedger {
	var publisher ports.EventPublisher
	if pub != nil {
		publisher = pub
	}
	return NewJobLedger(memory.NewJobStore(), publisher, config.DefaultDomainConfig(), zap.NewNop(), nil)
}

func TestLedgerLifecycle(t *testing.T) {
	ctx := context.Background()
	pub := &recordingEvents{}
	ledger := newLedger(pub)

	job, err := ledger.Create(ctx, "", "coffee", "session")
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusPending, job.Status())
	assert.NotEmpty(t, job.ID())

	_, err = ledger.MarkCompleted(ctx, job.ID(), valueobjects.NewTreeID())
	require.True(t, pkgerrors.IsConflict(err), "pending jobs cannot skip processing")

	_, err = ledger.MarkProcessing(ctx, job.ID())
	require.NoError(t, err)

	treeID := valueobjects.NewTreeID()
	done, err := ledger.MarkCompleted(ctx, job.ID(), treeID)
	require.NoError(t, err)
	assert.Equal(t, treeID, done.TreeID())
	assert.NotNil(t, done.StartedAt())
	assert.NotNil(t, done.CompletedAt())

	assert.Equal(t, []string{"processing", "completed"}, pub.statuses())
}

func TestLedgerTerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(nil)

	job, err := ledger.Create(ctx, valueobjects.NewJobID(), "coffee", "s")
	require.NoError(t, err)
	_, err = ledger.MarkProcessing(ctx, job.ID())
	require.NoError(t, err)
	_, err = ledger.MarkFailed(ctx, job.ID(), "boom")
	require.NoError(t, err)

	for _, status := range []entities.JobStatus{entities.JobStatusProcessing, entities.JobStatusCompleted, entities.JobStatusFailed} {
		_, err := ledger.Transition(ctx, job.ID(), status, TransitionDetails{TreeID: valueobjects.NewTreeID(), Error: "again"})
		require.True(t, pkgerrors.IsConflict(err), string(status))
		assert.Equal(t, pkgerrors.CodeInvalidTransition, pkgerrors.GetAppError(err).Code)
	}

	stored, err := ledger.Get(ctx, job.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusFailed, stored.Status())
	assert.Equal(t, "boom", stored.ErrorText())
	assert.True(t, stored.TreeID().IsZero())
}

func TestLedgerSanitizesErrorText(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(nil)

	job, err := ledger.Create(ctx, "", "coffee", "s")
	require.NoError(t, err)
	_, err = ledger.MarkProcessing(ctx, job.ID())
	require.NoError(t, err)

	long := "line one\nline two\t" + strings.Repeat("x", 5000)
	failed, err := ledger.MarkFailed(ctx, job.ID(), long)
	require.NoError(t, err)

	assert.LessOrEqual(t, len([]rune(failed.ErrorText())), config.DefaultDomainConfig().MaxJobErrorLength)
	assert.NotContains(t, failed.ErrorText(), "\n")
	assert.True(t, strings.HasPrefix(failed.ErrorText(), "line one line two"))
}

func TestLedgerUnknownJob(t *testing.T) {
	_, err := newLedger(nil).MarkProcessing(context.Background(), valueobjects.NewJobID())
	assert.True(t, pkgerrors.IsNotFound(err))
}
