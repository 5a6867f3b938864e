package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"branchpost/application/services"
	"branchpost/domain/config"
	"branchpost/domain/core/aggregates"
	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "branchpost.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrate())

	var version int
	require.NoError(t, db.conn.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version))
	assert.Equal(t, 3, version)
}

func TestTreeRollbackLeavesNothing(t *testing.T) {
	ctx := context.Background()
	store := NewTreeStore(openTestDB(t))

	tree, err := aggregates.NewPostTree("title", "session")
	require.NoError(t, err)

	txn, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.CreateTree(ctx, tree))
	node, err := entities.NewPostNode(tree.ID(), "root", true, true)
	require.NoError(t, err)
	_, err = txn.CreateNode(ctx, node)
	require.NoError(t, err)
	require.NoError(t, txn.Rollback(ctx))
	require.NoError(t, txn.Rollback(ctx))

	_, err = store.GetTree(ctx, tree.ID())
	assert.True(t, pkgerrors.IsNotFound(err))
	_, err = store.GetNode(ctx, node.ID())
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestMaterializedTreeRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := NewTreeStore(openTestDB(t))
	materializer := services.NewTreeMaterializer(store, config.DefaultDomainConfig(), nil, zap.NewNop(), nil, nil)

	payload := map[string]interface{}{
		"title": "T",
		"rootNode": map[string]interface{}{
			"content": "root",
			"options": []interface{}{
				map[string]interface{}{"text": "A", "nextNode": map[string]interface{}{"content": "leafA", "isEnding": true}},
				map[string]interface{}{"text": "B", "nextNode": map[string]interface{}{"content": "leafB", "isEnding": true}},
			},
		},
	}
	result, err := materializer.Materialize(ctx, "session", payload)
	require.NoError(t, err)

	tree, err := services.NewTreeAssembler(store, zap.NewNop()).Reconstruct(ctx, result.TreeID)
	require.NoError(t, err)
	assert.Equal(t, "T", tree.Title())
	require.Len(t, tree.Nodes(), 3)

	opts := tree.Root().Options()
	require.Len(t, opts, 2)
	assert.Equal(t, "A", opts[0].Text)
	assert.Equal(t, "B", opts[1].Text)

	leaf, err := store.GetNode(ctx, opts[1].Target)
	require.NoError(t, err)
	assert.Equal(t, "leafB", leaf.Content())
	assert.True(t, leaf.IsEnding())
	assert.Empty(t, leaf.Options())
}

func TestListTreesNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewTreeStore(openTestDB(t))

	var ids []valueobjects.TreeID
	for i, title := range []string{"first", "second", "third"} {
		tree := aggregates.ReconstructPostTree(valueobjects.NewTreeID(), title, "s",
			time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC))
		txn, err := store.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, txn.CreateTree(ctx, tree))
		require.NoError(t, txn.Commit(ctx))
		ids = append(ids, tree.ID())
	}

	page, total, err := store.ListTrees(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID())
	assert.Equal(t, ids[1], page[1].ID())

	rest, _, err := store.ListTrees(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "first", rest[0].Title())
}

func TestJobStoreCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(openTestDB(t))

	job, err := entities.NewGenerationJob(valueobjects.NewJobID(), "session", "coffee")
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, job))
	assert.True(t, pkgerrors.IsConflict(store.Create(ctx, job)))

	require.NoError(t, job.Start())
	require.NoError(t, store.Update(ctx, job, entities.JobStatusPending))

	stale, err := store.GetByID(ctx, job.ID())
	require.NoError(t, err)
	require.NoError(t, job.Complete(valueobjects.NewTreeID()))
	require.NoError(t, store.Update(ctx, job, entities.JobStatusProcessing))

	require.NoError(t, stale.Fail("late"))
	err = store.Update(ctx, stale, entities.JobStatusProcessing)
	require.Error(t, err)
	appErr := pkgerrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeInvalidTransition, appErr.Code)

	loaded, err := store.GetByID(ctx, job.ID())
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusCompleted, loaded.Status())
	assert.Equal(t, job.TreeID(), loaded.TreeID())
	assert.NotNil(t, loaded.StartedAt())
	assert.NotNil(t, loaded.CompletedAt())
	assert.Empty(t, loaded.ErrorText())

	_, err = store.GetByID(ctx, valueobjects.NewJobID())
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestCheckpointStoreUpserts(t *testing.T) {
	ctx := context.Background()
	store := NewCheckpointStore(openTestDB(t))

	state := entities.NewOrchestratorState(valueobjects.NewRunID(), "session")
	state.Append(entities.Message{Role: entities.RoleUser, Content: "coffee"})
	require.NoError(t, store.Save(ctx, state))

	state.Topic = "coffee"
	state.WaitingForChoice = true
	state.CurrentOptions = []string{"Quick", "Serious"}
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, state.RunID)
	require.NoError(t, err)
	assert.Equal(t, "coffee", loaded.Topic)
	assert.True(t, loaded.WaitingForChoice)
	assert.Equal(t, []string{"Quick", "Serious"}, loaded.CurrentOptions)
	require.Len(t, loaded.Messages, 1)

	_, err = store.Load(ctx, valueobjects.NewRunID())
	assert.True(t, pkgerrors.IsNotFound(err))
}
