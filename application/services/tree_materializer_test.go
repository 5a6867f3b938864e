package services

import (
	"context"
	"testing"

	"branchpost/domain/config"
	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	"branchpost/infrastructure/persistence/memory"
	pkgerrors "branchpost/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMaterializer(store *memory.TreeStore) *TreeMaterializer {
	return NewTreeMaterializer(store, config.DefaultDomainConfig(), nil, zap.NewNop(), nil, nil)
}

func scenarioPayload() map[string]interface{} {
	return map[string]interface{}{
		"title": "T",
		"rootNode": map[string]interface{}{
			"content":  "root",
			"isEnding": false,
			"options": []interface{}{
				map[string]interface{}{"text": "A", "nextNode": map[string]interface{}{"content": "leafA", "isEnding": true}},
				map[string]interface{}{"text": "B", "nextNode": map[string]interface{}{"content": "leafB", "isEnding": true}},
			},
		},
	}
}

func TestMaterializeScenario(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTreeStore()

	result, err := newMaterializer(store).Materialize(ctx, "session", scenarioPayload())
	require.NoError(t, err)
	assert.Equal(t, 3, result.NodeCount)
	assert.Empty(t, result.DanglingLeaves)

	tree, err := NewTreeAssembler(store, zap.NewNop()).Reconstruct(ctx, result.TreeID)
	require.NoError(t, err)
	require.Len(t, tree.Nodes(), 3)

	root := tree.Root()
	assert.True(t, root.IsRoot())
	opts := root.Options()
	require.Len(t, opts, 2)
	assert.NotEqual(t, opts[0].Target, opts[1].Target)

	for i, want := range []string{"leafA", "leafB"} {
		leaf, ok := tree.Node(opts[i].Target)
		require.True(t, ok)
		assert.Equal(t, want, leaf.Content())
		assert.True(t, leaf.IsEnding())
		assert.Empty(t, leaf.Options())
	}
}

func TestMaterializeRoundTripIsIsomorphic(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTreeStore()

	input := &valueobjects.NestedPost{
		Title: "Deep",
		RootNode: &valueobjects.NestedNode{
			Content: "r",
			Options: []valueobjects.NestedOption{
				{Text: "x", NextNode: &valueobjects.NestedNode{
					Content: "x1",
					Options: []valueobjects.NestedOption{
						{Text: "y", NextNode: &valueobjects.NestedNode{Content: "y1", IsEnding: true}},
						{Text: "z", NextNode: &valueobjects.NestedNode{Content: "z1", IsEnding: true}},
					},
				}},
				{Text: "w", NextNode: &valueobjects.NestedNode{Content: "w1", IsEnding: true}},
			},
		},
	}

	result, err := newMaterializer(store).Materialize(ctx, "s", input)
	require.NoError(t, err)

	tree, err := NewTreeAssembler(store, zap.NewNop()).Reconstruct(ctx, result.TreeID)
	require.NoError(t, err)
	output, err := tree.ToNestedPost()
	require.NoError(t, err)
	assert.Equal(t, input, output)
}

func TestEndingFlagWinsOverOptions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTreeStore()

	payload := map[string]interface{}{
		"title": "T",
		"rootNode": map[string]interface{}{
			"content":  "root",
			"isEnding": true,
			"options": []interface{}{
				map[string]interface{}{"text": "A", "nextNode": map[string]interface{}{"content": "never"}},
			},
		},
	}

	result, err := newMaterializer(store).Materialize(ctx, "s", payload)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NodeCount)
	assert.Equal(t, 1, result.IgnoredOptions)

	tree, err := NewTreeAssembler(store, zap.NewNop()).Reconstruct(ctx, result.TreeID)
	require.NoError(t, err)
	assert.Empty(t, tree.Root().Options())
	assert.Equal(t, 1, store.NodeCount())
}

func TestReferencesAreRejectedWithoutPartialWrites(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		payload interface{}
	}{
		{
			name: "forward reference by id",
			payload: map[string]interface{}{
				"title": "T",
				"rootNode": map[string]interface{}{
					"content": "root",
					"options": []interface{}{
						map[string]interface{}{"text": "A", "nextNodeId": "3f1c2b8e-0000-4000-8000-000000000000"},
					},
				},
			},
		},
		{
			name: "scalar next node",
			payload: map[string]interface{}{
				"title": "T",
				"rootNode": map[string]interface{}{
					"content": "root",
					"options": []interface{}{
						map[string]interface{}{"text": "A", "nextNode": "root"},
					},
				},
			},
		},
		{
			name: "typed next node id",
			payload: &valueobjects.NestedPost{
				Title: "T",
				RootNode: &valueobjects.NestedNode{
					Content: "root",
					Options: []valueobjects.NestedOption{{Text: "A", NextNodeID: "self"}},
				},
			},
		},
		{
			name: "missing content deep in the tree",
			payload: map[string]interface{}{
				"title": "T",
				"rootNode": map[string]interface{}{
					"content": "root",
					"options": []interface{}{
						map[string]interface{}{"text": "A", "nextNode": map[string]interface{}{"isEnding": true}},
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewTreeStore()
			_, err := newMaterializer(store).Materialize(ctx, "s", tt.payload)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
			assert.Equal(t, 0, store.NodeCount())

			_, total, err := store.ListTrees(ctx, 0, 10)
			require.NoError(t, err)
			assert.Equal(t, 0, total)
		})
	}
}

func TestSharedChildIsRejected(t *testing.T) {
	shared := &valueobjects.NestedNode{Content: "shared", IsEnding: true}
	post := &valueobjects.NestedPost{
		Title: "T",
		RootNode: &valueobjects.NestedNode{
			Content: "root",
			Options: []valueobjects.NestedOption{
				{Text: "A", NextNode: shared},
				{Text: "B", NextNode: shared},
			},
		},
	}

	store := memory.NewTreeStore()
	_, err := newMaterializer(store).Materialize(context.Background(), "s", post)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Equal(t, 0, store.NodeCount())
}

func TestDanglingLeavesArePersistedAndReported(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTreeStore()

	payload := map[string]interface{}{
		"title": "T",
		"rootNode": map[string]interface{}{
			"content": "root",
			"options": []interface{}{
				map[string]interface{}{"text": "A", "nextNode": map[string]interface{}{"content": "open end"}},
			},
		},
	}

	result, err := newMaterializer(store).Materialize(ctx, "s", payload)
	require.NoError(t, err)
	require.Len(t, result.DanglingLeaves, 1)

	node, err := store.GetNode(ctx, result.DanglingLeaves[0])
	require.NoError(t, err)
	assert.True(t, node.IsDanglingLeaf())
}

func TestReconstructReportsCorruption(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTreeStore()

	result, err := newMaterializer(store).Materialize(ctx, "s", scenarioPayload())
	require.NoError(t, err)

	// A second root written straight through a transaction breaks the tree.
	tree, err := store.GetTree(ctx, result.TreeID)
	require.NoError(t, err)
	txn, err := store.Begin(ctx)
	require.NoError(t, err)
	extra, err := entities.NewPostNode(tree.ID(), "second root", true, true)
	require.NoError(t, err)
	_, err = txn.CreateNode(ctx, extra)
	require.NoError(t, err)
	require.NoError(t, txn.Commit(ctx))

	_, err = NewTreeAssembler(store, zap.NewNop()).Reconstruct(ctx, result.TreeID)
	require.True(t, pkgerrors.IsConsistency(err))
	assert.Equal(t, pkgerrors.CodeCorruptTree, pkgerrors.GetAppError(err).Code)
}

func TestReconstructUnknownTree(t *testing.T) {
	_, err := NewTreeAssembler(memory.NewTreeStore(), zap.NewNop()).Reconstruct(context.Background(), valueobjects.NewTreeID())
	assert.True(t, pkgerrors.IsNotFound(err))
}
