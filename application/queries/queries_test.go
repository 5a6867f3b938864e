package queries

import (
	"context"
	"testing"

	"branchpost/application/queries/bus"
	"branchpost/application/services"
	"branchpost/domain/config"
	"branchpost/infrastructure/persistence/memory"
	pkgerrors "branchpost/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedTree(t *testing.T, store *memory.TreeStore) *services.MaterializeResult {
	t.Helper()
	materializer := services.NewTreeMaterializer(store, config.DefaultDomainConfig(), nil, zap.NewNop(), nil, nil)
	result, err := materializer.Materialize(context.Background(), "s", map[string]interface{}{
		"title": "Coffee",
		"rootNode": map[string]interface{}{
			"content": "Start",
			"options": []interface{}{
				map[string]interface{}{"text": "Short", "nextNode": map[string]interface{}{"content": "Bye", "isEnding": true}},
			},
		},
	})
	require.NoError(t, err)
	return result
}

type countingCache struct {
	items map[string]interface{}
	hits  int
}

func (c *countingCache) Get(ctx context.Context, key string) (interface{}, bool) {
	v, ok := c.items[key]
	if ok {
		c.hits++
	}
	return v, ok
}

func (c *countingCache) Set(ctx context.Context, key string, value interface{}, ttl int) error {
	c.items[key] = value
	return nil
}

func TestGetTreeNestsNodesWithIdentities(t *testing.T) {
	store := memory.NewTreeStore()
	result := seedTree(t, store)

	handler := NewGetTreeHandler(services.NewTreeAssembler(store, zap.NewNop()), zap.NewNop())
	view, err := handler.Handle(context.Background(), GetTreeQuery{TreeID: result.TreeID.String()})
	require.NoError(t, err)

	assert.Equal(t, "Coffee", view.Title)
	assert.Equal(t, 2, view.NodeCount)
	require.NotNil(t, view.Root)
	assert.True(t, view.Root.IsRoot)
	require.Len(t, view.Root.Options, 1)
	child := view.Root.Options[0].NextNode
	require.NotNil(t, child)
	assert.Equal(t, "Bye", child.Content)
	assert.Equal(t, child.ID, view.Root.Options[0].Target)
}

func TestTreeQueryIsCachedThroughBus(t *testing.T) {
	store := memory.NewTreeStore()
	result := seedTree(t, store)

	handler := NewGetTreeHandler(services.NewTreeAssembler(store, zap.NewNop()), zap.NewNop())
	cache := &countingCache{items: map[string]interface{}{}}
	qb := bus.NewQueryBus()
	require.NoError(t, qb.Register(GetTreeQuery{}, bus.NewCachingMiddleware(cache, 60).Wrap(
		bus.QueryHandlerFunc(func(ctx context.Context, q bus.Query) (interface{}, error) {
			return handler.Handle(ctx, q.(GetTreeQuery))
		}),
	)))

	q := GetTreeQuery{TreeID: result.TreeID.String()}
	first, err := qb.Ask(context.Background(), q)
	require.NoError(t, err)
	second, err := qb.Ask(context.Background(), q)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.hits)

	_, err = qb.Ask(context.Background(), GetTreeQuery{TreeID: "missing"})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestGetNodeAndListTrees(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTreeStore()
	result := seedTree(t, store)
	seedTree(t, store)

	tree, err := services.NewTreeAssembler(store, zap.NewNop()).Reconstruct(ctx, result.TreeID)
	require.NoError(t, err)

	node, err := NewGetNodeHandler(store).Handle(ctx, GetNodeQuery{NodeID: tree.Root().ID().String()})
	require.NoError(t, err)
	assert.Equal(t, "Start", node.Content)
	assert.Len(t, node.Options, 1)
	assert.Nil(t, node.Options[0].NextNode)

	page, err := NewListTreesHandler(store).Handle(ctx, ListTreesQuery{Offset: 0, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Pagination.Total)
	assert.True(t, page.Pagination.HasNext)
	assert.Len(t, page.Items, 1)

	assert.True(t, pkgerrors.IsValidation(ListTreesQuery{Limit: 0}.Validate()))
	assert.True(t, pkgerrors.IsValidation(GetNodeQuery{NodeID: "x"}.Validate()))
}
