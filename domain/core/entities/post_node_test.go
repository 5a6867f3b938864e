package entities

import (
	"testing"

	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func persistedNode(t *testing.T, isEnding bool) *PostNode {
	t.Helper()
	n, err := NewPostNode("tree-1", "content", false, isEnding)
	require.NoError(t, err)
	require.NoError(t, n.AssignID(valueobjects.NewNodeID()))
	return n
}

func TestPostNodeIdentityIsImmutable(t *testing.T) {
	n := persistedNode(t, false)

	err := n.AssignID(valueobjects.NewNodeID())

	assert.True(t, pkgerrors.IsConflict(err))
}

func TestPostNodeAttachOptions(t *testing.T) {
	t.Run("attaches once in order", func(t *testing.T) {
		n := persistedNode(t, false)
		a, b := valueobjects.NewNodeID(), valueobjects.NewNodeID()

		require.NoError(t, n.AttachOptions([]Option{{Text: "A", Target: a}, {Text: "B", Target: b}}))

		opts := n.Options()
		require.Len(t, opts, 2)
		assert.Equal(t, "A", opts[0].Text)
		assert.True(t, opts[1].Target.Equals(b))

		err := n.AttachOptions([]Option{{Text: "C", Target: a}})
		assert.True(t, pkgerrors.IsConflict(err))
	})

	t.Run("ending nodes take no options", func(t *testing.T) {
		n := persistedNode(t, true)

		err := n.AttachOptions([]Option{{Text: "A", Target: valueobjects.NewNodeID()}})

		assert.True(t, pkgerrors.IsValidation(err))
		assert.Empty(t, n.Options())
	})

	t.Run("requires persisted targets", func(t *testing.T) {
		n := persistedNode(t, false)

		err := n.AttachOptions([]Option{{Text: "A"}})

		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("requires a persisted node", func(t *testing.T) {
		n, err := NewPostNode("tree-1", "content", true, false)
		require.NoError(t, err)

		err = n.AttachOptions(nil)

		assert.True(t, pkgerrors.IsValidation(err))
	})
}

func TestPostNodeDanglingLeaf(t *testing.T) {
	assert.True(t, persistedNode(t, false).IsDanglingLeaf())
	assert.False(t, persistedNode(t, true).IsDanglingLeaf())
}
