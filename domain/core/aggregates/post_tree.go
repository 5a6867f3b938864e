package aggregates

import (
	"fmt"
	"time"

	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	"branchpost/domain/events"
	pkgerrors "branchpost/pkg/errors"
)

// PostTree is the aggregate root for one branching post. It owns its nodes;
// nodes never outlive their tree.
type PostTree struct {
	id        valueobjects.TreeID
	title     string
	sessionID string
	createdAt time.Time

	// Populated by Assemble, in breadth-first order from the root.
	nodes []*entities.PostNode
	index map[string]*entities.PostNode
	root  *entities.PostNode

	events []events.DomainEvent
}

// NewPostTree creates a tree whose identity is known before any node exists
func NewPostTree(title, sessionID string) (*PostTree, error) {
	if title == "" {
		return nil, pkgerrors.NewValidationError("tree title cannot be empty")
	}
	return &PostTree{
		id:        valueobjects.NewTreeID(),
		title:     title,
		sessionID: sessionID,
		createdAt: time.Now().UTC(),
	}, nil
}

// ReconstructPostTree rebuilds the tree header from stored data. Call
// Assemble to attach its nodes.
func ReconstructPostTree(id valueobjects.TreeID, title, sessionID string, createdAt time.Time) *PostTree {
	return &PostTree{
		id:        id,
		title:     title,
		sessionID: sessionID,
		createdAt: createdAt,
	}
}

// Assemble resolves the loaded node set into a tree. Structural problems are
// reported as consistency errors and never repaired.
func (t *PostTree) Assemble(nodes []*entities.PostNode) error {
	index := make(map[string]*entities.PostNode, len(nodes))
	var roots []*entities.PostNode

	for _, n := range nodes {
		if n.TreeID() != t.id {
			return t.corrupt(fmt.Sprintf("node %s belongs to tree %s", n.ID(), n.TreeID()))
		}
		if _, dup := index[n.ID().String()]; dup {
			return t.corrupt(fmt.Sprintf("node %s appears twice", n.ID()))
		}
		index[n.ID().String()] = n
		if n.IsRoot() {
			roots = append(roots, n)
		}
	}

	switch len(roots) {
	case 0:
		return t.corrupt("tree has no root node")
	case 1:
	default:
		return t.corrupt(fmt.Sprintf("tree has %d root nodes", len(roots)))
	}

	inbound := make(map[string]int, len(nodes))
	for _, n := range nodes {
		opts := n.Options()
		if n.IsEnding() && len(opts) > 0 {
			return t.corrupt(fmt.Sprintf("ending node %s has %d options", n.ID(), len(opts)))
		}
		for _, opt := range opts {
			if _, ok := index[opt.Target.String()]; !ok {
				return t.corrupt(fmt.Sprintf("option %q of node %s points at missing node %s", opt.Text, n.ID(), opt.Target))
			}
			inbound[opt.Target.String()]++
		}
	}

	root := roots[0]
	if inbound[root.ID().String()] > 0 {
		return t.corrupt(fmt.Sprintf("root node %s is the target of an option", root.ID()))
	}
	for id, count := range inbound {
		if count > 1 {
			return t.corrupt(fmt.Sprintf("node %s is the target of %d options", id, count))
		}
	}

	ordered := make([]*entities.PostNode, 0, len(nodes))
	queue := []*entities.PostNode{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		ordered = append(ordered, n)
		for _, opt := range n.Options() {
			queue = append(queue, index[opt.Target.String()])
		}
	}
	if len(ordered) != len(nodes) {
		return t.corrupt(fmt.Sprintf("%d nodes are unreachable from the root", len(nodes)-len(ordered)))
	}

	t.nodes = ordered
	t.index = index
	t.root = root
	return nil
}

func (t *PostTree) corrupt(msg string) error {
	return pkgerrors.NewConsistencyError(t.id.String(), msg)
}

// MarkMaterialized records that the tree and its nodes were committed
func (t *PostTree) MarkMaterialized(nodeCount int) {
	t.events = append(t.events, events.NewTreeMaterialized(
		t.id.String(), t.sessionID, t.title, nodeCount, time.Now().UTC(),
	))
}

func (t *PostTree) ID() valueobjects.TreeID { return t.id }

func (t *PostTree) Title() string { return t.title }

func (t *PostTree) SessionID() string { return t.sessionID }

func (t *PostTree) CreatedAt() time.Time { return t.createdAt }

// Root returns the root node, or nil if the tree has not been assembled
func (t *PostTree) Root() *entities.PostNode { return t.root }

// Nodes returns the assembled nodes in breadth-first order
func (t *PostTree) Nodes() []*entities.PostNode { return t.nodes }

// Node looks up an assembled node by identity
func (t *PostTree) Node(id valueobjects.NodeID) (*entities.PostNode, bool) {
	n, ok := t.index[id.String()]
	return n, ok
}

// IsAssembled reports whether Assemble succeeded
func (t *PostTree) IsAssembled() bool { return t.root != nil }

// ToNestedPost converts an assembled tree back into its nested form.
// Identities are dropped.
func (t *PostTree) ToNestedPost() (*valueobjects.NestedPost, error) {
	if t.root == nil {
		return nil, pkgerrors.NewInternalError("tree is not assembled")
	}
	return &valueobjects.NestedPost{
		Title:    t.title,
		RootNode: t.nest(t.root),
	}, nil
}

func (t *PostTree) nest(n *entities.PostNode) *valueobjects.NestedNode {
	out := &valueobjects.NestedNode{
		Content:  n.Content(),
		IsEnding: n.IsEnding(),
	}
	for _, opt := range n.Options() {
		out.Options = append(out.Options, valueobjects.NestedOption{
			Text:     opt.Text,
			NextNode: t.nest(t.index[opt.Target.String()]),
		})
	}
	return out
}

// GetUncommittedEvents returns events raised since the tree was created
func (t *PostTree) GetUncommittedEvents() []events.DomainEvent {
	return t.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (t *PostTree) MarkEventsAsCommitted() {
	t.events = nil
}
