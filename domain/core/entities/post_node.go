package entities

import (
	"time"

	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"
)

// Option is a labeled edge from a node to one of its children.
type Option struct {
	Text   string              `json:"text"`
	Target valueobjects.NodeID `json:"target"`
}

// PostNode is one unit of content in a PostTree.
// A node is written once with an empty option sequence and receives its
// options exactly once, after all of its children exist.
type PostNode struct {
	id        valueobjects.NodeID
	treeID    valueobjects.TreeID
	content   string
	isRoot    bool
	isEnding  bool
	options   []Option
	attached  bool
	createdAt time.Time
}

// NewPostNode creates an unpersisted node. Its identity is assigned by the store.
func NewPostNode(treeID valueobjects.TreeID, content string, isRoot, isEnding bool) (*PostNode, error) {
	if treeID.IsZero() {
		return nil, pkgerrors.NewValidationError("node must belong to a tree")
	}
	if content == "" {
		return nil, pkgerrors.NewValidationError("node content cannot be empty")
	}

	return &PostNode{
		treeID:    treeID,
		content:   content,
		isRoot:    isRoot,
		isEnding:  isEnding,
		options:   []Option{},
		createdAt: time.Now().UTC(),
	}, nil
}

// ReconstructPostNode rebuilds a node from stored data
func ReconstructPostNode(
	id valueobjects.NodeID,
	treeID valueobjects.TreeID,
	content string,
	isRoot, isEnding bool,
	options []Option,
	createdAt time.Time,
) *PostNode {
	if options == nil {
		options = []Option{}
	}
	return &PostNode{
		id:        id,
		treeID:    treeID,
		content:   content,
		isRoot:    isRoot,
		isEnding:  isEnding,
		options:   options,
		attached:  len(options) > 0,
		createdAt: createdAt,
	}
}

// AssignID sets the node identity. Identities are immutable once assigned.
func (n *PostNode) AssignID(id valueobjects.NodeID) error {
	if id.IsZero() {
		return pkgerrors.NewValidationError("node identity cannot be empty")
	}
	if !n.id.IsZero() {
		return pkgerrors.NewConflictError("node identity already assigned").
			WithDetail("node_id", n.id.String())
	}
	n.id = id
	return nil
}

// AttachOptions finalizes the node's option sequence. Ending nodes never carry
// options and a sequence can only be attached once.
func (n *PostNode) AttachOptions(options []Option) error {
	if n.id.IsZero() {
		return pkgerrors.NewValidationError("options can only be attached to a persisted node")
	}
	if n.attached {
		return pkgerrors.NewConflictError("options already attached").
			WithDetail("node_id", n.id.String())
	}
	if n.isEnding && len(options) > 0 {
		return pkgerrors.NewValidationError("ending nodes cannot have options").
			WithDetail("node_id", n.id.String())
	}
	for _, opt := range options {
		if opt.Target.IsZero() {
			return pkgerrors.NewValidationError("option target must be an existing node").
				WithDetail("option", opt.Text)
		}
		if opt.Target.Equals(n.id) {
			return pkgerrors.NewValidationError("option cannot point at its own node").
				WithDetail("option", opt.Text)
		}
	}

	n.options = append([]Option(nil), options...)
	n.attached = true
	return nil
}

func (n *PostNode) ID() valueobjects.NodeID { return n.id }

func (n *PostNode) TreeID() valueobjects.TreeID { return n.treeID }

func (n *PostNode) Content() string { return n.content }

func (n *PostNode) IsRoot() bool { return n.isRoot }

func (n *PostNode) IsEnding() bool { return n.isEnding }

func (n *PostNode) CreatedAt() time.Time { return n.createdAt }

// Options returns a copy of the option sequence in presentation order
func (n *PostNode) Options() []Option {
	out := make([]Option, len(n.options))
	copy(out, n.options)
	return out
}

// IsDanglingLeaf reports a non-ending node without any options.
func (n *PostNode) IsDanglingLeaf() bool {
	return !n.isEnding && len(n.options) == 0
}
