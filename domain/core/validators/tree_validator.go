package validators

import (
	"fmt"
	"unicode/utf8"

	"branchpost/domain/config"
	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"
	"branchpost/pkg/utils"
)

// TreeStats summarizes a validated nested post.
type TreeStats struct {
	Nodes int
	Depth int
	// DanglingLeaves are paths of non-ending nodes that declare no options.
	DanglingLeaves []string
	// IgnoredOptions counts options declared on ending nodes.
	IgnoredOptions int
}

// TreeValidator enforces the structural rules of a nested post before any
// part of it is persisted.
type TreeValidator struct {
	cfg *config.DomainConfig
}

// NewTreeValidator creates a validator bound to the given limits
func NewTreeValidator(cfg *config.DomainConfig) *TreeValidator {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &TreeValidator{cfg: cfg}
}

// Validate walks the whole structure. A node value reached twice (shared or
// cyclic children) and any node or option carrying an identity are rejected.
func (v *TreeValidator) Validate(post *valueobjects.NestedPost) (*TreeStats, error) {
	if post == nil {
		return nil, pkgerrors.NewValidationError("payload is empty").WithCode(pkgerrors.CodeMalformedPayload)
	}
	if err := utils.ValidateStructExcept(post, "RootNode"); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(post.Title) > v.cfg.MaxTitleLength {
		return nil, fieldError("title", fmt.Sprintf("exceeds %d characters", v.cfg.MaxTitleLength))
	}
	if post.RootNode == nil {
		return nil, fieldError("rootNode", "is required")
	}

	w := &treeWalk{
		cfg:   v.cfg,
		seen:  make(map[*valueobjects.NestedNode]string),
		stats: &TreeStats{},
	}
	if err := w.node(post.RootNode, "rootNode", 1); err != nil {
		return nil, err
	}
	return w.stats, nil
}

type treeWalk struct {
	cfg   *config.DomainConfig
	seen  map[*valueobjects.NestedNode]string
	stats *TreeStats
}

func (w *treeWalk) node(n *valueobjects.NestedNode, path string, depth int) error {
	if first, ok := w.seen[n]; ok {
		return fieldError(path, fmt.Sprintf("is the same node as %s; every option needs its own child", first))
	}
	w.seen[n] = path

	if n.ID != "" {
		return fieldError(path+".id", fmt.Sprintf("references existing node %q; nodes must not carry identities", n.ID))
	}
	if depth > w.cfg.MaxTreeDepth {
		return fieldError(path, fmt.Sprintf("exceeds maximum depth of %d", w.cfg.MaxTreeDepth))
	}
	w.stats.Nodes++
	if w.stats.Nodes > w.cfg.MaxNodesPerTree {
		return fieldError(path, fmt.Sprintf("tree exceeds %d nodes", w.cfg.MaxNodesPerTree))
	}
	if depth > w.stats.Depth {
		w.stats.Depth = depth
	}

	if err := utils.ValidateStructExcept(n, "Options"); err != nil {
		return pkgerrors.Wrap(err, path)
	}
	if utf8.RuneCountInString(n.Content) > w.cfg.MaxContentLength {
		return fieldError(path+".content", fmt.Sprintf("exceeds %d characters", w.cfg.MaxContentLength))
	}

	if n.IsEnding {
		w.stats.IgnoredOptions += len(n.Options)
		return nil
	}

	if len(n.Options) == 0 {
		if !w.cfg.AllowDanglingLeaves {
			return fieldError(path+".options", "is required for non-ending nodes")
		}
		w.stats.DanglingLeaves = append(w.stats.DanglingLeaves, path)
		return nil
	}
	if len(n.Options) > w.cfg.MaxOptionsPerNode {
		return fieldError(path+".options", fmt.Sprintf("declares %d options, maximum is %d", len(n.Options), w.cfg.MaxOptionsPerNode))
	}

	for i := range n.Options {
		opt := &n.Options[i]
		optPath := fmt.Sprintf("%s.options[%d]", path, i)

		if opt.NextNodeID != "" {
			return fieldError(optPath+".nextNodeId", fmt.Sprintf("references existing node %q; options must point at inline nodes", opt.NextNodeID))
		}
		if err := utils.ValidateStructExcept(opt, "NextNode"); err != nil {
			return pkgerrors.Wrap(err, optPath)
		}
		if utf8.RuneCountInString(opt.Text) > w.cfg.MaxOptionTextLength {
			return fieldError(optPath+".text", fmt.Sprintf("exceeds %d characters", w.cfg.MaxOptionTextLength))
		}
		if opt.NextNode == nil {
			return fieldError(optPath+".nextNode", "is required")
		}
		if err := w.node(opt.NextNode, optPath+".nextNode", depth+1); err != nil {
			return err
		}
	}
	return nil
}

func fieldError(path, reason string) error {
	return pkgerrors.NewValidationError(path+" "+reason).
		WithCode(pkgerrors.CodeMalformedPayload).
		WithDetail("field", path)
}
