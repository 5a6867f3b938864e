package queries

import (
	"time"

	"branchpost/domain/core/aggregates"
	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	"branchpost/pkg/utils"
)

// GetJobQuery fetches the state of a generation job
type GetJobQuery struct {
	JobID string `validate:"required,uuid"`
}

// Validate validates the query
func (q GetJobQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// GetTreeQuery fetches a complete, assembled tree
type GetTreeQuery struct {
	TreeID string `validate:"required"`
}

// Validate validates the query
func (q GetTreeQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// CacheKey implements bus.CacheKeyer. Committed trees never change.
func (q GetTreeQuery) CacheKey() string {
	return "tree:" + q.TreeID
}

// GetNodeQuery fetches a single node
type GetNodeQuery struct {
	NodeID string `validate:"required,uuid"`
}

// Validate validates the query
func (q GetNodeQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// ListTreesQuery pages through tree summaries, newest first
type ListTreesQuery struct {
	Offset int `validate:"min=0"`
	Limit  int `validate:"min=1,max=100"`
}

// Validate validates the query
func (q ListTreesQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// GetRunQuery fetches the checkpointed state of an orchestrator run
type GetRunQuery struct {
	RunID string `validate:"required"`
}

// Validate validates the query
func (q GetRunQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// JobView is the caller-facing shape of a job
type JobView struct {
	JobID       string     `json:"job_id"`
	Status      string     `json:"status"`
	Topic       string     `json:"topic"`
	TreeID      string     `json:"tree_id,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewJobView converts a job entity
func NewJobView(job *entities.GenerationJob) *JobView {
	return &JobView{
		JobID:       job.ID().String(),
		Status:      string(job.Status()),
		Topic:       job.Topic(),
		TreeID:      job.TreeID().String(),
		Error:       job.ErrorText(),
		CreatedAt:   job.CreatedAt(),
		StartedAt:   job.StartedAt(),
		CompletedAt: job.CompletedAt(),
	}
}

// OptionView is one labeled edge of a node
type OptionView struct {
	Text     string    `json:"text"`
	Target   string    `json:"target"`
	NextNode *NodeView `json:"next_node,omitempty"`
}

// NodeView is one node, optionally with its subtree inlined
type NodeView struct {
	ID       string       `json:"id"`
	TreeID   string       `json:"tree_id"`
	Content  string       `json:"content"`
	IsRoot   bool         `json:"is_root"`
	IsEnding bool         `json:"is_ending"`
	Options  []OptionView `json:"options"`
}

// NewNodeView converts a node without descending into its children
func NewNodeView(node *entities.PostNode) *NodeView {
	view := &NodeView{
		ID:       node.ID().String(),
		TreeID:   node.TreeID().String(),
		Content:  node.Content(),
		IsRoot:   node.IsRoot(),
		IsEnding: node.IsEnding(),
		Options:  make([]OptionView, 0, len(node.Options())),
	}
	for _, opt := range node.Options() {
		view.Options = append(view.Options, OptionView{Text: opt.Text, Target: opt.Target.String()})
	}
	return view
}

// TreeView is a complete tree with identities, nested from the root
type TreeView struct {
	TreeID    string    `json:"tree_id"`
	Title     string    `json:"title"`
	SessionID string    `json:"session_id"`
	NodeCount int       `json:"node_count"`
	CreatedAt time.Time `json:"created_at"`
	Root      *NodeView `json:"root"`
}

// NewTreeView converts an assembled tree
func NewTreeView(tree *aggregates.PostTree) *TreeView {
	return &TreeView{
		TreeID:    tree.ID().String(),
		Title:     tree.Title(),
		SessionID: tree.SessionID(),
		NodeCount: len(tree.Nodes()),
		CreatedAt: tree.CreatedAt(),
		Root:      nestNode(tree, tree.Root()),
	}
}

func nestNode(tree *aggregates.PostTree, node *entities.PostNode) *NodeView {
	view := NewNodeView(node)
	for i, opt := range node.Options() {
		if child, ok := tree.Node(opt.Target); ok {
			view.Options[i].NextNode = nestNode(tree, child)
		}
	}
	return view
}

// TreeSummary is one entry of a tree listing
type TreeSummary struct {
	TreeID    string    `json:"tree_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTreeSummary converts a tree header
func NewTreeSummary(tree *aggregates.PostTree) TreeSummary {
	return TreeSummary{
		TreeID:    tree.ID().String(),
		Title:     tree.Title(),
		CreatedAt: tree.CreatedAt(),
	}
}

// RunView is the checkpointed state of a run as exposed to callers
type RunView struct {
	RunID            string             `json:"run_id"`
	Phase            string             `json:"phase"`
	Topic            string             `json:"topic,omitempty"`
	WaitingForChoice bool               `json:"waiting_for_choice"`
	OfferedOptions   []string           `json:"offered_options,omitempty"`
	ChosenPath       string             `json:"chosen_path,omitempty"`
	TreeID           string             `json:"tree_id,omitempty"`
	Steps            int                `json:"steps"`
	Failure          string             `json:"failure,omitempty"`
	Messages         []entities.Message `json:"messages"`
}

// NewRunView converts run state
func NewRunView(state *entities.OrchestratorState) *RunView {
	return &RunView{
		RunID:            state.RunID.String(),
		Phase:            string(state.Phase),
		Topic:            state.Topic,
		WaitingForChoice: state.WaitingForChoice,
		OfferedOptions:   state.CurrentOptions,
		ChosenPath:       state.ChosenPath,
		TreeID:           state.TreeID.String(),
		Steps:            state.Steps,
		Failure:          state.Failure,
		Messages:         state.Messages,
	}
}

func parseNodeID(s string) (valueobjects.NodeID, error) {
	return valueobjects.NewNodeIDFromString(s)
}
