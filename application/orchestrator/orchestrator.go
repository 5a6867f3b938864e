// Package orchestrator drives the front agent through its operations and
// delegates generation work to the supervisor pipeline.
//
// A run moves through these phases:
//
//	Idle -> AwaitingAgentTurn           on a user message
//	AwaitingAgentTurn -> Done           agent replies without an operation
//	AwaitingAgentTurn -> Delegating     agent invokes begin, choosePath or finalize
//	Delegating -> AwaitingAgentTurn     after begin or choosePath
//	Delegating -> Completed             after finalize
//
// When the supervisor offers paths in interactive mode the run parks in
// AwaitingAgentTurn with WaitingForChoice set until ChoosePath is called.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"branchpost/application/ports"
	"branchpost/domain/core/entities"
	"branchpost/domain/core/valueobjects"
	pkgerrors "branchpost/pkg/errors"
	"branchpost/pkg/observability"

	"go.uber.org/zap"
)

// Outcome is the caller-visible result of one orchestrator call
type Outcome struct {
	RunID            valueobjects.RunID       `json:"run_id"`
	Phase            entities.RunPhase        `json:"phase"`
	Reply            string                   `json:"reply,omitempty"`
	WaitingForChoice bool                     `json:"waiting_for_choice"`
	OfferedOptions   []string                 `json:"offered_options,omitempty"`
	ChosenPath       string                   `json:"chosen_path,omitempty"`
	TreeID           valueobjects.TreeID      `json:"tree_id,omitempty"`
	FinalContent     *valueobjects.NestedPost `json:"-"`
	Steps            int                      `json:"steps"`
	MessageCount     int                      `json:"message_count"`
}

// Orchestrator runs the turn-taking state machine. Calls for the same run
// are serialized through the RunLocker; different runs share nothing but
// the checkpoint store.
type Orchestrator struct {
	agent       ports.FrontAgent
	supervisor  ports.Supervisor
	checkpoints ports.CheckpointStore
	locker      ports.RunLocker
	publisher   ports.TreePublisher
	cfg         Config
	logger      *zap.Logger
	metrics     *observability.Collector
}

// NewOrchestrator creates an orchestrator. publisher may be nil, in which
// case finalize requires an explicit tree id.
func NewOrchestrator(
	agent ports.FrontAgent,
	supervisor ports.Supervisor,
	checkpoints ports.CheckpointStore,
	locker ports.RunLocker,
	publisher ports.TreePublisher,
	cfg Config,
	logger *zap.Logger,
	metrics *observability.Collector,
) *Orchestrator {
	return &Orchestrator{
		agent:       agent,
		supervisor:  supervisor,
		checkpoints: checkpoints,
		locker:      locker,
		publisher:   publisher,
		cfg:         cfg.withDefaults(),
		logger:      logger,
		metrics:     metrics,
	}
}

// NonInteractive returns a copy that never suspends for a path choice
func (o *Orchestrator) NonInteractive() *Orchestrator {
	c := *o
	c.cfg.Interactive = false
	return &c
}

// Start opens a run with the caller's first message and drives it until it
// suspends or ends. An existing run with the same id is continued.
func (o *Orchestrator) Start(ctx context.Context, runID valueobjects.RunID, sessionID, message string) (*Outcome, error) {
	return o.send(ctx, runID, sessionID, message, true)
}

// Send appends a user message to an existing run and drives it until it
// suspends or ends. Unknown runs are NotFound.
func (o *Orchestrator) Send(ctx context.Context, runID valueobjects.RunID, sessionID, message string) (*Outcome, error) {
	return o.send(ctx, runID, sessionID, message, false)
}

func (o *Orchestrator) send(ctx context.Context, runID valueobjects.RunID, sessionID, message string, create bool) (*Outcome, error) {
	if message == "" {
		return nil, pkgerrors.NewValidationError("message cannot be empty")
	}

	return o.withRun(ctx, runID, sessionID, create, func(state *entities.OrchestratorState) error {
		if state.Phase.IsTerminal() {
			return pkgerrors.NewConflictError(fmt.Sprintf("run is %s", state.Phase)).
				WithCode(pkgerrors.CodeRunTerminal).
				WithDetail("run_id", runID.String())
		}
		state.Append(entities.Message{Role: entities.RoleUser, Content: message})
		o.setPhase(state, entities.PhaseAwaitingAgentTurn)
		return o.drive(ctx, state, nil)
	})
}

// ChoosePath resumes a suspended run with the caller's chosen branch
func (o *Orchestrator) ChoosePath(ctx context.Context, runID valueobjects.RunID, label string) (*Outcome, error) {
	return o.withRun(ctx, runID, "", false, func(state *entities.OrchestratorState) error {
		if state.Phase.IsTerminal() {
			return pkgerrors.NewConflictError(fmt.Sprintf("run is %s", state.Phase)).
				WithCode(pkgerrors.CodeRunTerminal).
				WithDetail("run_id", runID.String())
		}
		if !state.WaitingForChoice {
			return pkgerrors.NewConflictError("run is not waiting for a choice").
				WithCode(pkgerrors.CodeNotWaiting).
				WithDetail("run_id", runID.String())
		}
		if !state.IsOfferedOption(label) {
			return pkgerrors.NewValidationError(fmt.Sprintf("%q is not one of the offered options", label)).
				WithDetail("offered_options", state.CurrentOptions)
		}

		inv := entities.Invocation{Operation: entities.OpChoosePath, Argument: label}
		state.Append(entities.Message{Role: entities.RoleUser, Content: label, Invocation: &inv})
		return o.drive(ctx, state, &inv)
	})
}

// Run performs one non-suspending pass for a topic. It is what background
// jobs use.
func (o *Orchestrator) Run(ctx context.Context, runID valueobjects.RunID, sessionID, topic string) (*Outcome, error) {
	return o.NonInteractive().Start(ctx, runID, sessionID, topic)
}

// Get returns the checkpointed state of a run
func (o *Orchestrator) Get(ctx context.Context, runID valueobjects.RunID) (*entities.OrchestratorState, error) {
	return o.checkpoints.Load(ctx, runID)
}

func (o *Orchestrator) withRun(
	ctx context.Context,
	runID valueobjects.RunID,
	sessionID string,
	create bool,
	fn func(state *entities.OrchestratorState) error,
) (*Outcome, error) {
	unlock, err := o.locker.Lock(ctx, runID)
	if err != nil {
		return nil, pkgerrors.NewTimeoutError("acquire run lock").WithCause(err)
	}
	defer unlock()

	state, err := o.checkpoints.Load(ctx, runID)
	switch {
	case err == nil:
	case pkgerrors.IsNotFound(err) && create:
		state = entities.NewOrchestratorState(runID, sessionID)
	default:
		return nil, err
	}

	before := state.Phase
	runErr := fn(state)

	// Rejections of the call itself leave the checkpoint untouched.
	if runErr != nil && (before.IsTerminal() || !state.Phase.IsTerminal()) {
		return nil, runErr
	}
	// A cancelled caller must not lose the phase it ended in.
	if err := o.checkpoints.Save(context.WithoutCancel(ctx), state); err != nil {
		return nil, pkgerrors.Wrap(err, "save checkpoint")
	}
	o.metrics.RecordRunOutcome(string(state.Phase))
	if runErr != nil {
		return nil, runErr
	}
	return outcomeFrom(state), nil
}

// drive loops agent turns and delegations. pending, when set, is executed
// before the agent is asked for a turn.
func (o *Orchestrator) drive(ctx context.Context, state *entities.OrchestratorState, pending *entities.Invocation) error {
	for {
		if pending == nil {
			if err := o.step(state, "agent_turn"); err != nil {
				return o.fail(state, err)
			}

			turn, err := o.agent.NextTurn(ctx, state.Clone())
			if err != nil {
				return o.fail(state, pkgerrors.NewDelegationError("front agent", err))
			}
			if len(turn.Invocations) > 1 {
				return o.fail(state, pkgerrors.NewDelegationError("front agent",
					fmt.Errorf("invoked %d operations in one turn", len(turn.Invocations))).
					WithCode(pkgerrors.CodeParallelInvocation))
			}

			msg := entities.Message{Role: entities.RoleAgent, Name: o.cfg.AgentName, Content: turn.Reply}
			if len(turn.Invocations) == 1 {
				inv := turn.Invocations[0]
				msg.Invocation = &inv
				pending = &inv
			}
			if msg.Content != "" || msg.Invocation != nil {
				state.Append(msg)
			}

			if pending == nil {
				if state.WaitingForChoice {
					return nil
				}
				o.setPhase(state, entities.PhaseDone)
				return nil
			}
		}

		o.setPhase(state, entities.PhaseDelegatingToSupervisor)
		if err := o.apply(ctx, state, *pending); err != nil {
			return o.fail(state, err)
		}
		pending = nil

		if state.Phase == entities.PhaseCompleted {
			return nil
		}
		// The agent always gets the turn after a delegation. A run with
		// offered options suspends once that turn invokes nothing.
		o.setPhase(state, entities.PhaseAwaitingAgentTurn)
	}
}

func (o *Orchestrator) apply(ctx context.Context, state *entities.OrchestratorState, inv entities.Invocation) error {
	switch inv.Operation {
	case entities.OpBegin:
		if inv.Argument == "" {
			return pkgerrors.NewDelegationError("front agent", errors.New("begin requires a topic"))
		}
		state.Topic = inv.Argument
		state.ChosenPath = ""
		o.toolMessage(state, inv, "Starting post creation for topic: "+inv.Argument)
		return o.delegate(ctx, state)

	case entities.OpChoosePath:
		if state.Topic == "" {
			return pkgerrors.NewDelegationError("front agent", errors.New("choosePath before begin"))
		}
		if inv.Argument == "" {
			return pkgerrors.NewDelegationError("front agent", errors.New("choosePath requires a label"))
		}
		state.ChosenPath = inv.Argument
		state.WaitingForChoice = false
		state.CurrentOptions = nil
		o.toolMessage(state, inv, "User selected path: "+inv.Argument)
		return o.delegate(ctx, state)

	case entities.OpFinalize:
		treeID := valueobjects.TreeID(inv.Argument)
		if treeID.IsZero() {
			if state.FinalContent == nil || o.publisher == nil {
				return pkgerrors.NewDelegationError("front agent", errors.New("finalize without a tree or final content"))
			}
			published, err := o.publisher.Publish(ctx, state.SessionID, state.FinalContent)
			if err != nil {
				return err
			}
			treeID = published
		}
		state.TreeID = treeID
		o.toolMessage(state, inv, "Post generation finalized: "+treeID.String())
		o.setPhase(state, entities.PhaseCompleted)
		return nil

	default:
		return pkgerrors.NewDelegationError("front agent", fmt.Errorf("unknown operation %q", inv.Operation))
	}
}

func (o *Orchestrator) delegate(ctx context.Context, state *entities.OrchestratorState) error {
	if err := o.step(state, "delegation"); err != nil {
		return err
	}

	task := ports.SupervisorTask{
		RunID:             state.RunID,
		Topic:             state.Topic,
		ChosenPath:        state.ChosenPath,
		ResearchArtifacts: append([]string(nil), state.ResearchArtifacts...),
		Interactive:       o.cfg.Interactive,
	}
	if state.ChosenPath == "" {
		task.Description = render(o.cfg.BeginTemplate, "{topic}", state.Topic)
	} else {
		task.Description = render(o.cfg.ChoiceTemplate, "{topic}", state.Topic, "{path}", state.ChosenPath)
	}

	o.logger.Info("Delegating to supervisor",
		zap.String("run_id", state.RunID.String()),
		zap.String("topic", state.Topic),
		zap.String("chosen_path", state.ChosenPath),
		zap.Int("step", state.Steps),
	)

	result, err := o.supervisor.Delegate(ctx, task)
	if err != nil {
		return pkgerrors.NewDelegationError("supervisor", err)
	}
	if result == nil {
		result = &ports.SupervisorResult{}
	}

	for _, msg := range result.Messages {
		state.Append(msg)
	}
	state.ResearchArtifacts = append(state.ResearchArtifacts, result.ResearchArtifacts...)

	if result.Content != nil {
		post, err := valueobjects.DecodeNestedPost(result.Content)
		if err != nil {
			return err
		}
		state.FinalContent = post
	} else if o.cfg.Interactive && len(result.OfferedOptions) > 0 {
		state.CurrentOptions = append([]string(nil), result.OfferedOptions...)
		state.WaitingForChoice = true
	}

	state.Append(entities.Message{
		Role: entities.RoleSupervisor,
		Name: "supervisor",
		Content: render(o.cfg.SummaryTemplate,
			"{topic}", state.Topic,
			"{count}", strconv.Itoa(len(state.ResearchArtifacts)),
		),
	})
	return nil
}

func (o *Orchestrator) step(state *entities.OrchestratorState, kind string) error {
	state.Steps++
	o.metrics.RecordStep(kind)
	if state.Steps > o.cfg.StepBudget {
		return pkgerrors.NewBudgetExceededError(state.RunID.String(), o.cfg.StepBudget)
	}
	return nil
}

func (o *Orchestrator) fail(state *entities.OrchestratorState, err error) error {
	state.Failure = err.Error()
	o.setPhase(state, entities.PhaseFailed)
	o.logger.Warn("Orchestrator run failed",
		zap.String("run_id", state.RunID.String()),
		zap.Int("steps", state.Steps),
		zap.Error(err),
	)
	return err
}

func (o *Orchestrator) setPhase(state *entities.OrchestratorState, phase entities.RunPhase) {
	if state.Phase == phase {
		return
	}
	o.logger.Debug("Run phase changed",
		zap.String("run_id", state.RunID.String()),
		zap.String("from", string(state.Phase)),
		zap.String("to", string(phase)),
	)
	state.Phase = phase
}

func (o *Orchestrator) toolMessage(state *entities.OrchestratorState, inv entities.Invocation, content string) {
	state.Append(entities.Message{
		Role:    entities.RoleTool,
		Name:    string(inv.Operation),
		Content: content,
	})
}

func outcomeFrom(state *entities.OrchestratorState) *Outcome {
	out := &Outcome{
		RunID:            state.RunID,
		Phase:            state.Phase,
		WaitingForChoice: state.WaitingForChoice,
		OfferedOptions:   append([]string(nil), state.CurrentOptions...),
		ChosenPath:       state.ChosenPath,
		TreeID:           state.TreeID,
		FinalContent:     state.FinalContent,
		Steps:            state.Steps,
		MessageCount:     len(state.Messages),
	}
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == entities.RoleAgent && state.Messages[i].Content != "" {
			out.Reply = state.Messages[i].Content
			break
		}
	}
	return out
}
