package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Planner turns an objective into an ordered list of step descriptions.
// It must not depend on anything but the objective.
type Planner interface {
	Plan(ctx context.Context, objective string) ([]string, error)
}

// Executor performs a single step and returns its result. Each call is
// an independent session; it sees nothing from prior steps beyond what
// is in the step description itself.
type Executor interface {
	Execute(ctx context.Context, step string) (string, error)
}

// Replanner revises the remaining plan after every executed step, or
// declares the run finished.
type Replanner interface {
	Replan(ctx context.Context, objective string, plan []string, history []StepRecord) (Decision, error)
}

// Decision is the replanner's two-variant outcome: either an updated
// remaining plan or a final response. Construct it with UpdatedPlan or
// FinalResponse; the orchestrator is the only place that branches on it.
type Decision struct {
	steps    []string
	response string
	final    bool
}

// UpdatedPlan returns a decision carrying the new remaining steps.
func UpdatedPlan(steps []string) Decision {
	return Decision{steps: steps}
}

// FinalResponse returns a decision that terminates the run.
func FinalResponse(text string) Decision {
	return Decision{response: text, final: true}
}

func (d Decision) IsFinal() bool    { return d.final }
func (d Decision) Steps() []string  { return d.steps }
func (d Decision) Response() string { return d.response }

// DefaultMaxIterations bounds how many steps a run may execute before
// it is declared non-converging.
const DefaultMaxIterations = 15

// Config controls loop termination and per-call deadlines.
type Config struct {
	// MaxIterations is the maximum number of executed steps per run.
	// Zero means DefaultMaxIterations.
	MaxIterations int
	// CallTimeout bounds each planner/executor/replanner call.
	// Zero means no per-call deadline.
	CallTimeout time.Duration
}

func (c Config) maxIterations() int {
	if c.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return c.MaxIterations
}

// Orchestrator sequences planner, executor and replanner calls for a
// run. It holds no per-run state, so a single Orchestrator may serve
// any number of concurrent runs.
type Orchestrator struct {
	planner   Planner
	executor  Executor
	replanner Replanner
	config    Config
	observers []func(Snapshot)
}

func New(planner Planner, executor Executor, replanner Replanner, config Config) *Orchestrator {
	return &Orchestrator{
		planner:   planner,
		executor:  executor,
		replanner: replanner,
		config:    config,
	}
}

// Observe registers a callback invoked with a state snapshot on every
// transition, ending with the done or aborted snapshot. Register
// observers before calling Run; registration is not synchronized.
func (o *Orchestrator) Observe(fn func(Snapshot)) {
	o.observers = append(o.observers, fn)
}

func (o *Orchestrator) emit(snap Snapshot) {
	for _, fn := range o.observers {
		fn(snap)
	}
}

// Run solves the objective and returns the final response. On failure
// it returns an *Error carrying the stage kind and the run state at
// the moment of failure. There are no retries here; retry policy, if
// any, belongs to the capability implementations.
func (o *Orchestrator) Run(ctx context.Context, objective string) (string, error) {
	state := newRunState(objective)

	o.emit(state.snapshot(PhasePlanning))

	plan, err := o.callPlanner(ctx, objective)
	if err != nil {
		return "", o.abort(state, KindPlanning, err)
	}
	if len(plan) == 0 {
		return "", o.abort(state, KindPlanning, errors.New("planner returned no steps"))
	}
	state.Plan = append([]string(nil), plan...)

	maxIterations := o.config.maxIterations()

	for iteration := 0; ; iteration++ {
		if iteration >= maxIterations {
			return "", o.abort(state, KindIterationLimit,
				fmt.Errorf("no final response after %d steps", maxIterations))
		}
		if len(state.Plan) == 0 {
			// Guarded below: an empty updated plan never re-enters
			// this loop, so reaching here means a contract violation.
			return "", o.abort(state, KindReplanning, errors.New("no steps remain to execute"))
		}

		o.emit(state.snapshot(PhaseExecuting))

		step := state.Plan[0]
		result, err := o.callExecutor(ctx, step)
		if err != nil {
			return "", o.abort(state, KindExecution, fmt.Errorf("step %q: %w", step, err))
		}
		state.History = append(state.History, StepRecord{Step: step, Result: result})

		o.emit(state.snapshot(PhaseReplanning))

		decision, err := o.callReplanner(ctx, objective, state.Plan, state.History)
		if err != nil {
			return "", o.abort(state, KindReplanning, err)
		}

		if decision.IsFinal() {
			state.FinalResponse = decision.Response()
			state.Plan = nil
			o.emit(state.snapshot(PhaseDone))
			return state.FinalResponse, nil
		}

		steps := decision.Steps()
		if len(steps) == 0 {
			return "", o.abort(state, KindReplanning,
				errors.New("replanner returned an empty plan without a final response"))
		}
		state.Plan = append([]string(nil), steps...)
	}
}

func (o *Orchestrator) abort(state *runState, kind Kind, err error) error {
	snap := state.snapshot(PhaseAborted)
	o.emit(snap)
	return &Error{Kind: kind, State: snap, Err: err}
}

func (o *Orchestrator) callPlanner(ctx context.Context, objective string) ([]string, error) {
	ctx, cancel := o.callContext(ctx)
	defer cancel()
	return o.planner.Plan(ctx, objective)
}

func (o *Orchestrator) callExecutor(ctx context.Context, step string) (string, error) {
	ctx, cancel := o.callContext(ctx)
	defer cancel()
	return o.executor.Execute(ctx, step)
}

func (o *Orchestrator) callReplanner(ctx context.Context, objective string, plan []string, history []StepRecord) (Decision, error) {
	ctx, cancel := o.callContext(ctx)
	defer cancel()
	return o.replanner.Replan(ctx, objective, plan, history)
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.config.CallTimeout > 0 {
		return context.WithTimeout(ctx, o.config.CallTimeout)
	}
	return context.WithCancel(ctx)
}
