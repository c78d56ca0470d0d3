package orchestrator

import "fmt"

// Kind categorizes why a run aborted.
type Kind string

const (
	KindPlanning       Kind = "planning"
	KindExecution      Kind = "execution"
	KindReplanning     Kind = "replanning"
	KindIterationLimit Kind = "iteration_limit"
)

// Error is the structured failure returned by Run. It carries the
// run state as it stood when the run aborted so the host can inspect
// what had already been planned and executed.
type Error struct {
	Kind  Kind
	State Snapshot
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("orchestrator: %s", e.Kind)
	}
	return fmt.Sprintf("orchestrator: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
