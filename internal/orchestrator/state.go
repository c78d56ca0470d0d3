package orchestrator

// Phase identifies where the state machine currently is.
type Phase string

const (
	PhasePlanning   Phase = "planning"
	PhaseExecuting  Phase = "executing"
	PhaseReplanning Phase = "replanning"
	PhaseDone       Phase = "done"
	PhaseAborted    Phase = "aborted"
)

// StepRecord is one executed step and what it produced.
type StepRecord struct {
	Step   string `json:"step"`
	Result string `json:"result"`
}

// runState is the mutable record threaded through a single run.
// Plan is replaced wholesale on every transition that changes it;
// History only ever grows; FinalResponse is set at most once.
type runState struct {
	Objective     string
	Plan          []string
	History       []StepRecord
	FinalResponse string
}

func newRunState(objective string) *runState {
	return &runState{Objective: objective}
}

// Snapshot is an immutable copy of the run state at one transition.
// Handing out copies keeps observers from racing the loop.
type Snapshot struct {
	Phase         Phase        `json:"phase"`
	Objective     string       `json:"objective"`
	Plan          []string     `json:"plan"`
	History       []StepRecord `json:"history"`
	FinalResponse string       `json:"final_response,omitempty"`
}

func (s *runState) snapshot(phase Phase) Snapshot {
	snap := Snapshot{
		Phase:         phase,
		Objective:     s.Objective,
		FinalResponse: s.FinalResponse,
	}
	if len(s.Plan) > 0 {
		snap.Plan = append([]string(nil), s.Plan...)
	}
	if len(s.History) > 0 {
		snap.History = append([]StepRecord(nil), s.History...)
	}
	return snap
}
