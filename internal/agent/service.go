package agent

import (
	"context"
	"errors"
	"log"

	"github.com/stride-agent/stride/internal/observability"
	"github.com/stride-agent/stride/internal/orchestrator"
)

// Runner is what gateways and the scheduler hand objectives to.
type Runner interface {
	Solve(ctx context.Context, chatID, objective string) (string, error)
}

// RunStore is the slice of the store the solver persists runs through.
type RunStore interface {
	CreateRun(chatID, objective string) (int64, error)
	AppendStep(runID int64, position int, step, result string) error
	CompleteRun(runID int64, finalResponse string) error
	FailRun(runID int64, kind, message string) error
}

// Solver is the host around the orchestrator: it persists the run
// record and every executed step, keeps the live status and the event
// log fed, and returns the final response or the structured failure.
type Solver struct {
	Planner   orchestrator.Planner
	Executor  orchestrator.Executor
	Replanner orchestrator.Replanner
	Store     RunStore
	Logger    *observability.Logger
	Config    orchestrator.Config
}

func NewSolver(planner orchestrator.Planner, executor orchestrator.Executor, replanner orchestrator.Replanner, store RunStore, logger *observability.Logger, config orchestrator.Config) *Solver {
	return &Solver{
		Planner:   planner,
		Executor:  executor,
		Replanner: replanner,
		Store:     store,
		Logger:    logger,
		Config:    config,
	}
}

func (s *Solver) Solve(ctx context.Context, chatID, objective string) (string, error) {
	var runID int64
	if s.Store != nil {
		id, err := s.Store.CreateRun(chatID, objective)
		if err != nil {
			log.Printf("Warning: failed to record run: %v", err)
		} else {
			runID = id
		}
	}

	// Tools that need to know where the objective came from (like the
	// schedule tool) read the chat ID from the context.
	ctx = context.WithValue(ctx, "chatID", chatID)

	orch := orchestrator.New(s.Planner, s.Executor, s.Replanner, s.Config)

	persisted := 0
	orch.Observe(func(snap orchestrator.Snapshot) {
		switch snap.Phase {
		case orchestrator.PhasePlanning:
			observability.SetStatus(observability.StagePlanning, snap.Objective)
		case orchestrator.PhaseExecuting:
			step := ""
			if len(snap.Plan) > 0 {
				step = snap.Plan[0]
			}
			observability.SetStatus(observability.StageExecuting, step)
		case orchestrator.PhaseReplanning:
			observability.SetStatus(observability.StageReplanning, snap.Objective)
		default:
			observability.SetStatus(observability.StageIdle, "")
		}

		// Each transition adds at most one history entry; persist and
		// log whatever is new.
		for persisted < len(snap.History) {
			rec := snap.History[persisted]
			if s.Logger != nil {
				s.Logger.LogStep(chatID, rec.Step, rec.Result)
			}
			if s.Store != nil && runID != 0 {
				if err := s.Store.AppendStep(runID, persisted, rec.Step, rec.Result); err != nil {
					log.Printf("Warning: failed to record step: %v", err)
				}
			}
			persisted++
		}
	})

	answer, err := orch.Run(ctx, objective)
	observability.SetStatus(observability.StageIdle, "")

	if err != nil {
		kind := "unknown"
		var oerr *orchestrator.Error
		if errors.As(err, &oerr) {
			kind = string(oerr.Kind)
		}
		if s.Logger != nil {
			s.Logger.LogAbort(chatID, kind, err.Error())
		}
		if s.Store != nil && runID != 0 {
			if ferr := s.Store.FailRun(runID, kind, err.Error()); ferr != nil {
				log.Printf("Warning: failed to record run failure: %v", ferr)
			}
		}
		return "", err
	}

	if s.Logger != nil {
		s.Logger.LogFinal(chatID, answer)
	}
	if s.Store != nil && runID != 0 {
		if err := s.Store.CompleteRun(runID, answer); err != nil {
			log.Printf("Warning: failed to record run completion: %v", err)
		}
	}
	return answer, nil
}
