package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakePlanner struct {
	steps []string
	err   error
	calls int
}

func (p *fakePlanner) Plan(ctx context.Context, objective string) ([]string, error) {
	p.calls++
	return p.steps, p.err
}

type fakeExecutor struct {
	fn    func(step string) (string, error)
	steps []string
}

func (e *fakeExecutor) Execute(ctx context.Context, step string) (string, error) {
	e.steps = append(e.steps, step)
	if e.fn != nil {
		return e.fn(step)
	}
	return "done: " + step, nil
}

type fakeReplanner struct {
	fn    func(plan []string, history []StepRecord) (Decision, error)
	calls int
}

func (r *fakeReplanner) Replan(ctx context.Context, objective string, plan []string, history []StepRecord) (Decision, error) {
	r.calls++
	return r.fn(plan, history)
}

func TestRun_AustralianOpenScenario(t *testing.T) {
	// Planner proposes 3 steps; the first result reveals two singles
	// winners, so the replanner expands the remaining work to 4 steps.
	planner := &fakePlanner{steps: []string{
		"find the 2024 Australian Open winner",
		"find the winner's hometown",
		"answer the question",
	}}

	executor := &fakeExecutor{fn: func(step string) (string, error) {
		switch {
		case strings.Contains(step, "find the 2024 Australian Open winner"):
			return "Jannik Sinner won the men's singles; Aryna Sabalenka won the women's singles", nil
		case strings.Contains(step, "Sinner"):
			return "Jannik Sinner grew up in Innichen (San Candido), Italy", nil
		case strings.Contains(step, "Sabalenka"):
			return "Aryna Sabalenka is from Minsk, Belarus", nil
		default:
			return "both hometowns are known", nil
		}
	}}

	final := "The 2024 Australian Open singles winners were Jannik Sinner, from Innichen (San Candido), Italy, and Aryna Sabalenka, from Minsk, Belarus."
	replanner := &fakeReplanner{fn: func(plan []string, history []StepRecord) (Decision, error) {
		switch len(history) {
		case 1:
			return UpdatedPlan([]string{
				"find Jannik Sinner's hometown",
				"find Aryna Sabalenka's hometown",
				"combine the two hometowns",
				"answer the question",
			}), nil
		case 2:
			return UpdatedPlan([]string{
				"find Aryna Sabalenka's hometown",
				"combine the two hometowns",
			}), nil
		case 3:
			return UpdatedPlan([]string{"combine the two hometowns"}), nil
		default:
			return FinalResponse(final), nil
		}
	}}

	var snapshots []Snapshot
	orch := New(planner, executor, replanner, Config{})
	orch.Observe(func(s Snapshot) { snapshots = append(snapshots, s) })

	got, err := orch.Run(context.Background(), "what is the hometown of the 2024 Australia Open winner?")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got != final {
		t.Errorf("final response = %q, want %q", got, final)
	}
	if planner.calls != 1 {
		t.Errorf("planner called %d times, want 1", planner.calls)
	}
	if len(executor.steps) != 4 {
		t.Fatalf("executed %d steps, want 4: %v", len(executor.steps), executor.steps)
	}

	last := snapshots[len(snapshots)-1]
	if last.Phase != PhaseDone {
		t.Errorf("last snapshot phase = %s, want %s", last.Phase, PhaseDone)
	}
	if len(last.History) != 4 {
		t.Fatalf("history has %d entries, want 4", len(last.History))
	}
	for i, rec := range last.History {
		if rec.Step != executor.steps[i] {
			t.Errorf("history[%d].Step = %q, want %q (order must be preserved)", i, rec.Step, executor.steps[i])
		}
	}
}

func TestRun_ExecutorFailureOnFirstStep(t *testing.T) {
	planner := &fakePlanner{steps: []string{"step one", "step two"}}
	executor := &fakeExecutor{fn: func(step string) (string, error) {
		return "", errors.New("tool invocation exhausted retries")
	}}
	replanner := &fakeReplanner{fn: func(plan []string, history []StepRecord) (Decision, error) {
		t.Fatal("replanner must not be called when execution fails")
		return Decision{}, nil
	}}

	orch := New(planner, executor, replanner, Config{})
	_, err := orch.Run(context.Background(), "objective")
	if err == nil {
		t.Fatal("expected an error")
	}

	var oerr *Error
	if !errors.As(err, &oerr) {
		t.Fatalf("error is %T, want *Error", err)
	}
	if oerr.Kind != KindExecution {
		t.Errorf("kind = %s, want %s", oerr.Kind, KindExecution)
	}
	if len(oerr.State.History) != 0 {
		t.Errorf("history has %d entries, want 0", len(oerr.State.History))
	}
	if len(oerr.State.Plan) != 2 || oerr.State.Plan[0] != "step one" {
		t.Errorf("plan at failure = %v, want the planner's output unchanged", oerr.State.Plan)
	}
}

func TestRun_IterationLimit(t *testing.T) {
	planner := &fakePlanner{steps: []string{"spin"}}
	executor := &fakeExecutor{}
	// Never finalizes: always hands back one more step.
	replanner := &fakeReplanner{fn: func(plan []string, history []StepRecord) (Decision, error) {
		return UpdatedPlan([]string{"spin again"}), nil
	}}

	orch := New(planner, executor, replanner, Config{MaxIterations: 5})
	_, err := orch.Run(context.Background(), "never converge")

	var oerr *Error
	if !errors.As(err, &oerr) {
		t.Fatalf("error is %T, want *Error", err)
	}
	if oerr.Kind != KindIterationLimit {
		t.Errorf("kind = %s, want %s", oerr.Kind, KindIterationLimit)
	}
	if len(executor.steps) != 5 {
		t.Errorf("executed %d steps, want exactly 5", len(executor.steps))
	}
	if len(oerr.State.History) != 5 {
		t.Errorf("history has %d entries, want 5", len(oerr.State.History))
	}
}

func TestRun_EmptyUpdatedPlanIsReplanError(t *testing.T) {
	planner := &fakePlanner{steps: []string{"only step"}}
	executor := &fakeExecutor{}
	replanner := &fakeReplanner{fn: func(plan []string, history []StepRecord) (Decision, error) {
		return UpdatedPlan(nil), nil
	}}

	orch := New(planner, executor, replanner, Config{})
	_, err := orch.Run(context.Background(), "objective")

	var oerr *Error
	if !errors.As(err, &oerr) {
		t.Fatalf("error is %T, want *Error", err)
	}
	if oerr.Kind != KindReplanning {
		t.Errorf("kind = %s, want %s", oerr.Kind, KindReplanning)
	}
	if len(oerr.State.History) != 1 {
		t.Errorf("history has %d entries, want 1 (the executed step is preserved)", len(oerr.State.History))
	}
}

func TestRun_NoCallsAfterFinal(t *testing.T) {
	planner := &fakePlanner{steps: []string{"a", "b", "c"}}
	executor := &fakeExecutor{}
	replanner := &fakeReplanner{fn: func(plan []string, history []StepRecord) (Decision, error) {
		return FinalResponse("answered early"), nil
	}}

	orch := New(planner, executor, replanner, Config{})
	got, err := orch.Run(context.Background(), "objective")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got != "answered early" {
		t.Errorf("final response = %q", got)
	}
	if len(executor.steps) != 1 {
		t.Errorf("executed %d steps after finalization, want 1 total", len(executor.steps))
	}
	if planner.calls != 1 {
		t.Errorf("planner called %d times, want 1", planner.calls)
	}
	if replanner.calls != 1 {
		t.Errorf("replanner called %d times, want 1", replanner.calls)
	}
}

func TestRun_PlannerFailures(t *testing.T) {
	cases := []struct {
		name    string
		planner *fakePlanner
	}{
		{"planner error", &fakePlanner{err: errors.New("malformed plan output")}},
		{"empty plan", &fakePlanner{steps: nil}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orch := New(tc.planner, &fakeExecutor{}, &fakeReplanner{fn: nil}, Config{})
			_, err := orch.Run(context.Background(), "objective")
			var oerr *Error
			if !errors.As(err, &oerr) {
				t.Fatalf("error is %T, want *Error", err)
			}
			if oerr.Kind != KindPlanning {
				t.Errorf("kind = %s, want %s", oerr.Kind, KindPlanning)
			}
		})
	}
}

func TestRun_SnapshotsAreCopies(t *testing.T) {
	planner := &fakePlanner{steps: []string{"a", "b"}}
	executor := &fakeExecutor{}
	replanner := &fakeReplanner{fn: func(plan []string, history []StepRecord) (Decision, error) {
		if len(history) < 2 {
			return UpdatedPlan([]string{"b"}), nil
		}
		return FinalResponse("done"), nil
	}}

	var phases []Phase
	orch := New(planner, executor, replanner, Config{})
	orch.Observe(func(s Snapshot) {
		phases = append(phases, s.Phase)
		// Scribbling on a snapshot must not corrupt the run.
		for i := range s.Plan {
			s.Plan[i] = "mutated"
		}
		for i := range s.History {
			s.History[i].Result = "mutated"
		}
	})

	if _, err := orch.Run(context.Background(), "objective"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []Phase{
		PhasePlanning,
		PhaseExecuting, PhaseReplanning,
		PhaseExecuting, PhaseReplanning,
		PhaseDone,
	}
	if len(phases) != len(want) {
		t.Fatalf("saw phases %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("saw phases %v, want %v", phases, want)
		}
	}
	if executor.steps[1] != "b" {
		t.Errorf("second executed step = %q; snapshot mutation leaked into the plan", executor.steps[1])
	}
}

func TestRun_CallTimeout(t *testing.T) {
	planner := &fakePlanner{steps: []string{"slow step"}}
	replanner := &fakeReplanner{fn: func(plan []string, history []StepRecord) (Decision, error) {
		return FinalResponse("unreachable"), nil
	}}

	orch := New(planner, &blockingExecutor{}, replanner, Config{CallTimeout: 20 * time.Millisecond})
	_, err := orch.Run(context.Background(), "objective")

	var oerr *Error
	if !errors.As(err, &oerr) {
		t.Fatalf("error is %T, want *Error", err)
	}
	if oerr.Kind != KindExecution {
		t.Errorf("kind = %s, want %s (timeout maps onto the failing stage)", oerr.Kind, KindExecution)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error chain does not contain context.DeadlineExceeded: %v", err)
	}
}

type blockingExecutor struct{}

func (b *blockingExecutor) Execute(ctx context.Context, step string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// Stateless fakes for the concurrency test so the test itself is race-free.
type statelessPlanner struct{}

func (statelessPlanner) Plan(ctx context.Context, objective string) ([]string, error) {
	return []string{"solo step for " + objective}, nil
}

type statelessExecutor struct{}

func (statelessExecutor) Execute(ctx context.Context, step string) (string, error) {
	return "result of " + step, nil
}

type statelessReplanner struct{}

func (statelessReplanner) Replan(ctx context.Context, objective string, plan []string, history []StepRecord) (Decision, error) {
	return FinalResponse("answer for " + objective), nil
}

func TestRun_IndependentRunsShareNothing(t *testing.T) {
	orch := New(statelessPlanner{}, statelessExecutor{}, statelessReplanner{}, Config{})

	var wg sync.WaitGroup
	results := make([]string, 8)
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = orch.Run(context.Background(), fmt.Sprintf("objective %d", i))
		}(i)
	}
	wg.Wait()

	for i := range errs {
		if errs[i] != nil {
			t.Errorf("run %d failed: %v", i, errs[i])
			continue
		}
		want := fmt.Sprintf("answer for objective %d", i)
		if results[i] != want {
			t.Errorf("run %d answer = %q, want %q", i, results[i], want)
		}
	}
}
