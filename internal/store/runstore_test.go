package store

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *RunStore {
	t.Helper()
	s, err := NewRunStore(filepath.Join(t.TempDir(), "stride.db"))
	if err != nil {
		t.Fatalf("NewRunStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewRunStore_BadPath(t *testing.T) {
	// A directory is not a usable database file; this must fail at
	// construction, not on the first write.
	if _, err := NewRunStore(t.TempDir()); err == nil {
		t.Fatal("expected an error for an unusable database path")
	}
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)

	runID, err := s.CreateRun("chat-1", "find the answer")
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	if err := s.AppendStep(runID, 0, "first step", "first result"); err != nil {
		t.Fatalf("AppendStep failed: %v", err)
	}
	if err := s.AppendStep(runID, 1, "second step", "second result"); err != nil {
		t.Fatalf("AppendStep failed: %v", err)
	}
	if err := s.CompleteRun(runID, "the answer"); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}

	run, err := s.GetRun(runID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != "completed" {
		t.Errorf("status = %q, want completed", run.Status)
	}
	if run.FinalResponse != "the answer" {
		t.Errorf("final response = %q", run.FinalResponse)
	}

	steps, err := s.GetRunSteps(runID)
	if err != nil {
		t.Fatalf("GetRunSteps failed: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[0].Step != "first step" || steps[1].Step != "second step" {
		t.Errorf("steps out of order: %+v", steps)
	}
}

func TestFailRun(t *testing.T) {
	s := newTestStore(t)

	runID, err := s.CreateRun("chat-1", "doomed objective")
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := s.FailRun(runID, "execution", "step could not be completed"); err != nil {
		t.Fatalf("FailRun failed: %v", err)
	}

	run, err := s.GetRun(runID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != "failed" {
		t.Errorf("status = %q, want failed", run.Status)
	}
	if run.Error == "" {
		t.Error("error text should be recorded")
	}
}

func TestObjectives(t *testing.T) {
	s := newTestStore(t)

	if err := s.AddObjective("chat-1", "check the weather", 3600); err != nil {
		t.Fatalf("AddObjective failed: %v", err)
	}

	due, err := s.GetDueObjectives()
	if err != nil {
		t.Fatalf("GetDueObjectives failed: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("got %d due objectives, want 1 (last_run is backdated on insert)", len(due))
	}

	if err := s.UpdateObjectiveLastRun(due[0].ID); err != nil {
		t.Fatalf("UpdateObjectiveLastRun failed: %v", err)
	}
	due, err = s.GetDueObjectives()
	if err != nil {
		t.Fatalf("GetDueObjectives failed: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("got %d due objectives after refresh, want 0", len(due))
	}

	if err := s.ClearObjectives("chat-1"); err != nil {
		t.Fatalf("ClearObjectives failed: %v", err)
	}
}
