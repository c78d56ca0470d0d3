package agent

import (
	"context"
	"log"
	"time"

	"github.com/stride-agent/stride/internal/store"
)

// Messenger delivers scheduler output back to the originating chat.
type Messenger interface {
	Send(chatID string, text string) error
}

// ObjectiveStore is the slice of the store the scheduler polls.
type ObjectiveStore interface {
	GetDueObjectives() ([]store.Objective, error)
	UpdateObjectiveLastRun(id int64) error
	DeleteObjective(chatID string, id int64) error
}

// Scheduler re-runs stored recurring objectives through the solver.
type Scheduler struct {
	Runner  Runner
	Store   ObjectiveStore
	Gateway Messenger
}

func NewScheduler(runner Runner, store ObjectiveStore, gateway Messenger) *Scheduler {
	return &Scheduler{
		Runner:  runner,
		Store:   store,
		Gateway: gateway,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	log.Println("Objective scheduler started...")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollAndRun(ctx)
		}
	}
}

func (s *Scheduler) pollAndRun(ctx context.Context) {
	due, err := s.Store.GetDueObjectives()
	if err != nil {
		log.Printf("Error polling objectives: %v", err)
		return
	}

	for _, o := range due {
		log.Printf("Running scheduled objective %d for chat %s: %s", o.ID, o.ChatID, o.Objective)

		response, err := s.Runner.Solve(ctx, o.ChatID, o.Objective)
		if err != nil {
			log.Printf("Error running scheduled objective %d: %v", o.ID, err)
			continue
		}

		if err := s.Store.UpdateObjectiveLastRun(o.ID); err != nil {
			log.Printf("Error updating last run for objective %d: %v", o.ID, err)
		}

		// One-time objectives (interval 0) are removed after they run.
		if o.IntervalSeconds == 0 {
			if err := s.Store.DeleteObjective(o.ChatID, o.ID); err != nil {
				log.Printf("Error deleting one-time objective %d: %v", o.ID, err)
			}
		}

		if s.Gateway != nil {
			if err := s.Gateway.Send(o.ChatID, "⏰ *Scheduled Objective Result*\n\n"+response); err != nil {
				log.Printf("Error delivering scheduled result for chat %s: %v", o.ChatID, err)
			}
		}
	}
}
