package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// ObjectiveStore is the slice of the run store the schedule tool
// writes through.
type ObjectiveStore interface {
	AddObjective(chatID, objective string, intervalSeconds int) error
	ClearObjectives(chatID string) error
}

// ScheduleTool lets a run register follow-up objectives: recurring
// ones with an interval, or one-shot ones picked up on the next
// scheduler tick.
type ScheduleTool struct {
	Store ObjectiveStore
}

func NewScheduleTool(store ObjectiveStore) *ScheduleTool {
	return &ScheduleTool{Store: store}
}

func (c *ScheduleTool) Name() string {
	return "schedule"
}

func (c *ScheduleTool) Description() string {
	return "Manage future objectives: 'recurring' (repeat every interval), 'once' (run a single time later), or 'clear' all scheduled objectives."
}

func (c *ScheduleTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"recurring", "once", "clear"},
				"description": "The action to perform.",
			},
			"objective": map[string]any{
				"type":        "string",
				"description": "The objective to run later (for 'recurring' and 'once')",
			},
			"interval_seconds": map[string]any{
				"type":        "integer",
				"description": "The repeat interval in seconds (minimum 60, only for 'recurring')",
			},
		},
		"required": []string{"action"},
	}
}

func (c *ScheduleTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Action    string `json:"action"`
		Objective string `json:"objective"`
		Interval  int    `json:"interval_seconds"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	chatID, ok := ctx.Value("chatID").(string)
	if !ok {
		return "", fmt.Errorf("missing chatID in context")
	}

	switch args.Action {
	case "clear":
		if err := c.Store.ClearObjectives(chatID); err != nil {
			return "", fmt.Errorf("failed to clear objectives: %v", err)
		}
		return "Successfully cleared all scheduled objectives.", nil

	case "recurring":
		if args.Interval < 60 {
			return "Error: minimum interval is 60 seconds.", nil
		}
		if err := c.Store.AddObjective(chatID, args.Objective, args.Interval); err != nil {
			return "", fmt.Errorf("failed to schedule objective: %v", err)
		}
		return fmt.Sprintf("Scheduled recurring objective: '%s' every %d seconds.", args.Objective, args.Interval), nil

	case "once":
		if err := c.Store.AddObjective(chatID, args.Objective, 0); err != nil {
			return "", fmt.Errorf("failed to schedule objective: %v", err)
		}
		return fmt.Sprintf("Scheduled one-time objective: '%s'.", args.Objective), nil

	default:
		return "Invalid action. Use 'recurring', 'once' or 'clear'.", nil
	}
}
