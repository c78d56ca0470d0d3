package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stride-agent/stride/internal/observability"
	"github.com/stride-agent/stride/internal/orchestrator"
	"github.com/tmc/langchaingo/llms"
)

// Replanner revises the remaining plan after each executed step. The
// model answers with exactly one of two function calls: update_plan
// with the steps still to do, or final_response when the history
// already answers the objective. A plain text reply is accepted as a
// final response as well, since models finish that way in practice.
type Replanner struct {
	Model   llms.Model
	Prompts *PromptManager
	Logger  *observability.Logger
}

func NewReplanner(model llms.Model, prompts *PromptManager, logger *observability.Logger) *Replanner {
	return &Replanner{
		Model:   model,
		Prompts: prompts,
		Logger:  logger,
	}
}

func replanTools() []llms.Tool {
	return []llms.Tool{
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "update_plan",
				Description: "Replace the remaining plan. Include only steps that still need to be done; never repeat an already executed step.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"steps": map[string]any{
							"type":        "array",
							"description": "Remaining step descriptions in execution order.",
							"items":       map[string]any{"type": "string"},
						},
					},
					"required": []string{"steps"},
				},
			},
		},
		{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        "final_response",
				Description: "Finish the run. Use when the executed steps already contain everything needed to answer the objective.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"response": map[string]any{
							"type":        "string",
							"description": "The complete answer to the objective.",
						},
					},
					"required": []string{"response"},
				},
			},
		},
	}
}

func (r *Replanner) Replan(ctx context.Context, objective string, plan []string, history []orchestrator.StepRecord) (orchestrator.Decision, error) {
	systemPrompt, err := r.Prompts.ReplannerPrompt()
	if err != nil {
		return orchestrator.Decision{}, fmt.Errorf("failed to load replanner prompt: %w", err)
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(renderRunState(objective, plan, history))},
		},
	}

	resp, err := r.Model.GenerateContent(ctx, messages, llms.WithTools(replanTools()))
	if err != nil {
		return orchestrator.Decision{}, err
	}
	if len(resp.Choices) == 0 {
		return orchestrator.Decision{}, fmt.Errorf("replanner model returned no choices")
	}
	choice := resp.Choices[0]
	if r.Logger != nil {
		r.Logger.LogLLM(chatIDFrom(ctx), objective, choice.Content, choice.ToolCalls)
	}

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		switch tc.FunctionCall.Name {
		case "update_plan":
			var args struct {
				Steps []string `json:"steps"`
			}
			if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
				return orchestrator.Decision{}, fmt.Errorf("failed to parse update_plan arguments: %w", err)
			}
			steps := trimSteps(args.Steps)
			if r.Logger != nil {
				r.Logger.LogReplan(chatIDFrom(ctx), steps)
			}
			return orchestrator.UpdatedPlan(steps), nil
		case "final_response":
			var args struct {
				Response string `json:"response"`
			}
			if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
				return orchestrator.Decision{}, fmt.Errorf("failed to parse final_response arguments: %w", err)
			}
			if strings.TrimSpace(args.Response) == "" {
				return orchestrator.Decision{}, fmt.Errorf("replanner finalized with an empty response")
			}
			return orchestrator.FinalResponse(args.Response), nil
		}
	}

	if strings.TrimSpace(choice.Content) != "" {
		return orchestrator.FinalResponse(choice.Content), nil
	}

	return orchestrator.Decision{}, fmt.Errorf("replanner provided neither an updated plan nor a final response")
}

// renderRunState formats the run so far for the replanner model.
func renderRunState(objective string, plan []string, history []orchestrator.StepRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "OBJECTIVE:\n%s\n\n", objective)

	b.WriteString("CURRENT PLAN:\n")
	for i, step := range plan {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}

	b.WriteString("\nEXECUTED STEPS:\n")
	for i, rec := range history {
		fmt.Fprintf(&b, "%d. %s\n   Result: %s\n", i+1, rec.Step, rec.Result)
	}

	b.WriteString("\nUpdate the remaining plan, or finish with the final answer if the results above already cover the objective.")
	return b.String()
}
