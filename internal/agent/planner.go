package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stride-agent/stride/internal/observability"
	"github.com/stride-agent/stride/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

// Planner produces the initial ordered plan for an objective. It asks
// the model to call propose_plan rather than free-form text so the
// step list comes back structured.
type Planner struct {
	Model    llms.Model
	Registry *tools.Registry
	Prompts  *PromptManager
	Logger   *observability.Logger
}

func NewPlanner(model llms.Model, registry *tools.Registry, prompts *PromptManager, logger *observability.Logger) *Planner {
	return &Planner{
		Model:    model,
		Registry: registry,
		Prompts:  prompts,
		Logger:   logger,
	}
}

func proposePlanTool() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        "propose_plan",
			Description: "Submit an ordered plan of steps that will accomplish the objective.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"steps": map[string]any{
						"type":        "array",
						"description": "Step descriptions in execution order. Each step must be self-contained.",
						"items": map[string]any{
							"type": "string",
						},
					},
				},
				"required": []string{"steps"},
			},
		},
	}
}

func (p *Planner) Plan(ctx context.Context, objective string) ([]string, error) {
	systemPrompt, err := p.Prompts.PlannerPrompt()
	if err != nil {
		return nil, fmt.Errorf("failed to load planner prompt: %w", err)
	}
	systemPrompt = fmt.Sprintf("%s\n\n## Available capabilities:\n%s", systemPrompt, toolDescriptions(p.Registry))

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(objective)},
		},
	}

	resp, err := p.Model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{proposePlanTool()}))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("planner model returned no choices")
	}
	choice := resp.Choices[0]
	if p.Logger != nil {
		p.Logger.LogLLM(chatIDFrom(ctx), objective, choice.Content, choice.ToolCalls)
	}

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name != "propose_plan" {
			continue
		}
		var args struct {
			Steps []string `json:"steps"`
		}
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
			return nil, fmt.Errorf("failed to parse propose_plan arguments: %w", err)
		}
		steps := trimSteps(args.Steps)
		if len(steps) == 0 {
			return nil, fmt.Errorf("planner proposed an empty plan")
		}
		if p.Logger != nil {
			p.Logger.LogPlan(chatIDFrom(ctx), steps)
		}
		return steps, nil
	}

	return nil, fmt.Errorf("planner produced no structured plan")
}

// trimSteps drops blank entries while preserving order.
func trimSteps(in []string) []string {
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// toolDescriptions renders the registry as a bulleted list for prompts.
func toolDescriptions(registry *tools.Registry) string {
	if registry == nil || len(registry.Tools) == 0 {
		return "- (no tools available)"
	}
	var descs []string
	for _, t := range registry.List() {
		descs = append(descs, fmt.Sprintf("- %s: %s", t.Name(), t.Description()))
	}
	return strings.Join(descs, "\n")
}

// chatIDFrom pulls the originating chat ID out of the context, if the
// host put one there.
func chatIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value("chatID").(string); ok {
		return id
	}
	return ""
}
