package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/stride-agent/stride/internal/governance"
	"github.com/stride-agent/stride/internal/observability"
	"github.com/stride-agent/stride/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

// DefaultMaxToolRounds bounds the tool loop inside a single step.
const DefaultMaxToolRounds = 10

// Executor performs one plan step as an independent ReAct session:
// the model reasons, invokes registry tools, observes results, and
// closes with a text answer. Nothing carries over between steps.
type Executor struct {
	Model         llms.Model
	Registry      *tools.Registry
	Prompts       *PromptManager
	Policy        governance.PolicyEngine
	Logger        *observability.Logger
	MaxToolRounds int
}

func NewExecutor(model llms.Model, registry *tools.Registry, prompts *PromptManager, policy governance.PolicyEngine, logger *observability.Logger) *Executor {
	return &Executor{
		Model:    model,
		Registry: registry,
		Prompts:  prompts,
		Policy:   policy,
		Logger:   logger,
	}
}

func (e *Executor) maxToolRounds() int {
	if e.MaxToolRounds <= 0 {
		return DefaultMaxToolRounds
	}
	return e.MaxToolRounds
}

func (e *Executor) Execute(ctx context.Context, step string) (string, error) {
	chatID := chatIDFrom(ctx)

	systemPrompt, err := e.Prompts.ExecutorPrompt()
	if err != nil {
		return "", fmt.Errorf("failed to load executor prompt: %w", err)
	}

	var messages []llms.MessageContent
	if systemPrompt != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart("TASK: " + step)},
	})

	var llmTools []llms.Tool
	for _, t := range e.Registry.List() {
		llmTools = append(llmTools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}

	for round := 0; round < e.maxToolRounds(); round++ {
		resp, err := e.Model.GenerateContent(ctx, messages, llms.WithTools(llmTools))
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("executor model returned no choices")
		}
		choice := resp.Choices[0]
		if e.Logger != nil {
			e.Logger.LogLLM(chatID, step, choice.Content, choice.ToolCalls)
		}

		var assistantParts []llms.ContentPart
		if choice.Content != "" {
			assistantParts = append(assistantParts, llms.TextContent{Text: choice.Content})
		}
		for _, tc := range choice.ToolCalls {
			assistantParts = append(assistantParts, tc)
		}
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeAI,
			Parts: assistantParts,
		})

		if len(choice.ToolCalls) == 0 {
			if strings.TrimSpace(choice.Content) == "" {
				return "", fmt.Errorf("step produced no result")
			}
			return choice.Content, nil
		}

		for _, tc := range choice.ToolCalls {
			result := e.invokeTool(ctx, chatID, tc)
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: tc.ID,
						Name:       tc.FunctionCall.Name,
						Content:    result,
					},
				},
			})
		}
	}

	return "", fmt.Errorf("no actionable result after %d tool rounds", e.maxToolRounds())
}

// invokeTool runs one tool call through the governance gate. Failures
// are folded into the observation text so the model can route around
// them; only the orchestrator treats errors as fatal.
func (e *Executor) invokeTool(ctx context.Context, chatID string, tc llms.ToolCall) string {
	name := tc.FunctionCall.Name
	args := tc.FunctionCall.Arguments

	tool := e.Registry.Get(name)
	if tool == nil {
		return fmt.Sprintf("Error: tool %s not found", name)
	}

	if e.Policy != nil {
		verdict, err := e.Policy.Evaluate(ctx, governance.Request{
			Tool:      name,
			Arguments: args,
			ChatID:    chatID,
		})
		if err != nil {
			return fmt.Sprintf("Error: policy evaluation failed: %v", err)
		}
		if verdict.Effect == governance.EffectDeny {
			if e.Logger != nil {
				e.Logger.LogPolicyDenied(chatID, name, verdict.Reason)
			}
			return fmt.Sprintf("Denied by policy: %s", verdict.Reason)
		}
	}

	if e.Logger != nil {
		e.Logger.LogToolCall(chatID, name, args)
	}
	result, err := tool.Execute(ctx, args)
	if err != nil {
		result = fmt.Sprintf("Error: %v", err)
	}
	if e.Logger != nil {
		e.Logger.LogToolResult(chatID, name, result)
	}
	return result
}
