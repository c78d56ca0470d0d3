package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stride-agent/stride/internal/governance"
	"github.com/stride-agent/stride/internal/tools"
	"github.com/tmc/langchaingo/llms"
)

type fakeTool struct {
	name   string
	result string
	err    error
	inputs []string
}

func (t *fakeTool) Name() string               { return t.name }
func (t *fakeTool) Description() string        { return "a test tool" }
func (t *fakeTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (t *fakeTool) Execute(ctx context.Context, input string) (string, error) {
	t.inputs = append(t.inputs, input)
	return t.result, t.err
}

func registryWith(t *testing.T, fakes ...*fakeTool) *tools.Registry {
	t.Helper()
	registry := tools.NewRegistry()
	for _, f := range fakes {
		registry.Register(f)
	}
	return registry
}

func TestExecutor_ToolRoundThenAnswer(t *testing.T) {
	search := &fakeTool{name: "web_search", result: "Jannik Sinner won the 2025 men's singles"}
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse("web_search", `{"query":"australian open 2025 winner"}`),
		textResponse("The winner is Jannik Sinner."),
	}}

	executor := NewExecutor(model, registryWith(t, search), testPrompts(t), nil, nil)
	result, err := executor.Execute(context.Background(), "find the winner")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result != "The winner is Jannik Sinner." {
		t.Errorf("result = %q", result)
	}
	if len(search.inputs) != 1 || !strings.Contains(search.inputs[0], "australian open") {
		t.Errorf("tool inputs = %v", search.inputs)
	}

	// Second call must carry the tool observation back to the model.
	if len(model.calls) != 2 {
		t.Fatalf("model calls = %d, want 2", len(model.calls))
	}
	last := model.calls[1][len(model.calls[1])-1]
	if last.Role != llms.ChatMessageTypeTool {
		t.Errorf("last message role = %v, want tool", last.Role)
	}
}

func TestExecutor_DirectAnswer(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		textResponse("42"),
	}}

	executor := NewExecutor(model, registryWith(t), testPrompts(t), nil, nil)
	result, err := executor.Execute(context.Background(), "what is 6 times 7")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result != "42" {
		t.Errorf("result = %q", result)
	}
}

func TestExecutor_PolicyDenial(t *testing.T) {
	shell := &fakeTool{name: "shell", result: "should never run"}
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse("shell", `{"command":"rm -rf /"}`),
		textResponse("I could not run that command."),
	}}

	policy := governance.NewDefaultPolicyEngine()
	if err := policy.DenyArguments(`rm\s+-rf`); err != nil {
		t.Fatal(err)
	}

	executor := NewExecutor(model, registryWith(t, shell), testPrompts(t), policy, nil)
	result, err := executor.Execute(context.Background(), "clean up the disk")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result != "I could not run that command." {
		t.Errorf("result = %q", result)
	}
	if len(shell.inputs) != 0 {
		t.Error("denied tool must not be executed")
	}

	// The denial is fed back to the model as the observation.
	last := model.calls[1][len(model.calls[1])-1]
	resp, ok := last.Parts[0].(llms.ToolCallResponse)
	if !ok {
		t.Fatalf("last part = %T, want ToolCallResponse", last.Parts[0])
	}
	if !strings.Contains(resp.Content, "Denied by policy") {
		t.Errorf("observation = %q", resp.Content)
	}
}

func TestExecutor_ToolErrorBecomesObservation(t *testing.T) {
	broken := &fakeTool{name: "scraper", err: errors.New("connection refused")}
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse("scraper", `{"url":"https://example.com"}`),
		textResponse("The page was unreachable."),
	}}

	executor := NewExecutor(model, registryWith(t, broken), testPrompts(t), nil, nil)
	result, err := executor.Execute(context.Background(), "read the page")
	if err != nil {
		t.Fatalf("tool errors should not fail the step: %v", err)
	}
	if result != "The page was unreachable." {
		t.Errorf("result = %q", result)
	}

	last := model.calls[1][len(model.calls[1])-1]
	resp := last.Parts[0].(llms.ToolCallResponse)
	if !strings.Contains(resp.Content, "connection refused") {
		t.Errorf("observation = %q", resp.Content)
	}
}

func TestExecutor_RoundsExhausted(t *testing.T) {
	echo := &fakeTool{name: "echo", result: "again"}
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse("echo", `{}`),
		toolCallResponse("echo", `{}`),
		toolCallResponse("echo", `{}`),
	}}

	executor := NewExecutor(model, registryWith(t, echo), testPrompts(t), nil, nil)
	executor.MaxToolRounds = 3
	if _, err := executor.Execute(context.Background(), "loop forever"); err == nil {
		t.Fatal("expected an error once the tool rounds are exhausted")
	}
}

func TestExecutor_EmptyAnswerIsError(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		textResponse("   "),
	}}

	executor := NewExecutor(model, registryWith(t), testPrompts(t), nil, nil)
	if _, err := executor.Execute(context.Background(), "do something"); err == nil {
		t.Fatal("expected an error for an empty answer")
	}
}
