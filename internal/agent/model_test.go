package agent

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms"
)

// scriptedModel replays canned responses in order and records the
// messages of each call.
type scriptedModel struct {
	responses []*llms.ContentResponse
	err       error
	calls     [][]llms.MessageContent
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls = append(m.calls, messages)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.calls) > len(m.responses) {
		return nil, errors.New("scriptedModel: no response scripted for this call")
	}
	return m.responses[len(m.calls)-1], nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("scriptedModel: Call is not supported")
}

func toolCallResponse(name, arguments string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				ToolCalls: []llms.ToolCall{
					{
						ID:   "call-1",
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      name,
							Arguments: arguments,
						},
					},
				},
			},
		},
	}
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: text},
		},
	}
}
