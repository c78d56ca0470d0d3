package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan         EventType = "plan"
	EventTypeStep         EventType = "step"
	EventTypeReplan       EventType = "replan"
	EventTypeFinal        EventType = "final"
	EventTypeAbort        EventType = "abort"
	EventTypeToolCall     EventType = "tool_call"
	EventTypeToolResult   EventType = "tool_result"
	EventTypePolicyDenied EventType = "policy_denied"
	EventTypeHeartbeat    EventType = "heartbeat"
	EventTypeLLM          EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger emits structured JSON events to stdout; LLM transcript
// events are mirrored to a rotating jsonl file.
type Logger struct {
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return NewLoggerAt(filepath.Join("logs", "llm.jsonl"))
}

// NewLoggerAt mirrors LLM transcript events to the given jsonl path
// instead of the default logs/llm.jsonl.
func NewLoggerAt(path string) *Logger {
	return &Logger{
		llmLogPath: path,
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to stdout.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Printf("{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Println(string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogPlan(chatID string, steps []string) {
	l.Log(Event{
		Type:   EventTypePlan,
		ChatID: chatID,
		Data:   map[string]any{"steps": steps},
	})
}

func (l *Logger) LogReplan(chatID string, steps []string) {
	l.Log(Event{
		Type:   EventTypeReplan,
		ChatID: chatID,
		Data:   map[string]any{"remaining_steps": steps},
	})
}

func (l *Logger) LogStep(chatID, step, result string) {
	l.Log(Event{
		Type:   EventTypeStep,
		ChatID: chatID,
		Data: map[string]string{
			"step":   step,
			"result": result,
		},
	})
}

func (l *Logger) LogFinal(chatID, response string) {
	l.Log(Event{
		Type:   EventTypeFinal,
		ChatID: chatID,
		Data:   map[string]string{"response": response},
	})
}

func (l *Logger) LogAbort(chatID, kind, message string) {
	l.Log(Event{
		Type:   EventTypeAbort,
		ChatID: chatID,
		Data: map[string]string{
			"kind":    kind,
			"message": message,
		},
	})
}

func (l *Logger) LogToolCall(chatID, tool, args string) {
	l.Log(Event{
		Type:   EventTypeToolCall,
		ChatID: chatID,
		Data: map[string]string{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogToolResult(chatID, tool, result string) {
	l.Log(Event{
		Type:   EventTypeToolResult,
		ChatID: chatID,
		Data: map[string]string{
			"tool":   tool,
			"result": result,
		},
	})
}

func (l *Logger) LogPolicyDenied(chatID, tool, reason string) {
	l.Log(Event{
		Type:   EventTypePolicyDenied,
		ChatID: chatID,
		Data: map[string]string{
			"tool":   tool,
			"reason": reason,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(chatID string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:   EventTypeLLM,
		ChatID: chatID,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}
