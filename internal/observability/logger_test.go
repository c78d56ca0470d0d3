package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogLLM_MirroredToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llm.jsonl")
	logger := NewLoggerAt(path)

	logger.LogLLM("tg:1", "find the winner", "The winner is Jannik Sinner.", nil)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("transcript file not written: %v", err)
	}
	line := strings.TrimSpace(string(data))
	if !strings.Contains(line, `"type":"llm"`) {
		t.Errorf("line = %s", line)
	}
	if !strings.Contains(line, "Jannik Sinner") {
		t.Errorf("line missing the response: %s", line)
	}
}

func TestLogLLM_OnlyLLMEventsMirrored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llm.jsonl")
	logger := NewLoggerAt(path)

	logger.LogPlan("tg:1", []string{"a step"})
	logger.LogStep("tg:1", "a step", "a result")

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("non-llm events must not be mirrored to the transcript file")
	}
}

func TestLogRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llm.jsonl")
	logger := NewLoggerAt(path)
	logger.maxSize = 64

	logger.LogLLM("tg:1", "first prompt that pushes the file past the size cap", "first", nil)
	logger.LogLLM("tg:1", "second prompt", "second", nil)

	old, err := os.ReadFile(path + ".old")
	if err != nil {
		t.Fatalf("rotated file not written: %v", err)
	}
	if !strings.Contains(string(old), "first") {
		t.Errorf("rotated file = %s", old)
	}

	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(current), "second") {
		t.Errorf("current file = %s", current)
	}
}
