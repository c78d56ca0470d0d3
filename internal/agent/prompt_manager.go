package agent

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PromptManager loads role prompts from a directory of markdown files,
// falling back to built-in defaults when a file is absent so a fresh
// checkout runs without a prompts directory.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

const defaultPlannerPrompt = `You are the planning half of an objective-solving agent.
Given an objective, produce the smallest ordered plan that accomplishes it.
Each step must be a self-contained natural-language instruction; do not assume
the step executor remembers anything outside its own step description.
Submit the plan with the propose_plan function. Never answer in plain text.`

const defaultReplannerPrompt = `You are revising the plan of an objective-solving agent.
You see the objective, the remaining plan, and every step executed so far with
its result. Remove steps made unnecessary by the results, add steps the results
revealed, and keep the rest. Call update_plan with only the remaining steps;
never include a step that was already executed. If the results already answer the
objective, call final_response with the complete answer instead.`

const defaultExecutorPrompt = `You are the execution half of an objective-solving agent.
You receive one task and must complete it using the tools available to you.
Work the task to completion and reply with a concise factual summary of what
you found or did. Do not plan beyond the task you were given.`

// PlannerPrompt returns planner.md or the built-in default.
func (pm *PromptManager) PlannerPrompt() (string, error) {
	return pm.readOrDefault("planner.md", defaultPlannerPrompt)
}

// ReplannerPrompt returns replanner.md or the built-in default.
func (pm *PromptManager) ReplannerPrompt() (string, error) {
	return pm.readOrDefault("replanner.md", defaultReplannerPrompt)
}

// ExecutorPrompt concatenates the executor prompt layers in a fixed
// order (identity, capabilities, directive, then anything else), or
// returns the built-in default when no layer files exist.
func (pm *PromptManager) ExecutorPrompt() (string, error) {
	entries, err := os.ReadDir(pm.Directory)
	if err != nil {
		return defaultExecutorPrompt, nil
	}

	order := map[string]int{
		"identity.md":           1,
		"capabilities.md":       2,
		"executor_directive.md": 3,
	}
	sort.Slice(entries, func(i, j int) bool {
		oi, okI := order[entries[i].Name()]
		oj, okJ := order[entries[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return entries[i].Name() < entries[j].Name()
	})

	var contents []string
	for _, f := range entries {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}
		if name == "planner.md" || name == "replanner.md" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(pm.Directory, name))
		if err != nil {
			log.Printf("Warning: failed to read prompt file %s: %v", name, err)
			continue
		}
		contents = append(contents, string(data))
	}

	if len(contents) == 0 {
		return defaultExecutorPrompt, nil
	}
	return strings.Join(contents, "\n\n---\n\n"), nil
}

func (pm *PromptManager) readOrDefault(name, fallback string) (string, error) {
	data, err := os.ReadFile(filepath.Join(pm.Directory, name))
	if err != nil {
		return fallback, nil
	}
	return string(data), nil
}
