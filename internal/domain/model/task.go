// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// TaskType tells the core how a human submission is judged ready.
type TaskType string

// Supported task types.
const (
	TaskTypeTextEntry    TaskType = "text_entry"
	TaskTypeConfirmation TaskType = "confirmation"
)

// Valid reports whether t is a supported task type.
func (t TaskType) Valid() bool {
	return t == TaskTypeTextEntry || t == TaskTypeConfirmation
}

// RaceTask describes one race assignment. It is immutable once created and
// owned by the race that holds it.
type RaceTask struct {
	Title                     string   `json:"title"`
	Summary                   string   `json:"summary"`
	HumanInstructions         string   `json:"human_instructions"`
	AgentInstructions         string   `json:"agent_instructions"`
	TaskType                  TaskType `json:"task_type"`
	SuccessCriteria           string   `json:"success_criteria"`
	ExpectedOutputDescription string   `json:"expected_output_description"`
	EvaluationGuidelines      []string `json:"evaluation_guidelines"`
}

// Validate checks the task generator contract: every key present and a
// recognized task type.
func (t *RaceTask) Validate() error {
	var missing []string
	for key, val := range map[string]string{
		"title":                       t.Title,
		"summary":                     t.Summary,
		"human_instructions":          t.HumanInstructions,
		"agent_instructions":          t.AgentInstructions,
		"success_criteria":            t.SuccessCriteria,
		"expected_output_description": t.ExpectedOutputDescription,
	} {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("task payload missing keys: %s", strings.Join(missing, ", "))
	}
	if t.EvaluationGuidelines == nil {
		return errors.New("task payload missing keys: evaluation_guidelines")
	}
	if !t.TaskType.Valid() {
		return fmt.Errorf("unsupported task type: %q", t.TaskType)
	}
	return nil
}
