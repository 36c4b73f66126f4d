package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/agentrace/arena/internal/domain/model"
)

// Default model names, overridable via config.
const (
	DefaultTaskModel  = "gpt-4.1-mini"
	DefaultJudgeModel = "gpt-5-mini"
)

// StaticTaskSource serves tasks from a fixed pool. It is the default task
// generator; AI generation is opt-in.
type StaticTaskSource struct {
	tasks []model.RaceTask
	rng   *rand.Rand
}

// StaticOption applies a configuration option to the StaticTaskSource.
type StaticOption func(*StaticTaskSource)

// WithTasks replaces the built-in task pool.
func WithTasks(tasks []model.RaceTask) StaticOption {
	return func(s *StaticTaskSource) {
		if len(tasks) > 0 {
			s.tasks = tasks
		}
	}
}

// WithRand sets the random source used to pick tasks.
func WithRand(rng *rand.Rand) StaticOption {
	return func(s *StaticTaskSource) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// NewStaticTaskSource builds a task source over the built-in pool.
func NewStaticTaskSource(opts ...StaticOption) *StaticTaskSource {
	s := &StaticTaskSource{tasks: defaultTasks}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate returns a copy of a randomly chosen task from the pool.
func (s *StaticTaskSource) Generate(ctx context.Context) (model.RaceTask, error) {
	if len(s.tasks) == 0 {
		return model.RaceTask{}, fmt.Errorf("%w: static task pool is empty", ErrBadPayload)
	}
	var idx int
	if s.rng != nil {
		idx = s.rng.Intn(len(s.tasks))
	} else {
		idx = rand.Intn(len(s.tasks))
	}
	task := s.tasks[idx]
	// Copy the guidelines so callers can mutate without touching the pool.
	task.EvaluationGuidelines = append([]string(nil), task.EvaluationGuidelines...)
	if err := task.Validate(); err != nil {
		return model.RaceTask{}, err
	}
	return task, nil
}

const taskSystemPrompt = "You design short competitive tasks where a human races an autonomous browser agent. " +
	"Each assignment must take place in a standard web browser, require navigating live websites, and be solvable in under 3 minutes. " +
	"Favor objectives like visiting a specific site, running a search, collecting top-N results, extracting contact details, or confirming on-page facts. " +
	"Return strict JSON with keys: title, summary, human_instructions, agent_instructions, " +
	"task_type (text_entry or confirmation), success_criteria, expected_output_description, " +
	"and evaluation_guidelines (array of bullet strings). Avoid Markdown and explanations."

const taskUserPrompt = "Create a creative but fair browser-based race task. " +
	"Ensure human instructions clearly describe the steps (e.g., 'Go to example.com and list the top 5 resources about X'). " +
	"Agent instructions should precisely describe the browsing actions and required output. " +
	"Avoid tasks that require logging in, payments, or unsafe behavior. " +
	"For confirmation tasks, success should hinge on verifying something visible on the page rather than free-form text."

// TaskGenerator asks a language model to produce a race task.
type TaskGenerator struct {
	client *Client
	model  string
}

// NewTaskGenerator builds an AI-backed task generator.
func NewTaskGenerator(client *Client, modelName string) *TaskGenerator {
	if modelName == "" {
		modelName = DefaultTaskModel
	}
	return &TaskGenerator{client: client, model: modelName}
}

// Generate produces and validates a task payload. Any missing key or
// unsupported task type is a hard failure; race creation aborts.
func (g *TaskGenerator) Generate(ctx context.Context) (model.RaceTask, error) {
	content, err := g.client.ChatJSON(ctx, g.model, []chatMessage{
		{Role: "system", Content: taskSystemPrompt},
		{Role: "user", Content: taskUserPrompt},
	})
	if err != nil {
		return model.RaceTask{}, fmt.Errorf("task generation: %w", err)
	}

	var task model.RaceTask
	if err := json.Unmarshal([]byte(stripFences(content)), &task); err != nil {
		return model.RaceTask{}, fmt.Errorf("%w: task generation returned malformed JSON: %v", ErrBadPayload, err)
	}
	task.TaskType = model.TaskType(strings.ToLower(strings.TrimSpace(string(task.TaskType))))
	if err := task.Validate(); err != nil {
		return model.RaceTask{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return task, nil
}
