package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/agentrace/arena/internal/domain/model"
)

const judgeSystemPrompt = "You are an impartial judge for a race between a human and an autonomous browser agent. " +
	"Both attempted the same task. Score each on correctness against the success criteria, completeness, and speed. " +
	"Correctness dominates; speed only breaks ties between comparable results. " +
	"Return strict JSON with keys: winner (agent, human, or tie), reasoning (short paragraph), " +
	"agent_score (0-10), human_score (0-10). No Markdown, no extra keys."

const judgeUserPrompt = "Evaluate the race described in the context above and return your verdict as strict JSON."

// judgeContext is the evaluation payload handed to the model. Missing
// results or durations serialize as null rather than being omitted.
type judgeContext struct {
	Title                     string   `json:"title"`
	Summary                   string   `json:"summary"`
	SuccessCriteria           string   `json:"success_criteria"`
	ExpectedOutputDescription string   `json:"expected_output_description"`
	EvaluationGuidelines      []string `json:"evaluation_guidelines"`
	AgentResult               *string  `json:"agent_result"`
	AgentDurationSeconds      *float64 `json:"agent_duration_seconds"`
	HumanSubmission           *string  `json:"human_submission"`
	HumanDurationSeconds      *float64 `json:"human_duration_seconds"`
}

// Judge evaluates finished races with a language model.
type Judge struct {
	client *Client
	model  string
}

// NewJudge builds an AI-backed race judge.
func NewJudge(client *Client, modelName string) *Judge {
	if modelName == "" {
		modelName = DefaultJudgeModel
	}
	return &Judge{client: client, model: modelName}
}

// Evaluate asks the model for a verdict. An unrecognized winner value is
// coerced to tie; a missing key or non-numeric score is a hard failure and
// the caller records a synthetic verdict instead.
func (j *Judge) Evaluate(ctx context.Context, req model.JudgeRequest) (model.Verdict, error) {
	evalCtx, err := json.MarshalIndent(judgeContext{
		Title:                     req.Task.Title,
		Summary:                   req.Task.Summary,
		SuccessCriteria:           req.Task.SuccessCriteria,
		ExpectedOutputDescription: req.Task.ExpectedOutputDescription,
		EvaluationGuidelines:      req.Task.EvaluationGuidelines,
		AgentResult:               req.AgentResult,
		AgentDurationSeconds:      req.AgentDurationSeconds,
		HumanSubmission:           req.HumanSubmission,
		HumanDurationSeconds:      req.HumanDurationSeconds,
	}, "", "  ")
	if err != nil {
		return model.Verdict{}, fmt.Errorf("encode evaluation context: %w", err)
	}

	content, err := j.client.ChatJSON(ctx, j.model, []chatMessage{
		{Role: "system", Content: judgeSystemPrompt},
		{Role: "system", Content: "Race context:\n" + string(evalCtx)},
		{Role: "user", Content: judgeUserPrompt},
	})
	if err != nil {
		return model.Verdict{}, fmt.Errorf("judge evaluation: %w", err)
	}
	return parseVerdict(stripFences(content))
}

func parseVerdict(raw string) (model.Verdict, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return model.Verdict{}, fmt.Errorf("%w: judge returned malformed JSON: %v", ErrBadPayload, err)
	}

	var missing []string
	for _, key := range []string{"winner", "reasoning", "agent_score", "human_score"} {
		if _, ok := payload[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return model.Verdict{}, fmt.Errorf("%w: judge response missing keys: %s", ErrBadPayload, strings.Join(missing, ", "))
	}

	winner := model.Winner(strings.ToLower(strings.TrimSpace(fmt.Sprint(payload["winner"]))))
	switch winner {
	case model.WinnerAgent, model.WinnerHuman, model.WinnerTie:
	default:
		winner = model.WinnerTie
	}

	agentScore, err := asScore(payload["agent_score"])
	if err != nil {
		return model.Verdict{}, fmt.Errorf("%w: agent_score: %v", ErrBadPayload, err)
	}
	humanScore, err := asScore(payload["human_score"])
	if err != nil {
		return model.Verdict{}, fmt.Errorf("%w: human_score: %v", ErrBadPayload, err)
	}

	return model.Verdict{
		Winner:     winner,
		Reasoning:  fmt.Sprint(payload["reasoning"]),
		AgentScore: agentScore,
		HumanScore: humanScore,
	}, nil
}

// asScore accepts JSON numbers and numeric strings. Anything else fails.
func asScore(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}
