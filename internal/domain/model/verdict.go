package model

// Winner identifies who the judge declared victorious.
type Winner string

// Verdict winners. Unrecognized values from the judge are coerced to tie.
const (
	WinnerAgent Winner = "agent"
	WinnerHuman Winner = "human"
	WinnerTie   Winner = "tie"
)

// Verdict is the judge's final comparative scoring of both participants.
// Scores are expected in [0,10] but are only type-checked, never clamped.
type Verdict struct {
	Winner     Winner  `json:"winner"`
	Reasoning  string  `json:"reasoning"`
	AgentScore float64 `json:"agent_score"`
	HumanScore float64 `json:"human_score"`
}

// JudgeRequest is the immutable snapshot handed to the judge collaborator
// once both participants are ready.
type JudgeRequest struct {
	Task                 RaceTask
	AgentResult          *string
	HumanSubmission      *string
	AgentDurationSeconds *float64
	HumanDurationSeconds *float64
}
