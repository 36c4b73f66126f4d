package simrace

import "time"

// Config holds configuration for the race simulation
type Config struct {
	BaseURL     string        // Base URL of the service
	NumRaces    int           // Number of races to drive
	Workers     int           // Number of concurrent workers
	Timeout     time.Duration // HTTP request timeout
	HumanDelay  time.Duration // Simulated human thinking time before submitting
	Submission  string        // Human submission text for text_entry tasks
	PollEvery   time.Duration // Race status polling interval
	LogFile     string        // Log file for simulation output
	Verbose     bool          // Enable verbose logging
}

// raceSnapshot mirrors the race payload returned by the service.
type raceSnapshot struct {
	RaceID string `json:"race_id"`
	Status string `json:"status"`
	Task   struct {
		Title             string `json:"title"`
		HumanInstructions string `json:"human_instructions"`
		TaskType          string `json:"task_type"`
	} `json:"task"`
	Verdict *struct {
		Winner     string  `json:"winner"`
		Reasoning  string  `json:"reasoning"`
		AgentScore float64 `json:"agent_score"`
		HumanScore float64 `json:"human_score"`
	} `json:"verdict"`
}

// agentStartResponse mirrors POST /race/{id}/agent/start.
type agentStartResponse struct {
	RunID string       `json:"run_id"`
	Race  raceSnapshot `json:"race"`
}

// Stats holds simulation statistics
type Stats struct {
	RacesStarted   int
	RacesCompleted int
	RacesFailed    int
	AgentWins      int
	HumanWins      int
	Ties           int
	EventsSeen     int
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}
