// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - All loading functions accept context.Context as the first parameter.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
)

// Task source selection values.
const (
	TaskSourceStatic = "static"
	TaskSourceAI     = "ai"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// TaskSource selects where race tasks come from: static or ai.
	TaskSource string `koanf:"task_source"`

	// TaskModel and JudgeModel name the language models used for AI task
	// generation and judging.
	TaskModel  string `koanf:"task_model"`
	JudgeModel string `koanf:"judge_model"`

	// LLMBaseURL overrides the chat completion endpoint base URL.
	LLMBaseURL string `koanf:"llm_base_url"`

	// LLMTimeoutMS bounds a single chat completion call.
	LLMTimeoutMS int `koanf:"llm_timeout_ms"`

	// JudgeWorkers sets the number of judgment workers.
	JudgeWorkers int `koanf:"judge_workers"`

	// JudgeQueueSize bounds the in-memory judgment queue.
	JudgeQueueSize int `koanf:"judge_queue_size"`

	// StreamBufferCap caps the per-run replay buffer. Zero means unbounded.
	StreamBufferCap int `koanf:"stream_buffer_cap"`

	// ListenerBuffer sets the extra channel slack given to each stream
	// subscriber beyond the replayed history.
	ListenerBuffer int `koanf:"listener_buffer"`

	// RunQueueSize bounds the per-run inbound event queue.
	RunQueueSize int `koanf:"run_queue_size"`

	// ExecutorMinLatencyMS and ExecutorMaxLatencyMS bound the simulated
	// agent step latency of the scripted executor.
	ExecutorMinLatencyMS int `koanf:"executor_min_latency_ms"`
	ExecutorMaxLatencyMS int `koanf:"executor_max_latency_ms"`

	// AgentResult overrides the result text the scripted executor emits.
	AgentResult string `koanf:"agent_result"`
}

// New creates a Config with defaults.
func New() *Config {
	c := &Config{
		LogLevel:             "info",
		Addr:                 ":9080",
		TaskSource:           TaskSourceStatic,
		TaskModel:            "gpt-4.1-mini",
		JudgeModel:           "gpt-5-mini",
		LLMBaseURL:           "https://api.openai.com/v1",
		LLMTimeoutMS:         60_000,
		JudgeWorkers:         4,
		JudgeQueueSize:       1024,
		StreamBufferCap:      0,
		ListenerBuffer:       256,
		RunQueueSize:         1024,
		ExecutorMinLatencyMS: 150,
		ExecutorMaxLatencyMS: 600,
		AgentResult:          "",
	}
	return c
}

// Validate reports configuration errors that would break startup.
func (c *Config) Validate(_ context.Context) error {
	if c.Addr == "" {
		return ErrEmptyAddr
	}
	if c.TaskSource != TaskSourceStatic && c.TaskSource != TaskSourceAI {
		return ErrBadTaskSource
	}
	if c.JudgeWorkers <= 0 {
		return ErrBadWorkerCount
	}
	if c.JudgeQueueSize <= 0 {
		return ErrBadQueueSize
	}
	if c.StreamBufferCap < 0 {
		return ErrBadBufferCap
	}
	if c.ExecutorMinLatencyMS <= 0 || c.ExecutorMaxLatencyMS <= c.ExecutorMinLatencyMS {
		return ErrBadLatencyRange
	}
	return nil
}
