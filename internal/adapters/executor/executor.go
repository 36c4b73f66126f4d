// Package executor defines the contract for driving an agent run and a
// scripted in-process implementation that simulates a browser agent.
package executor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/agentrace/arena/internal/domain/model"
)

// Default simulation constants.
const (
	defaultMinLatency = 150 * time.Millisecond
	defaultMaxLatency = 600 * time.Millisecond
	defaultRandomSeed = 42
	defaultLiveURL    = "https://live.agentrace.local/session"
	defaultResult     = "Task completed. Navigated the target pages and extracted the requested answer."
)

// Sink receives events published by a running executor. Publish reports
// whether the event was accepted; a run that already finished rejects.
type Sink interface {
	Publish(ev model.RunEvent) bool
}

// Runner drives one agent attempt at a task, emitting progress through the
// sink. It returns once the attempt is over; the caller emits the final
// complete event.
type Runner interface {
	Run(ctx context.Context, task string, sink Sink) error
}

// Option applies a configuration option to the Scripted executor.
type Option func(*Scripted)

// WithLatencyRange sets the simulated delay between emitted steps.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *Scripted) {
		if minLatency > 0 && maxLatency > minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithResult sets the result payload emitted on success.
func WithResult(result string) Option {
	return func(s *Scripted) {
		s.result = result
	}
}

// WithLiveURL sets the live view URL emitted at session start.
func WithLiveURL(url string) Option {
	return func(s *Scripted) {
		s.liveURL = url
	}
}

// WithFailure makes every run fail with the given message instead of
// producing a result.
func WithFailure(message string) Option {
	return func(s *Scripted) {
		s.failure = message
	}
}

// WithSeed sets the random seed used for latency jitter.
func WithSeed(seed int64) Option {
	return func(s *Scripted) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // simulation jitter
	}
}

// Scripted implements Runner with a fixed event script and simulated
// latency, standing in for a real browser automation backend.
type Scripted struct {
	// Simulated latency range between steps
	minLatency time.Duration
	maxLatency time.Duration
	// Emitted payloads
	liveURL string
	result  string
	failure string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewScripted creates a scripted executor with configuration options.
func NewScripted(opts ...Option) *Scripted {
	s := &Scripted{
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		liveURL:    defaultLiveURL,
		result:     defaultResult,
		rng:        rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic for testing
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run plays the script: status updates, a live URL, progress logs and
// finally either a result or an error.
func (s *Scripted) Run(ctx context.Context, task string, sink Sink) error {
	steps := []model.RunEvent{
		model.StatusEvent{Status: "starting", Task: task},
		model.LiveURLEvent{URL: s.liveURL},
		model.StatusEvent{Status: "running", Task: task},
		model.LogEvent{Message: "opening browser session"},
		model.LogEvent{Message: "navigating to target page"},
	}
	for _, ev := range steps {
		if err := s.pause(ctx); err != nil {
			return err
		}
		sink.Publish(ev)
	}

	if err := s.pause(ctx); err != nil {
		return err
	}
	if s.failure != "" {
		return fmt.Errorf("agent run failed: %s", s.failure)
	}
	sink.Publish(model.ResultEvent{Result: s.result})
	sink.Publish(model.StatusEvent{Status: "completed", Task: task})
	return nil
}

func (s *Scripted) pause(ctx context.Context) error {
	s.mu.Lock()
	latency := s.minLatency + time.Duration(s.rng.Int63n(int64(s.maxLatency-s.minLatency)))
	s.mu.Unlock()
	select {
	case <-ctx.Done():
		return fmt.Errorf("run cancelled: %w", ctx.Err())
	case <-time.After(latency):
		return nil
	}
}
