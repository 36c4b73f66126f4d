// Package simrace drives complete human-versus-agent races against a
// running service over HTTP, including the live event stream, and reports
// aggregate outcomes.
package simrace

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentrace/arena/pkg/logger"
)

// Run executes the complete race simulation.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting race simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("races", config.NumRaces),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Any("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Drive races concurrently
	driveRaces(ctx, config, stats)

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	if stats.RacesFailed > 0 {
		return fmt.Errorf("%d of %d races failed", stats.RacesFailed, stats.RacesStarted)
	}
	logger.Get().Info(ctx, "simulation completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	resp, err := client.Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if err := decodeResponse(resp, nil); err != nil {
		return err
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// driveRaces runs the configured number of races with a worker pool.
func driveRaces(ctx context.Context, config *Config, stats *Stats) {
	var (
		started   int64
		completed int64
		failed    int64
		agentWins int64
		humanWins int64
		ties      int64
		events    int64
	)

	jobs := make(chan int)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddInt64(&started, 1)
				outcome, seen, err := driveOneRace(ctx, config)
				atomic.AddInt64(&events, int64(seen))
				if err != nil {
					atomic.AddInt64(&failed, 1)
					logger.Get().Warn(ctx, "race failed",
						logger.Int("race", n),
						logger.Error(err))
					continue
				}
				atomic.AddInt64(&completed, 1)
				switch outcome {
				case "agent":
					atomic.AddInt64(&agentWins, 1)
				case "human":
					atomic.AddInt64(&humanWins, 1)
				default:
					atomic.AddInt64(&ties, 1)
				}
			}
		}()
	}

	for n := 0; n < config.NumRaces; n++ {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case jobs <- n:
		}
	}
	close(jobs)
	wg.Wait()

	stats.RacesStarted = int(atomic.LoadInt64(&started))
	stats.RacesCompleted = int(atomic.LoadInt64(&completed))
	stats.RacesFailed = int(atomic.LoadInt64(&failed))
	stats.AgentWins = int(atomic.LoadInt64(&agentWins))
	stats.HumanWins = int(atomic.LoadInt64(&humanWins))
	stats.Ties = int(atomic.LoadInt64(&ties))
	stats.EventsSeen = int(atomic.LoadInt64(&events))
}

// driveOneRace runs a single race end to end: create, start both sides,
// watch the agent's event stream, submit as the human, and poll until a
// verdict lands. It returns the winner.
func driveOneRace(ctx context.Context, config *Config) (string, int, error) {
	client := newHTTPClient(config.Timeout)

	// Create the race
	resp, err := client.Post(ctx, config.BaseURL+"/race", nil)
	if err != nil {
		return "", 0, fmt.Errorf("create race: %w", err)
	}
	var snap raceSnapshot
	if err := decodeResponse(resp, &snap); err != nil {
		return "", 0, fmt.Errorf("create race: %w", err)
	}

	// Start the agent side
	resp, err = client.Post(ctx, config.BaseURL+"/race/"+snap.RaceID+"/agent/start", nil)
	if err != nil {
		return "", 0, fmt.Errorf("start agent: %w", err)
	}
	var agentStart agentStartResponse
	if err := decodeResponse(resp, &agentStart); err != nil {
		return "", 0, fmt.Errorf("start agent: %w", err)
	}

	// Watch the agent's event stream in the background
	eventCh := make(chan sseEvent, 64)
	streamDone := make(chan error, 1)
	go func() {
		streamDone <- streamEvents(ctx, config.BaseURL, agentStart.RunID, eventCh)
	}()

	var seenCount int64
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for ev := range eventCh {
			atomic.AddInt64(&seenCount, 1)
			if config.Verbose {
				logger.Get().Debug(ctx, "run event",
					logger.String("raceID", snap.RaceID),
					logger.String("type", ev.Type),
					logger.String("data", ev.Data))
			}
		}
	}()
	seen := func() int { return int(atomic.LoadInt64(&seenCount)) }

	// Start the human side
	resp, err = client.Post(ctx, config.BaseURL+"/race/"+snap.RaceID+"/human/start", nil)
	if err != nil {
		return "", seen(), fmt.Errorf("start human: %w", err)
	}
	if err := decodeResponse(resp, nil); err != nil {
		return "", seen(), fmt.Errorf("start human: %w", err)
	}

	// Simulated thinking time, then submit
	select {
	case <-ctx.Done():
		return "", seen(), ctx.Err()
	case <-time.After(config.HumanDelay):
	}

	var body interface{}
	if snap.Task.TaskType == "text_entry" {
		body = map[string]string{"submission": config.Submission}
	}
	resp, err = client.Post(ctx, config.BaseURL+"/race/"+snap.RaceID+"/human/submit", body)
	if err != nil {
		return "", seen(), fmt.Errorf("submit human: %w", err)
	}
	if err := decodeResponse(resp, nil); err != nil {
		return "", seen(), fmt.Errorf("submit human: %w", err)
	}

	// Wait for the agent's stream to finish
	if err := <-streamDone; err != nil && ctx.Err() == nil {
		logger.Get().Warn(ctx, "event stream ended early",
			logger.String("raceID", snap.RaceID),
			logger.Error(err))
	}
	<-consumed

	// Poll until judged
	for {
		select {
		case <-ctx.Done():
			return "", seen(), ctx.Err()
		case <-time.After(config.PollEvery):
		}

		resp, err = client.Get(ctx, config.BaseURL+"/race/"+snap.RaceID)
		if err != nil {
			return "", seen(), fmt.Errorf("poll race: %w", err)
		}
		var current raceSnapshot
		if err := decodeResponse(resp, &current); err != nil {
			return "", seen(), fmt.Errorf("poll race: %w", err)
		}
		if current.Status == "completed" && current.Verdict != nil {
			return current.Verdict.Winner, seen(), nil
		}
	}
}

// displayFinalStats prints the final simulation statistics.
func displayFinalStats(stats *Stats) {
	var racesPerMinute float64
	if stats.Duration > 0 {
		racesPerMinute = float64(stats.RacesCompleted) / stats.Duration.Minutes()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("racesStarted", stats.RacesStarted),
		logger.Int("racesCompleted", stats.RacesCompleted),
		logger.Int("racesFailed", stats.RacesFailed),
		logger.Int("agentWins", stats.AgentWins),
		logger.Int("humanWins", stats.HumanWins),
		logger.Int("ties", stats.Ties),
		logger.Int("eventsSeen", stats.EventsSeen),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("racesPerMinute", racesPerMinute))
}
