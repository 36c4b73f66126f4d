// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentrace/arena/internal/adapters/executor"
	"github.com/agentrace/arena/internal/adapters/llm"
	judgequeue "github.com/agentrace/arena/internal/adapters/mq/queue"
	workerpool "github.com/agentrace/arena/internal/adapters/mq/worker"
	"github.com/agentrace/arena/internal/adapters/stream"
	"github.com/agentrace/arena/internal/domain/model"
	"github.com/agentrace/arena/internal/domain/race"
	"github.com/agentrace/arena/pkg/logger"
	"github.com/agentrace/arena/pkg/metrics"
)

// RunInfo is the status view of a single agent run.
type RunInfo struct {
	RunID  string `json:"run_id"`
	Task   string `json:"task"`
	Status string `json:"status"`
}

// Service wires the race manager, run streams, and the judgment pipeline
// behind one facade for the HTTP API.
type Service struct {
	mu sync.RWMutex

	// Core components
	races      *race.Manager
	runs       *stream.Registry
	judgeQueue judgequeue.Queue
	pool       *workerpool.Pool

	// Collaborators
	taskGen  race.TaskGenerator
	judge    workerpool.Judge
	executor executor.Runner

	// Configuration
	judgeWorkers    int
	judgeQueueSize  int
	runQueueSize    int
	streamBufferCap int
	listenerBuffer  int

	// State
	started bool
	runCtx  context.Context
	stop    context.CancelFunc

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithTaskGenerator sets the race task source.
func WithTaskGenerator(gen race.TaskGenerator) Option {
	return func(s *Service) {
		if gen != nil {
			s.taskGen = gen
		}
	}
}

// WithJudge sets the judge collaborator.
func WithJudge(judge workerpool.Judge) Option {
	return func(s *Service) {
		if judge != nil {
			s.judge = judge
		}
	}
}

// WithExecutor sets the agent run executor.
func WithExecutor(runner executor.Runner) Option {
	return func(s *Service) {
		if runner != nil {
			s.executor = runner
		}
	}
}

// WithJudgeWorkerCount sets the number of judgment workers.
func WithJudgeWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.judgeWorkers = count
		}
	}
}

// WithJudgeQueueSize sets the maximum size of the judgment queue.
func WithJudgeQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.judgeQueueSize = size
		}
	}
}

// WithRunQueueSize bounds each run's inbound event queue.
func WithRunQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.runQueueSize = size
		}
	}
}

// WithStreamBufferCap caps the per-run replay buffer. Zero keeps it
// unbounded.
func WithStreamBufferCap(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.streamBufferCap = n
		}
	}
}

// WithListenerBuffer sets the per-subscriber channel slack.
func WithListenerBuffer(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.listenerBuffer = n
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		judgeWorkers:    4,
		judgeQueueSize:  1024,
		runQueueSize:    1024,
		streamBufferCap: 0,
		listenerBuffer:  256,
		logger:          nil, // Will be replaced when service starts
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting arena service...")

	// Default collaborators
	if s.taskGen == nil {
		s.taskGen = llm.NewStaticTaskSource()
	}
	if s.judge == nil {
		s.judge = llm.NewJudge(llm.NewClient(), "")
	}
	if s.executor == nil {
		s.executor = executor.NewScripted()
	}

	// Background context for runs and judgments; cancelled on Stop
	s.runCtx, s.stop = context.WithCancel(context.WithoutCancel(ctx))

	s.judgeQueue = judgequeue.NewInMemoryQueue(
		judgequeue.WithCapacity(s.judgeQueueSize),
	)
	s.races = race.NewManager(s.taskGen, s.judgeQueue, race.WithLogger(s.logger.Named("race")))
	s.runs = stream.NewRegistry(
		stream.WithQueueSize(s.runQueueSize),
		stream.WithBufferCap(s.streamBufferCap),
		stream.WithListenerBuffer(s.listenerBuffer),
		stream.WithLogger(s.logger.Named("stream")),
	)

	s.pool = workerpool.NewPool(s.judgeWorkers, s.judgeQueue, s.judge)
	s.pool.Start(s.runCtx)

	s.started = true
	s.logger.Info(ctx, "arena service started",
		logger.Int("judgeWorkers", s.judgeWorkers),
		logger.Int("judgeQueueSize", s.judgeQueueSize),
		logger.Int("runQueueSize", s.runQueueSize),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping arena service...")

	// Stop worker pool
	if s.pool != nil {
		s.pool.Stop()
	}

	// Close judgment queue
	if s.judgeQueue != nil {
		_ = s.judgeQueue.Close()
	}

	// Cancel in-flight runs
	if s.stop != nil {
		s.stop()
	}

	s.started = false
	s.logger.Info(context.Background(), "arena service stopped")
}

// StartRun launches an ad-hoc agent run for a free-form task. The run is not
// bound to any race; its events only feed the stream.
func (s *Service) StartRun(ctx context.Context, task string) (RunInfo, error) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return RunInfo{}, ErrNotStarted
	}

	run := s.runs.Create(ctx, task, "", nil)
	go s.drive(run)
	return RunInfo{RunID: run.ID(), Task: run.Task(), Status: string(run.State())}, nil
}

// StartAgentRun launches the agent side of a race. The run is registered
// with the race before the executor starts, so every event it emits is
// routed. A race accepts exactly one run.
func (s *Service) StartAgentRun(ctx context.Context, raceID string) (race.Snapshot, RunInfo, error) {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return race.Snapshot{}, RunInfo{}, ErrNotStarted
	}

	r, err := s.races.Get(ctx, raceID)
	if err != nil {
		return race.Snapshot{}, RunInfo{}, err
	}

	run := s.runs.Create(ctx, r.Task.AgentInstructions, raceID, s.races)
	snap, err := s.races.RegisterAgentRun(ctx, raceID, run.ID())
	if err != nil {
		run.Abort()
		s.runs.Remove(run.ID())
		return race.Snapshot{}, RunInfo{}, err
	}

	go s.drive(run)
	return snap, RunInfo{RunID: run.ID(), Task: run.Task(), Status: string(run.State())}, nil
}

// drive runs the executor for one run, publishes the terminal events, and
// removes the run once its dispatch loop has drained everything.
func (s *Service) drive(run *stream.Run) {
	ctx := s.runCtx
	err := s.executor.Run(ctx, run.Task(), run)
	if err != nil {
		run.SetState(stream.RunStateError)
		run.Publish(model.ErrorEvent{Message: err.Error()})
		s.logger.Warn(ctx, "run failed",
			logger.String("runID", run.ID()),
			logger.Error(err),
		)
	} else {
		run.SetState(stream.RunStateCompleted)
	}
	run.Publish(model.CompleteEvent{})

	<-run.Done()
	s.runs.Remove(run.ID())
}

// RunStatus returns the status view of a run.
func (s *Service) RunStatus(ctx context.Context, runID string) (RunInfo, error) {
	run, ok := s.runs.Get(runID)
	if !ok {
		return RunInfo{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return RunInfo{RunID: run.ID(), Task: run.Task(), Status: string(run.State())}, nil
}

// SubscribeRun attaches to a run's event stream. The returned channel
// replays history first, then carries live events until the run completes.
// The cancel function detaches the subscriber without affecting the run.
func (s *Service) SubscribeRun(ctx context.Context, runID string) (<-chan model.RunEvent, func(), error) {
	run, ok := s.runs.Get(runID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	ch := run.Subscribe()
	return ch, func() { run.Unsubscribe(ch) }, nil
}

// CreateRace generates a task and registers a new race.
func (s *Service) CreateRace(ctx context.Context) (race.Snapshot, error) {
	return s.races.Create(ctx)
}

// GetRace returns the current view of a race.
func (s *Service) GetRace(ctx context.Context, raceID string) (race.Snapshot, error) {
	return s.races.Snapshot(ctx, raceID)
}

// StartHumanRace marks the human side of a race as running.
func (s *Service) StartHumanRace(ctx context.Context, raceID string) (race.Snapshot, error) {
	return s.races.MarkHumanStarted(ctx, raceID)
}

// SubmitHuman records the human submission and finalizes when both sides
// are done.
func (s *Service) SubmitHuman(ctx context.Context, raceID string, submission *string) (race.Snapshot, error) {
	return s.races.RecordHumanSubmission(ctx, raceID, submission)
}

// ClearRace drops a race from the registry.
func (s *Service) ClearRace(ctx context.Context, raceID string) {
	s.races.Clear(ctx, raceID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":        s.started,
		"judgeWorkers":   s.judgeWorkers,
		"judgeQueueSize": s.judgeQueueSize,
	}

	if s.started {
		queueLen := s.judgeQueue.Len(ctx)
		stats["judgeQueueLength"] = queueLen
		stats["activeRuns"] = s.runs.Len()
		stats["races"] = s.races.Count(ctx)

		// Update metrics
		metrics.UpdateJudgeQueueSize(queueLen)
		metrics.UpdateActiveRuns(s.runs.Len())
		metrics.UpdateJudgeWorkerCount(s.judgeWorkers)
	}

	return stats
}
