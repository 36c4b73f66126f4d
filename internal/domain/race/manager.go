package race

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentrace/arena/internal/domain/model"
	"github.com/agentrace/arena/pkg/logger"
	"github.com/agentrace/arena/pkg/metrics"
)

// TaskGenerator produces race assignments. Generation failure aborts race
// creation; nothing is persisted.
type TaskGenerator interface {
	Generate(ctx context.Context) (model.RaceTask, error)
}

// Judgment is a unit of work for the judging queue. Done is the completion
// callback; it runs exactly once per judgment, on success or failure.
type Judgment struct {
	RaceID  string
	Request model.JudgeRequest
	Done    func(verdict model.Verdict, err error)
}

// JudgeQueue accepts judgments for asynchronous execution. Enqueue is
// non-blocking; false means the job was not accepted.
type JudgeQueue interface {
	Enqueue(ctx context.Context, j Judgment) bool
}

// Manager owns the race registry and the run-to-race routing index. One
// Manager is constructed per server instance; there are no package globals.
type Manager struct {
	mu        sync.RWMutex
	races     map[string]*Race
	runToRace map[string]string

	gen    TaskGenerator
	judges JudgeQueue
	log    logger.Logger
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithLogger sets a custom logger for the manager.
func WithLogger(log logger.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewManager constructs a Manager with the given collaborators.
func NewManager(gen TaskGenerator, judges JudgeQueue, opts ...Option) *Manager {
	m := &Manager{
		races:     make(map[string]*Race),
		runToRace: make(map[string]string),
		gen:       gen,
		judges:    judges,
		log:       logger.Get().Named("race"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create generates a task and registers a new race in the ready state.
func (m *Manager) Create(ctx context.Context) (Snapshot, error) {
	start := time.Now()
	task, err := m.gen.Generate(ctx)
	metrics.RecordTaskGenerationLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordTaskGenerationFailure()
		return Snapshot{}, fmt.Errorf("task generation failed: %w", err)
	}

	m.mu.Lock()
	id := newID()
	r := newRace(id, task)
	m.races[id] = r
	m.mu.Unlock()

	metrics.RecordRaceCreated()
	m.log.Info(ctx, "race created",
		logger.String("raceID", id),
		logger.String("taskType", string(task.TaskType)),
		logger.String("title", task.Title),
	)
	return r.Snapshot(), nil
}

// Get returns the race for id.
func (m *Manager) Get(ctx context.Context, raceID string) (*Race, error) {
	m.mu.RLock()
	r, ok := m.races[raceID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, raceID)
	}
	return r, nil
}

// Snapshot returns the current view of a race.
func (m *Manager) Snapshot(ctx context.Context, raceID string) (Snapshot, error) {
	r, err := m.Get(ctx, raceID)
	if err != nil {
		return Snapshot{}, err
	}
	return r.Snapshot(), nil
}

// RegisterAgentRun binds runID to the race and moves the agent side to
// starting. A race accepts exactly one run; a second registration is a
// conflict and leaves the race unmodified.
func (m *Manager) RegisterAgentRun(ctx context.Context, raceID, runID string) (Snapshot, error) {
	r, err := m.Get(ctx, raceID)
	if err != nil {
		return Snapshot{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.AgentRunID != "" {
		return Snapshot{}, fmt.Errorf("%w: race %s already bound to run %s", ErrRunConflict, raceID, r.AgentRunID)
	}
	r.AgentRunID = runID

	m.mu.Lock()
	m.runToRace[runID] = raceID
	m.mu.Unlock()

	r.Status = model.RaceRunning
	r.Agent.Status = model.ParticipantStarting
	r.Agent.markStarted(time.Now().UTC())

	m.log.Info(ctx, "agent run registered",
		logger.String("raceID", raceID),
		logger.String("runID", runID),
	)
	return r.snapshotLocked(), nil
}

// ApplyRunEvent routes an executor event to the race bound to runID. Events
// for unknown runs are dropped silently: they may legitimately race with run
// cleanup.
func (m *Manager) ApplyRunEvent(ctx context.Context, runID string, ev model.RunEvent) {
	m.mu.RLock()
	raceID, bound := m.runToRace[runID]
	var r *Race
	if bound {
		r = m.races[raceID]
	}
	m.mu.RUnlock()
	if r == nil {
		metrics.RecordUnknownRunEvent()
		return
	}

	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e := ev.(type) {
	case model.StatusEvent:
		if e.Status != "" {
			r.Agent.Status = e.Status
			if e.Status == model.ParticipantRunning {
				r.Agent.markStarted(now)
			}
		}
	case model.LiveURLEvent:
		if e.URL != "" {
			url := e.URL
			r.Agent.LiveURL = &url
		}
	case model.LogEvent:
		// carried for subscribers only
	case model.ResultEvent:
		result := e.Result
		r.Agent.Result = &result
		r.Agent.markCompleted(now)
	case model.ErrorEvent:
		r.Agent.Status = model.ParticipantError
	case model.CompleteEvent:
		if r.Agent.Status != model.ParticipantError {
			r.Agent.Status = model.ParticipantCompleted
		}
		r.Agent.markCompleted(now)
		if r.Status != model.RaceJudging && r.Status != model.RaceCompleted &&
			r.Human.Status != model.ParticipantCompleted {
			r.Status = model.RaceAwaitingHuman
		}
		m.detachRun(runID)
	}

	m.tryFinalizeLocked(ctx, r)
}

// MarkHumanStarted moves a pending human participant to running. A no-op for
// an already completed human.
func (m *Manager) MarkHumanStarted(ctx context.Context, raceID string) (Snapshot, error) {
	r, err := m.Get(ctx, raceID)
	if err != nil {
		return Snapshot{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Human.Status == model.ParticipantCompleted {
		return r.snapshotLocked(), nil
	}
	if r.Human.Status == model.ParticipantPending {
		r.Human.Status = model.ParticipantRunning
		r.Human.markStarted(time.Now().UTC())
		if r.Status == model.RaceReady {
			r.Status = model.RaceRunning
		}
	}
	return r.snapshotLocked(), nil
}

// RecordHumanSubmission completes the human side with the given submission
// text (nil is treated as empty) and attempts finalization.
func (m *Manager) RecordHumanSubmission(ctx context.Context, raceID string, submission *string) (Snapshot, error) {
	r, err := m.Get(ctx, raceID)
	if err != nil {
		return Snapshot{}, err
	}

	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Human.Status == model.ParticipantPending {
		r.Human.Status = model.ParticipantRunning
		r.Human.markStarted(now)
	}
	r.Human.Status = model.ParticipantCompleted
	r.Human.markCompleted(now)

	text := ""
	if submission != nil {
		text = *submission
	}
	r.HumanSubmission = &text
	if r.Task.TaskType == model.TaskTypeTextEntry {
		result := text
		r.Human.Result = &result
	}

	m.log.Info(ctx, "human submission recorded",
		logger.String("raceID", raceID),
		logger.Int("length", len(text)),
	)

	m.tryFinalizeLocked(ctx, r)
	return r.snapshotLocked(), nil
}

// tryFinalizeLocked triggers judgment once both sides are ready. Callers
// must hold r.mu; the verdict-nil-and-not-finalizing check-and-set under
// that lock is what guarantees judgment runs at most once.
func (m *Manager) tryFinalizeLocked(ctx context.Context, r *Race) {
	if r.Verdict != nil || r.finalizing {
		return
	}

	agentReady := r.Agent.Result != nil || r.Agent.Status == model.ParticipantError
	var humanReady bool
	if r.Task.TaskType == model.TaskTypeTextEntry {
		humanReady = r.HumanSubmission != nil
	} else {
		humanReady = r.Human.Status == model.ParticipantCompleted
	}
	if !agentReady || !humanReady {
		return
	}

	r.finalizing = true
	r.Status = model.RaceJudging
	metrics.RecordJudgeRequest()

	j := Judgment{
		RaceID: r.ID,
		Request: model.JudgeRequest{
			Task:                 r.Task,
			AgentResult:          r.Agent.Result,
			HumanSubmission:      r.HumanSubmission,
			AgentDurationSeconds: r.Agent.DurationSeconds,
			HumanDurationSeconds: r.Human.DurationSeconds,
		},
		Done: func(verdict model.Verdict, err error) {
			m.completeJudgment(context.WithoutCancel(ctx), r, verdict, err)
		},
	}

	if !m.judges.Enqueue(ctx, j) {
		// The queue refused the job; resolve inline so the race cannot
		// stay stuck in judging. Same outcome as a judge failure.
		metrics.RecordJudgeEnqueueError()
		m.storeVerdictLocked(ctx, r, syntheticTie(fmt.Errorf("judge queue rejected job for race %s", r.ID)))
		r.finalizing = false
	}
}

// completeJudgment is the judgment completion callback. It stores the
// verdict, or a synthetic tie when the judge failed, and always clears the
// finalizing guard.
func (m *Manager) completeJudgment(ctx context.Context, r *Race, verdict model.Verdict, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() { r.finalizing = false }()

	if r.Verdict != nil {
		return
	}
	if err != nil {
		metrics.RecordJudgeFailure()
		m.log.Warn(ctx, "judging failed; recording synthetic tie",
			logger.String("raceID", r.ID),
			logger.Error(err),
		)
		verdict = syntheticTie(err)
	}
	m.storeVerdictLocked(ctx, r, verdict)
}

// storeVerdictLocked records the verdict and completes the race. Callers
// must hold r.mu.
func (m *Manager) storeVerdictLocked(ctx context.Context, r *Race, verdict model.Verdict) {
	v := verdict
	r.Verdict = &v
	r.Status = model.RaceCompleted
	metrics.RecordRaceCompleted(string(v.Winner))
	m.log.Info(ctx, "race completed",
		logger.String("raceID", r.ID),
		logger.String("winner", string(v.Winner)),
		logger.Float64("agentScore", v.AgentScore),
		logger.Float64("humanScore", v.HumanScore),
	)
}

func syntheticTie(err error) model.Verdict {
	return model.Verdict{
		Winner:     model.WinnerTie,
		Reasoning:  fmt.Sprintf("Judging failed: %v", err),
		AgentScore: 0,
		HumanScore: 0,
	}
}

// Clear removes a race and any run index entries pointing at it. Clearing
// an unknown race is a no-op.
func (m *Manager) Clear(ctx context.Context, raceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.races, raceID)
	for runID, rid := range m.runToRace {
		if rid == raceID {
			delete(m.runToRace, runID)
		}
	}
}

// Count returns the number of resident races.
func (m *Manager) Count(ctx context.Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.races)
}

// detachRun drops the run routing entry after a run completes.
func (m *Manager) detachRun(runID string) {
	m.mu.Lock()
	delete(m.runToRace, runID)
	m.mu.Unlock()
}

// newID generates a registry identifier: uuid hex without dashes.
func newID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
