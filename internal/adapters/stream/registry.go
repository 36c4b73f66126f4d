package stream

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/google/uuid"

	"github.com/agentrace/arena/internal/domain/model"
	"github.com/agentrace/arena/pkg/logger"
	"github.com/agentrace/arena/pkg/metrics"
)

// Registry maps run identifiers to live streams. Run creation happens under
// the registry mutex so identifier generation and insertion are serialized.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*Run

	queueSize int
	bufferCap int
	listenBuf int
	log       logger.Logger
}

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithQueueSize bounds each run's inbound event queue.
func WithQueueSize(n int) Option {
	return func(g *Registry) {
		if n > 0 {
			g.queueSize = n
		}
	}
}

// WithBufferCap caps each run's replay buffer. Zero keeps it unbounded;
// once capped, later events still fan out live but are not replayed.
func WithBufferCap(n int) Option {
	return func(g *Registry) {
		if n >= 0 {
			g.bufferCap = n
		}
	}
}

// WithListenerBuffer sets the per-listener channel buffer.
func WithListenerBuffer(n int) Option {
	return func(g *Registry) {
		if n > 0 {
			g.listenBuf = n
		}
	}
}

// WithLogger sets a custom logger for the registry.
func WithLogger(log logger.Logger) Option {
	return func(g *Registry) {
		if log != nil {
			g.log = log
		}
	}
}

// NewRegistry constructs a run registry.
func NewRegistry(opts ...Option) *Registry {
	g := &Registry{
		runs:      make(map[string]*Run),
		queueSize: defaultQueueSize,
		listenBuf: defaultListenerBuffer,
		log:       logger.Get().Named("stream"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Create registers a new run and starts its dispatch loop. raceID may be
// empty for ad-hoc runs; router receives events only for bound runs.
func (g *Registry) Create(ctx context.Context, task, raceID string, router Router) *Run {
	dispatchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	g.mu.Lock()
	u := uuid.New()
	id := hex.EncodeToString(u[:])
	r := &Run{
		id:         id,
		task:       task,
		raceID:     raceID,
		in:         make(chan model.RunEvent, g.queueSize),
		cancel:     cancel,
		bufferCap:  g.bufferCap,
		listeners:  make(map[chan model.RunEvent]struct{}),
		listenBuf:  g.listenBuf,
		state:      RunStateRunning,
		dispatched: make(chan struct{}),
		router:     router,
		log:        g.log,
	}
	g.runs[id] = r
	g.mu.Unlock()

	go r.dispatch(dispatchCtx)

	metrics.RecordRunStarted()
	metrics.UpdateActiveRuns(g.Len())
	g.log.Info(ctx, "run created",
		logger.String("runID", id),
		logger.String("raceID", raceID),
	)
	return r
}

// Get returns the run for id.
func (g *Registry) Get(runID string) (*Run, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.runs[runID]
	return r, ok
}

// Remove drops a run from the registry. Callers remove a run only after its
// driving task and dispatch loop have both finished.
func (g *Registry) Remove(runID string) {
	g.mu.Lock()
	delete(g.runs, runID)
	g.mu.Unlock()
	metrics.UpdateActiveRuns(g.Len())
}

// Len returns the number of live runs.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.runs)
}
