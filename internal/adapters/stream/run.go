// Package stream implements per-run event broadcasting: a single dispatch
// loop per run drains an inbound queue, routes events to the owning race,
// keeps a replay buffer for late subscribers, and fans out to listeners.
package stream

import (
	"context"
	"sync"

	"github.com/agentrace/arena/internal/domain/model"
	"github.com/agentrace/arena/pkg/logger"
	"github.com/agentrace/arena/pkg/metrics"
)

// Default stream configuration constants.
const (
	defaultQueueSize      = 1024
	defaultListenerBuffer = 256
)

// Router receives events for runs that are bound to a race.
type Router interface {
	ApplyRunEvent(ctx context.Context, runID string, ev model.RunEvent)
}

// RunState mirrors the coarse state of the driving executor task.
type RunState string

// Run states reported by GET /run/{id}.
const (
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateError     RunState = "error"
)

// Run is a single agent execution's event stream. The executor publishes
// into it; the dispatch loop owns everything downstream.
type Run struct {
	id     string
	task   string
	raceID string

	in     chan model.RunEvent
	cancel context.CancelFunc

	mu        sync.Mutex
	buffer    []model.RunEvent
	bufferCap int // 0 means unbounded replay
	listeners map[chan model.RunEvent]struct{}
	listenBuf int
	state     RunState
	finished  bool // dispatch loop returned

	dispatched chan struct{}

	router Router
	log    logger.Logger
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Task returns the instruction the run was launched with.
func (r *Run) Task() string { return r.task }

// RaceID returns the owning race id, or empty for an ad-hoc run.
func (r *Run) RaceID() string { return r.raceID }

// State reports the executor task state.
func (r *Run) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SetState records the executor task outcome.
func (r *Run) SetState(s RunState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Publish enqueues an event for dispatch without blocking. It returns false
// when the inbound queue is full or the stream already finished.
func (r *Run) Publish(ev model.RunEvent) bool {
	r.mu.Lock()
	finished := r.finished
	r.mu.Unlock()
	if finished {
		return false
	}
	select {
	case r.in <- ev:
		metrics.RecordRunEvent(string(ev.Kind()))
		return true
	default:
		metrics.RecordRunEventDrop()
		return false
	}
}

// Done is closed once the dispatch loop has processed its final event.
func (r *Run) Done() <-chan struct{} { return r.dispatched }

// Subscribe returns a listener channel that first replays every event seen
// so far, in order, then receives live events. The channel is closed after
// the complete event, or right after replay if the run already finished.
func (r *Run) Subscribe() <-chan model.RunEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan model.RunEvent, len(r.buffer)+r.listenBuf)
	for _, ev := range r.buffer {
		ch <- ev
	}
	if r.finished {
		close(ch)
		return ch
	}
	r.listeners[ch] = struct{}{}
	metrics.AddStreamSubscriber()
	return ch
}

// Unsubscribe detaches a listener. Detaching never affects the replay
// buffer or other listeners, and never cancels the run.
func (r *Run) Unsubscribe(ch <-chan model.RunEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for l := range r.listeners {
		if l == ch {
			delete(r.listeners, l)
			close(l)
			metrics.RemoveStreamSubscriber()
			break
		}
	}
}

// dispatch drains the inbound queue until a complete event or cancellation.
// Each event is routed to the owning race first, then buffered, then fanned
// out; listener sends never block.
func (r *Run) dispatch(ctx context.Context) {
	defer close(r.dispatched)
	defer r.closeListeners()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.in:
			if r.raceID != "" && r.router != nil {
				r.router.ApplyRunEvent(ctx, r.id, ev)
			}
			r.fanOut(ev)
			if ev.Kind() == model.KindComplete {
				return
			}
		}
	}
}

func (r *Run) fanOut(ev model.RunEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bufferCap == 0 || len(r.buffer) < r.bufferCap {
		r.buffer = append(r.buffer, ev)
	}
	for l := range r.listeners {
		select {
		case l <- ev:
		default:
			// Slow subscriber; drop for this listener only.
			metrics.RecordListenerDrop()
		}
	}
}

func (r *Run) closeListeners() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = true
	for l := range r.listeners {
		close(l)
		delete(r.listeners, l)
		metrics.RemoveStreamSubscriber()
	}
}

// Abort cancels the dispatch loop. Used when binding a run to its race
// fails after the stream was created.
func (r *Run) Abort() {
	r.cancel()
}
