// Package worker runs the judgment worker pool. Workers pull judgment jobs
// off the queue, consult the judge collaborator, and invoke the job's
// completion callback on every exit path so the race's finalizing guard is
// always released.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/agentrace/arena/internal/adapters/mq/queue"
	"github.com/agentrace/arena/internal/domain/model"
	"github.com/agentrace/arena/pkg/logger"
	"github.com/agentrace/arena/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount    = 4
	workerShutdownTimeout = 5 * time.Second
)

// Judge evaluates both participants and returns a verdict.
type Judge interface {
	Evaluate(ctx context.Context, req model.JudgeRequest) (model.Verdict, error)
}

// Queue defines how workers receive judgment jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes judgment jobs until stopped.
type Worker struct {
	queue Queue
	judge Judge
	name  string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewWorker creates a worker with configuration options.
func NewWorker(q Queue, judge Judge, opts ...Option) *Worker {
	w := &Worker{
		queue:    q,
		judge:    judge,
		name:     "judge-worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("judge-worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the worker loop.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, job)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *Worker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process evaluates one judgment and reports the outcome through the job's
// callback. The callback is invoked exactly once, even if the judge panics.
func (w *Worker) process(ctx context.Context, job queue.Job) {
	start := time.Now()

	var verdict model.Verdict
	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("judge panicked: %v", p)
			}
		}()
		verdict, err = w.judge.Evaluate(ctx, job.Request)
	}()

	metrics.RecordJudgeLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		w.logger.Error(ctx, "judgment failed",
			logger.String("raceID", job.RaceID),
			logger.Error(err),
		)
	}
	job.Done(verdict, err)
}

// Pool manages multiple judgment workers.
type Pool struct {
	workers []*Worker

	shutdown chan struct{}
	logger   logger.Logger
}

// NewPool creates a worker pool of the given size.
func NewPool(workerCount int, q Queue, judge Judge) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	p := &Pool{
		workers:  make([]*Worker, workerCount),
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("judge-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewWorker(q, judge, WithName(fmt.Sprintf("judge-worker-%d", i)))
	}
	metrics.UpdateJudgeWorkerCount(workerCount)
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	close(p.shutdown)
	for _, w := range p.workers {
		select {
		case <-w.shutdown:
		default:
			close(w.shutdown)
		}
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}
