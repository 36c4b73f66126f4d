package executor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/agentrace/arena/internal/adapters/executor"
	"github.com/agentrace/arena/internal/domain/model"
)

// memorySink collects published events.
type memorySink struct {
	mu     sync.Mutex
	events []model.RunEvent
}

func (s *memorySink) Publish(ev model.RunEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return true
}

func (s *memorySink) all() []model.RunEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.RunEvent, len(s.events))
	copy(out, s.events)
	return out
}

func fastOpts(extra ...executor.Option) []executor.Option {
	return append([]executor.Option{
		executor.WithLatencyRange(time.Millisecond, 2*time.Millisecond),
	}, extra...)
}

func TestScriptedRun(t *testing.T) {
	convey.Convey("Given a scripted executor", t, func() {
		ctx := context.Background()
		sink := &memorySink{}

		convey.Convey("When a run succeeds", func() {
			s := executor.NewScripted(fastOpts(
				executor.WithLiveURL("https://live.test/1"),
				executor.WithResult("the answer"),
			)...)
			err := s.Run(ctx, "find the answer", sink)

			convey.Convey("Then the script should play out in order", func() {
				convey.So(err, convey.ShouldBeNil)
				events := sink.all()
				convey.So(len(events), convey.ShouldEqual, 7)

				first, ok := events[0].(model.StatusEvent)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(first.Status, convey.ShouldEqual, model.ParticipantStarting)
				convey.So(first.Task, convey.ShouldEqual, "find the answer")

				live, ok := events[1].(model.LiveURLEvent)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(live.URL, convey.ShouldEqual, "https://live.test/1")

				running, ok := events[2].(model.StatusEvent)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(running.Status, convey.ShouldEqual, model.ParticipantRunning)

				result, ok := events[5].(model.ResultEvent)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(result.Result, convey.ShouldEqual, "the answer")

				last, ok := events[6].(model.StatusEvent)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(last.Status, convey.ShouldEqual, model.ParticipantCompleted)
			})
		})

		convey.Convey("When the executor is configured to fail", func() {
			s := executor.NewScripted(fastOpts(executor.WithFailure("page not found"))...)
			err := s.Run(ctx, "task", sink)

			convey.Convey("Then it should error without emitting a result", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "page not found")
				for _, ev := range sink.all() {
					convey.So(ev.Kind(), convey.ShouldNotEqual, model.KindResult)
				}
			})
		})

		convey.Convey("When the context is cancelled mid-run", func() {
			cancelCtx, cancel := context.WithCancel(ctx)
			s := executor.NewScripted(executor.WithLatencyRange(50*time.Millisecond, 100*time.Millisecond))

			errCh := make(chan error, 1)
			go func() { errCh <- s.Run(cancelCtx, "task", sink) }()
			cancel()

			convey.Convey("Then the run should stop promptly with a cancellation error", func() {
				select {
				case err := <-errCh:
					convey.So(err, convey.ShouldNotBeNil)
					convey.So(err.Error(), convey.ShouldContainSubstring, "run cancelled")
				case <-time.After(2 * time.Second):
					convey.So("run did not stop", convey.ShouldBeEmpty)
				}
			})
		})

		convey.Convey("When two runs share one executor", func() {
			s := executor.NewScripted(fastOpts()...)
			otherSink := &memorySink{}

			var wg sync.WaitGroup
			wg.Add(2)
			var err1, err2 error
			go func() { defer wg.Done(); err1 = s.Run(ctx, "a", sink) }()
			go func() { defer wg.Done(); err2 = s.Run(ctx, "b", otherSink) }()
			wg.Wait()

			convey.Convey("Then both should complete independently", func() {
				convey.So(err1, convey.ShouldBeNil)
				convey.So(err2, convey.ShouldBeNil)
				convey.So(len(sink.all()), convey.ShouldEqual, 7)
				convey.So(len(otherSink.all()), convey.ShouldEqual, 7)
			})
		})
	})
}
