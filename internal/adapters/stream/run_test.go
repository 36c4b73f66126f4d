package stream_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/agentrace/arena/internal/adapters/stream"
	"github.com/agentrace/arena/internal/domain/model"
	"github.com/agentrace/arena/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// captureRouter records events routed to the race side.
type captureRouter struct {
	mu     sync.Mutex
	events []model.RunEvent
	runIDs []string
}

func (c *captureRouter) ApplyRunEvent(ctx context.Context, runID string, ev model.RunEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	c.runIDs = append(c.runIDs, runID)
}

func (c *captureRouter) seen() []model.RunEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.RunEvent, len(c.events))
	copy(out, c.events)
	return out
}

// collect drains a listener channel until it closes or the timeout fires.
func collect(ch <-chan model.RunEvent, timeout time.Duration) []model.RunEvent {
	var out []model.RunEvent
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			return out
		}
	}
}

func TestRunPublishSubscribe(t *testing.T) {
	convey.Convey("Given a run with one subscriber", t, func() {
		ctx := context.Background()
		reg := stream.NewRegistry()
		run := reg.Create(ctx, "navigate somewhere", "", nil)

		convey.Convey("When events are published and the run completes", func() {
			ch := run.Subscribe()
			convey.So(run.Publish(model.StatusEvent{Status: model.ParticipantStarting}), convey.ShouldBeTrue)
			convey.So(run.Publish(model.LogEvent{Message: "working"}), convey.ShouldBeTrue)
			convey.So(run.Publish(model.ResultEvent{Result: "done"}), convey.ShouldBeTrue)
			convey.So(run.Publish(model.CompleteEvent{}), convey.ShouldBeTrue)

			events := collect(ch, time.Second)

			convey.Convey("Then the subscriber should see every event in order", func() {
				convey.So(events, convey.ShouldHaveLength, 4)
				convey.So(events[0], convey.ShouldResemble, model.RunEvent(model.StatusEvent{Status: model.ParticipantStarting}))
				convey.So(events[1], convey.ShouldResemble, model.RunEvent(model.LogEvent{Message: "working"}))
				convey.So(events[2], convey.ShouldResemble, model.RunEvent(model.ResultEvent{Result: "done"}))
				convey.So(events[3], convey.ShouldResemble, model.RunEvent(model.CompleteEvent{}))
			})

			convey.Convey("Then the dispatch loop should finish", func() {
				select {
				case <-run.Done():
				case <-time.After(time.Second):
					convey.So("dispatch did not finish", convey.ShouldBeEmpty)
				}
			})

			convey.Convey("Then publishing after completion should be refused", func() {
				<-run.Done()
				convey.So(run.Publish(model.LogEvent{Message: "late"}), convey.ShouldBeFalse)
			})
		})
	})
}

func TestRunReplay(t *testing.T) {
	convey.Convey("Given a run that already saw events", t, func() {
		ctx := context.Background()
		reg := stream.NewRegistry()
		run := reg.Create(ctx, "task", "", nil)

		early := run.Subscribe()
		run.Publish(model.StatusEvent{Status: model.ParticipantStarting})
		run.Publish(model.LogEvent{Message: "first"})
		// Wait for the dispatch loop to process both.
		waitFor(early, 2, time.Second)

		convey.Convey("When a late subscriber attaches", func() {
			late := run.Subscribe()

			convey.Convey("Then it should replay history before live events", func() {
				run.Publish(model.LogEvent{Message: "second"})
				run.Publish(model.CompleteEvent{})

				events := collect(late, time.Second)
				convey.So(len(events), convey.ShouldEqual, 4)
				convey.So(events[0], convey.ShouldResemble, model.RunEvent(model.StatusEvent{Status: model.ParticipantStarting}))
				convey.So(events[1], convey.ShouldResemble, model.RunEvent(model.LogEvent{Message: "first"}))
				convey.So(events[2], convey.ShouldResemble, model.RunEvent(model.LogEvent{Message: "second"}))
				convey.So(events[3], convey.ShouldResemble, model.RunEvent(model.CompleteEvent{}))
			})
		})

		convey.Convey("When subscribing after the run finished", func() {
			run.Publish(model.CompleteEvent{})
			<-run.Done()

			post := run.Subscribe()
			events := collect(post, time.Second)

			convey.Convey("Then it should get the full history and an immediate close", func() {
				convey.So(len(events), convey.ShouldEqual, 3)
				convey.So(events[len(events)-1], convey.ShouldResemble, model.RunEvent(model.CompleteEvent{}))
			})
		})
	})
}

func TestRunBufferCap(t *testing.T) {
	convey.Convey("Given a registry with a capped replay buffer", t, func() {
		ctx := context.Background()
		reg := stream.NewRegistry(stream.WithBufferCap(2))
		run := reg.Create(ctx, "task", "", nil)

		syncCh := run.Subscribe()
		live := run.Subscribe()
		run.Publish(model.LogEvent{Message: "one"})
		run.Publish(model.LogEvent{Message: "two"})
		run.Publish(model.LogEvent{Message: "three"})
		waitFor(syncCh, 3, time.Second)

		convey.Convey("When a late subscriber attaches", func() {
			late := run.Subscribe()
			run.Publish(model.CompleteEvent{})

			convey.Convey("Then only the buffered prefix should replay", func() {
				events := collect(late, time.Second)
				convey.So(len(events), convey.ShouldEqual, 3)
				convey.So(events[0], convey.ShouldResemble, model.RunEvent(model.LogEvent{Message: "one"}))
				convey.So(events[1], convey.ShouldResemble, model.RunEvent(model.LogEvent{Message: "two"}))
				convey.So(events[2], convey.ShouldResemble, model.RunEvent(model.CompleteEvent{}))
			})

			convey.Convey("Then the live subscriber should still see everything", func() {
				events := collect(live, time.Second)
				convey.So(len(events), convey.ShouldEqual, 4)
			})
		})
	})
}

func TestRunUnsubscribe(t *testing.T) {
	convey.Convey("Given a run with two subscribers", t, func() {
		ctx := context.Background()
		reg := stream.NewRegistry()
		run := reg.Create(ctx, "task", "", nil)
		a := run.Subscribe()
		b := run.Subscribe()

		convey.Convey("When one unsubscribes", func() {
			run.Unsubscribe(a)

			convey.Convey("Then its channel should close and the other keeps receiving", func() {
				_, open := <-a
				convey.So(open, convey.ShouldBeFalse)

				run.Publish(model.LogEvent{Message: "still here"})
				run.Publish(model.CompleteEvent{})
				events := collect(b, time.Second)
				convey.So(len(events), convey.ShouldEqual, 2)
			})

			convey.Convey("Then unsubscribing twice should not panic", func() {
				convey.So(func() { run.Unsubscribe(a) }, convey.ShouldNotPanic)
			})
		})
	})
}

func TestRunRouting(t *testing.T) {
	convey.Convey("Given a run bound to a race", t, func() {
		ctx := context.Background()
		reg := stream.NewRegistry()
		router := &captureRouter{}
		run := reg.Create(ctx, "task", "race-1", router)

		convey.Convey("When events flow through", func() {
			run.Publish(model.ResultEvent{Result: "answer"})
			run.Publish(model.CompleteEvent{})
			<-run.Done()

			convey.Convey("Then the router should see them with the run id", func() {
				events := router.seen()
				convey.So(events, convey.ShouldHaveLength, 2)
				convey.So(events[0], convey.ShouldResemble, model.RunEvent(model.ResultEvent{Result: "answer"}))
				convey.So(router.runIDs[0], convey.ShouldEqual, run.ID())
			})
		})
	})

	convey.Convey("Given an ad-hoc run with no race", t, func() {
		ctx := context.Background()
		reg := stream.NewRegistry()
		router := &captureRouter{}
		run := reg.Create(ctx, "task", "", router)

		convey.Convey("When events flow through", func() {
			run.Publish(model.LogEvent{Message: "solo"})
			run.Publish(model.CompleteEvent{})
			<-run.Done()

			convey.Convey("Then the router should not be called", func() {
				convey.So(router.seen(), convey.ShouldBeEmpty)
			})
		})
	})
}

func TestRunAbort(t *testing.T) {
	convey.Convey("Given a running stream", t, func() {
		ctx := context.Background()
		reg := stream.NewRegistry()
		run := reg.Create(ctx, "task", "", nil)
		ch := run.Subscribe()

		convey.Convey("When the run is aborted", func() {
			run.Abort()

			convey.Convey("Then the dispatch loop should stop and listeners close", func() {
				select {
				case <-run.Done():
				case <-time.After(time.Second):
					convey.So("dispatch did not stop", convey.ShouldBeEmpty)
				}
				collect(ch, time.Second)
				convey.So(run.Publish(model.LogEvent{Message: "late"}), convey.ShouldBeFalse)
			})
		})
	})
}

func TestRunState(t *testing.T) {
	convey.Convey("Given a fresh run", t, func() {
		ctx := context.Background()
		reg := stream.NewRegistry()
		run := reg.Create(ctx, "task", "", nil)

		convey.Convey("Then it should start in the running state", func() {
			convey.So(run.State(), convey.ShouldEqual, stream.RunStateRunning)
		})

		convey.Convey("When the state is updated", func() {
			run.SetState(stream.RunStateError)
			convey.So(run.State(), convey.ShouldEqual, stream.RunStateError)
		})
	})
}

// waitFor blocks until n events have arrived on ch or the timeout fires.
func waitFor(ch <-chan model.RunEvent, n int, timeout time.Duration) {
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-deadline:
			return
		}
	}
}
