package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentrace/arena/internal/adapters/executor"
	service "github.com/agentrace/arena/internal/app"
	"github.com/agentrace/arena/internal/domain/model"
	"github.com/agentrace/arena/internal/domain/race"
	"github.com/agentrace/arena/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// instantJudge returns a canned verdict without network calls.
type instantJudge struct {
	verdict model.Verdict
	err     error
}

func (j *instantJudge) Evaluate(ctx context.Context, req model.JudgeRequest) (model.Verdict, error) {
	return j.verdict, j.err
}

func defaultJudge() *instantJudge {
	return &instantJudge{verdict: model.Verdict{
		Winner:     model.WinnerAgent,
		Reasoning:  "scripted",
		AgentScore: 8,
		HumanScore: 6,
	}}
}

func fastExecutor(opts ...executor.Option) executor.Runner {
	all := append([]executor.Option{
		executor.WithLatencyRange(time.Millisecond, 2*time.Millisecond),
		executor.WithResult("scripted result"),
	}, opts...)
	return executor.NewScripted(all...)
}

func newTestService(opts ...service.Option) *service.Service {
	all := append([]service.Option{
		service.WithExecutor(fastExecutor()),
		service.WithJudge(defaultJudge()),
		service.WithJudgeWorkerCount(2),
	}, opts...)
	return service.New(all...)
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := newTestService()
		ctx := context.Background()

		Convey("When it has not been started", func() {
			Convey("Then run operations should be refused", func() {
				_, err := svc.StartRun(ctx, "task")
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)

				_, _, err = svc.StartAgentRun(ctx, "race-1")
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})

		Convey("When started", func() {
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			Convey("Then starting again should be a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("Then stats should reflect the running state", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldBeTrue)
				So(stats["judgeWorkers"], ShouldEqual, 2)
				So(stats, ShouldContainKey, "judgeQueueLength")
				So(stats, ShouldContainKey, "activeRuns")
				So(stats, ShouldContainKey, "races")
			})

			Convey("Then stopping twice should not panic", func() {
				svc.Stop()
				So(svc.Stop, ShouldNotPanic)
			})
		})
	})
}

func TestAdHocRuns(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := newTestService()
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When an ad-hoc run is launched", func() {
			info, err := svc.StartRun(ctx, "summarize the front page")
			So(err, ShouldBeNil)

			Convey("Then the run should be queryable while alive", func() {
				So(info.RunID, ShouldNotBeEmpty)
				So(info.Task, ShouldEqual, "summarize the front page")
				So(info.Status, ShouldEqual, "running")
			})

			Convey("Then a subscriber should see the full script", func() {
				events, cancel, err := svc.SubscribeRun(ctx, info.RunID)
				So(err, ShouldBeNil)
				defer cancel()

				kinds := drainKinds(events, 5*time.Second)
				So(kinds, ShouldContain, model.KindStatus)
				So(kinds, ShouldContain, model.KindLiveURL)
				So(kinds, ShouldContain, model.KindResult)
				So(kinds[len(kinds)-1], ShouldEqual, model.KindComplete)
			})

			Convey("Then the run should eventually be cleaned up", func() {
				awaitRunRemoval(ctx, svc, info.RunID)
				_, err := svc.RunStatus(ctx, info.RunID)
				So(errors.Is(err, service.ErrRunNotFound), ShouldBeTrue)
			})
		})

		Convey("When subscribing to an unknown run", func() {
			_, _, err := svc.SubscribeRun(ctx, "nonexistent")
			So(errors.Is(err, service.ErrRunNotFound), ShouldBeTrue)
		})

		Convey("When querying an unknown run", func() {
			_, err := svc.RunStatus(ctx, "nonexistent")
			So(errors.Is(err, service.ErrRunNotFound), ShouldBeTrue)
		})
	})
}

func TestFailingRuns(t *testing.T) {
	Convey("Given a service whose executor always fails", t, func() {
		svc := newTestService(service.WithExecutor(fastExecutor(
			executor.WithFailure("element not found"),
		)))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When a run is launched", func() {
			info, err := svc.StartRun(ctx, "task")
			So(err, ShouldBeNil)

			events, cancel, err := svc.SubscribeRun(ctx, info.RunID)
			So(err, ShouldBeNil)
			defer cancel()

			Convey("Then the stream should end with error and complete", func() {
				var sawError bool
				timeout := time.After(5 * time.Second)
			loop:
				for {
					select {
					case ev, ok := <-events:
						if !ok {
							break loop
						}
						if e, isErr := ev.(model.ErrorEvent); isErr {
							sawError = true
							So(e.Message, ShouldContainSubstring, "element not found")
						}
						if ev.Kind() == model.KindComplete {
							break loop
						}
					case <-timeout:
						break loop
					}
				}
				So(sawError, ShouldBeTrue)
			})
		})
	})
}

func TestRaceOperations(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := newTestService()
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When a race is created", func() {
			snap, err := svc.CreateRace(ctx)
			So(err, ShouldBeNil)
			So(snap.Status, ShouldEqual, model.RaceReady)

			Convey("Then it should be retrievable", func() {
				got, err := svc.GetRace(ctx, snap.RaceID)
				So(err, ShouldBeNil)
				So(got.RaceID, ShouldEqual, snap.RaceID)
			})

			Convey("Then fetching an unknown race should fail", func() {
				_, err := svc.GetRace(ctx, "nonexistent")
				So(errors.Is(err, race.ErrNotFound), ShouldBeTrue)
			})

			Convey("When the agent side starts", func() {
				raceSnap, info, err := svc.StartAgentRun(ctx, snap.RaceID)
				So(err, ShouldBeNil)
				So(info.RunID, ShouldNotBeEmpty)
				So(raceSnap.Status, ShouldEqual, model.RaceRunning)
				So(raceSnap.Agent.Status, ShouldEqual, model.ParticipantStarting)

				Convey("Then a second agent start should conflict", func() {
					_, _, err := svc.StartAgentRun(ctx, snap.RaceID)
					So(errors.Is(err, race.ErrRunConflict), ShouldBeTrue)
				})
			})

			Convey("When starting the agent on an unknown race", func() {
				_, _, err := svc.StartAgentRun(ctx, "nonexistent")
				So(errors.Is(err, race.ErrNotFound), ShouldBeTrue)
			})

			Convey("When the race is cleared", func() {
				svc.ClearRace(ctx, snap.RaceID)
				_, err := svc.GetRace(ctx, snap.RaceID)
				So(errors.Is(err, race.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

// drainKinds consumes events until complete, close, or timeout.
func drainKinds(events <-chan model.RunEvent, timeout time.Duration) []model.EventKind {
	var kinds []model.EventKind
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return kinds
			}
			kinds = append(kinds, ev.Kind())
			if ev.Kind() == model.KindComplete {
				return kinds
			}
		case <-deadline:
			return kinds
		}
	}
}

// awaitRunRemoval polls until the run disappears from the registry.
func awaitRunRemoval(ctx context.Context, svc *service.Service, runID string) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := svc.RunStatus(ctx, runID); err != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}
