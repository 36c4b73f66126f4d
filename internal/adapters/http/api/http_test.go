package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agentrace/arena/internal/adapters/executor"
	"github.com/agentrace/arena/internal/adapters/http/api"
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
}

func (j *instantJudge) Evaluate(ctx context.Context, req model.JudgeRequest) (model.Verdict, error) {
	return j.verdict, nil
}

// testServer spins up a fully wired API over a fast scripted executor.
func testServer() (*httptest.Server, *service.Service) {
	svc := service.New(
		service.WithExecutor(executor.NewScripted(
			executor.WithLatencyRange(5*time.Millisecond, 15*time.Millisecond),
			executor.WithResult("scripted result"),
		)),
		service.WithJudge(&instantJudge{verdict: model.Verdict{
			Winner:     model.WinnerHuman,
			Reasoning:  "faster",
			AgentScore: 6,
			HumanScore: 9,
		}}),
		service.WithJudgeWorkerCount(2),
	)
	if err := svc.Start(context.Background()); err != nil {
		panic(err)
	}
	apiServer := api.NewServer(svc, svc)
	return httptest.NewServer(apiServer.Handler(context.Background())), svc
}

func getJSON(t *httptest.Server, path string, out any) (int, error) {
	resp, err := http.Get(t.URL + path)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func postJSON(t *httptest.Server, path string, body any, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	resp, err := http.Post(t.URL+path, "application/json", reader)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func TestHealthAndStats(t *testing.T) {
	Convey("Given a running API server", t, func() {
		srv, svc := testServer()
		defer srv.Close()
		defer svc.Stop()

		Convey("When hitting the health endpoint", func() {
			var payload map[string]string
			status, err := getJSON(srv, "/healthz", &payload)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, http.StatusOK)
			So(payload["status"], ShouldEqual, "ok")
		})

		Convey("When hitting the stats endpoint", func() {
			var payload map[string]any
			status, err := getJSON(srv, "/stats", &payload)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, http.StatusOK)
			So(payload["started"], ShouldEqual, true)
		})

		Convey("When hitting the metrics endpoint", func() {
			resp, err := http.Get(srv.URL + "/metrics")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})
	})
}

func TestRaceEndpoints(t *testing.T) {
	Convey("Given a running API server", t, func() {
		srv, svc := testServer()
		defer srv.Close()
		defer svc.Stop()

		Convey("When creating a race", func() {
			var snap race.Snapshot
			status, err := postJSON(srv, "/race", nil, &snap)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, http.StatusCreated)
			So(snap.RaceID, ShouldNotBeEmpty)
			So(snap.Status, ShouldEqual, model.RaceReady)

			Convey("Then it should be fetchable", func() {
				var got race.Snapshot
				status, err := getJSON(srv, "/race/"+snap.RaceID, &got)
				So(err, ShouldBeNil)
				So(status, ShouldEqual, http.StatusOK)
				So(got.RaceID, ShouldEqual, snap.RaceID)
			})

			Convey("When the agent side starts", func() {
				var started struct {
					RunID string        `json:"run_id"`
					Race  race.Snapshot `json:"race"`
				}
				status, err := postJSON(srv, "/race/"+snap.RaceID+"/agent/start", nil, &started)
				So(err, ShouldBeNil)
				So(status, ShouldEqual, http.StatusOK)
				So(started.RunID, ShouldNotBeEmpty)
				So(started.Race.Status, ShouldEqual, model.RaceRunning)

				Convey("Then starting a second agent run should conflict", func() {
					status, err := postJSON(srv, "/race/"+snap.RaceID+"/agent/start", nil, nil)
					So(err, ShouldBeNil)
					So(status, ShouldEqual, http.StatusConflict)
				})

				Convey("When the human races and submits", func() {
					status, err := postJSON(srv, "/race/"+snap.RaceID+"/human/start", nil, nil)
					So(err, ShouldBeNil)
					So(status, ShouldEqual, http.StatusOK)

					var afterSubmit race.Snapshot
					status, err = postJSON(srv, "/race/"+snap.RaceID+"/human/submit",
						map[string]string{"submission": "my answer"}, &afterSubmit)
					So(err, ShouldBeNil)
					So(status, ShouldEqual, http.StatusOK)

					Convey("Then the race should reach a verdict", func() {
						final := pollRace(srv, snap.RaceID, 10*time.Second)
						So(final.Status, ShouldEqual, model.RaceCompleted)
						So(final.Verdict, ShouldNotBeNil)
						So(final.Verdict.Winner, ShouldEqual, model.WinnerHuman)
					})
				})
			})

			Convey("When submitting without a body", func() {
				req, err := http.NewRequest(http.MethodPost, srv.URL+"/race/"+snap.RaceID+"/human/submit", nil)
				So(err, ShouldBeNil)
				resp, err := http.DefaultClient.Do(req)
				So(err, ShouldBeNil)
				defer resp.Body.Close()
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
			})

			Convey("When deleting the race", func() {
				req, err := http.NewRequest(http.MethodDelete, srv.URL+"/race/"+snap.RaceID, nil)
				So(err, ShouldBeNil)
				resp, err := http.DefaultClient.Do(req)
				So(err, ShouldBeNil)
				defer resp.Body.Close()
				So(resp.StatusCode, ShouldEqual, http.StatusOK)

				Convey("Then fetching it should 404", func() {
					status, _ := getJSON(srv, "/race/"+snap.RaceID, nil)
					So(status, ShouldEqual, http.StatusNotFound)
				})

				Convey("Then deleting again should still succeed", func() {
					req, err := http.NewRequest(http.MethodDelete, srv.URL+"/race/"+snap.RaceID, nil)
					So(err, ShouldBeNil)
					resp, err := http.DefaultClient.Do(req)
					So(err, ShouldBeNil)
					defer resp.Body.Close()
					So(resp.StatusCode, ShouldEqual, http.StatusOK)
				})
			})
		})

		Convey("When operating on an unknown race", func() {
			status, _ := getJSON(srv, "/race/nonexistent", nil)
			So(status, ShouldEqual, http.StatusNotFound)

			status, _ = postJSON(srv, "/race/nonexistent/agent/start", nil, nil)
			So(status, ShouldEqual, http.StatusNotFound)

			status, _ = postJSON(srv, "/race/nonexistent/human/start", nil, nil)
			So(status, ShouldEqual, http.StatusNotFound)

			status, _ = postJSON(srv, "/race/nonexistent/human/submit", map[string]string{"submission": "x"}, nil)
			So(status, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRunEndpoints(t *testing.T) {
	Convey("Given a running API server", t, func() {
		srv, svc := testServer()
		defer srv.Close()
		defer svc.Stop()

		Convey("When starting an ad-hoc run", func() {
			var info service.RunInfo
			status, err := postJSON(srv, "/run", map[string]string{"task": "find something"}, &info)
			So(err, ShouldBeNil)
			So(status, ShouldEqual, http.StatusOK)
			So(info.RunID, ShouldNotBeEmpty)
			So(info.Task, ShouldEqual, "find something")

			Convey("Then the event stream should play the script and close", func() {
				events := readSSE(srv, info.RunID, 10*time.Second)
				So(len(events), ShouldBeGreaterThan, 3)
				So(events[len(events)-1].kind, ShouldEqual, "complete")

				var sawResult bool
				for _, ev := range events {
					if ev.kind == "result" {
						sawResult = true
						So(ev.data, ShouldContainSubstring, "scripted result")
					}
				}
				So(sawResult, ShouldBeTrue)
			})
		})

		Convey("When starting a run without a task", func() {
			status, _ := postJSON(srv, "/run", map[string]string{"task": "   "}, nil)
			So(status, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When posting a malformed body", func() {
			resp, err := http.Post(srv.URL+"/run", "application/json", strings.NewReader("not json"))
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When querying an unknown run", func() {
			status, _ := getJSON(srv, "/run/nonexistent", nil)
			So(status, ShouldEqual, http.StatusNotFound)

			resp, err := http.Get(srv.URL + "/run/nonexistent/events")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestCORS(t *testing.T) {
	Convey("Given a running API server", t, func() {
		srv, svc := testServer()
		defer srv.Close()
		defer svc.Stop()

		Convey("When sending a preflight request", func() {
			req, err := http.NewRequest(http.MethodOptions, srv.URL+"/race", nil)
			So(err, ShouldBeNil)
			resp, err := http.DefaultClient.Do(req)
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusNoContent)
			So(resp.Header.Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
		})

		Convey("When sending a normal request", func() {
			resp, err := http.Get(srv.URL + "/healthz")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.Header.Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
		})
	})
}

// sseFrame is one parsed server-sent event.
type sseFrame struct {
	kind string
	data string
}

// readSSE consumes the event stream for a run until complete or timeout.
func readSSE(srv *httptest.Server, runID string, timeout time.Duration) []sseFrame {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(srv.URL + "/run/" + runID + "/events")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	var frames []sseFrame
	var current sseFrame
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.kind = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if current.kind != "" {
				frames = append(frames, current)
				if current.kind == "complete" {
					return frames
				}
				current = sseFrame{}
			}
		}
	}
	return frames
}

// pollRace fetches a race until it completes or the timeout passes.
func pollRace(srv *httptest.Server, raceID string, timeout time.Duration) race.Snapshot {
	deadline := time.Now().Add(timeout)
	var snap race.Snapshot
	for time.Now().Before(deadline) {
		status, err := getJSON(srv, "/race/"+raceID, &snap)
		if err == nil && status == http.StatusOK &&
			snap.Status == model.RaceCompleted && snap.Verdict != nil {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	return snap
}
