// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/agentrace/arena/internal/app"
	"github.com/agentrace/arena/internal/domain/model"
	"github.com/agentrace/arena/internal/domain/race"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Race lifecycle operations.
	CreateRace(ctx context.Context) (race.Snapshot, error)
	GetRace(ctx context.Context, raceID string) (race.Snapshot, error)
	StartAgentRun(ctx context.Context, raceID string) (race.Snapshot, service.RunInfo, error)
	StartHumanRace(ctx context.Context, raceID string) (race.Snapshot, error)
	SubmitHuman(ctx context.Context, raceID string, submission *string) (race.Snapshot, error)
	ClearRace(ctx context.Context, raceID string)

	// Run operations.
	StartRun(ctx context.Context, task string) (service.RunInfo, error)
	RunStatus(ctx context.Context, runID string) (service.RunInfo, error)
	SubscribeRun(ctx context.Context, runID string) (<-chan model.RunEvent, func(), error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	raceHandler   *RaceHandler
	runHandler    *RunHandler
	eventsHandler *EventsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		raceHandler:   NewRaceHandler(deps),
		runHandler:    NewRunHandler(deps),
		eventsHandler: NewEventsHandler(deps),
	}
}

// Handler builds the routed HTTP handler for the API.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(CORSMiddleware)

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/race", func(r chi.Router) {
		r.Post("/", MetricsMiddleware(s.raceHandler.HandleCreateRace, "race_create"))
		r.Get("/{raceID}", MetricsMiddleware(s.raceHandler.HandleGetRace, "race_get"))
		r.Delete("/{raceID}", MetricsMiddleware(s.raceHandler.HandleDeleteRace, "race_delete"))
		r.Post("/{raceID}/agent/start", MetricsMiddleware(s.raceHandler.HandleStartAgent, "race_agent_start"))
		r.Post("/{raceID}/human/start", MetricsMiddleware(s.raceHandler.HandleStartHuman, "race_human_start"))
		r.Post("/{raceID}/human/submit", MetricsMiddleware(s.raceHandler.HandleSubmitHuman, "race_human_submit"))
	})

	r.Route("/run", func(r chi.Router) {
		r.Post("/", MetricsMiddleware(s.runHandler.HandleStartRun, "run_start"))
		r.Get("/{runID}", MetricsMiddleware(s.runHandler.HandleGetRun, "run_get"))
		r.Get("/{runID}/events", s.eventsHandler.HandleRunEvents)
	})

	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError translates domain sentinel errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, race.ErrNotFound), errors.Is(err, service.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, race.ErrRunConflict):
		writeError(w, http.StatusConflict, "conflict", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
