// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/agentrace/arena/internal/app"
	"github.com/agentrace/arena/internal/domain/race"
)

// RaceDependencies defines the interface for race lifecycle operations.
type RaceDependencies interface {
	CreateRace(ctx context.Context) (race.Snapshot, error)
	GetRace(ctx context.Context, raceID string) (race.Snapshot, error)
	StartAgentRun(ctx context.Context, raceID string) (race.Snapshot, service.RunInfo, error)
	StartHumanRace(ctx context.Context, raceID string) (race.Snapshot, error)
	SubmitHuman(ctx context.Context, raceID string, submission *string) (race.Snapshot, error)
	ClearRace(ctx context.Context, raceID string)
}

// RaceHandler handles race lifecycle requests.
type RaceHandler struct {
	deps RaceDependencies
}

// NewRaceHandler creates a new race handler.
func NewRaceHandler(deps RaceDependencies) *RaceHandler {
	return &RaceHandler{deps: deps}
}

// submitRequest mirrors the request body for POST /race/{raceID}/human/submit.
// A missing or null submission is treated as an empty confirmation.
type submitRequest struct {
	Submission *string `json:"submission"`
}

// agentStartResponse is returned by POST /race/{raceID}/agent/start.
type agentStartResponse struct {
	RunID string        `json:"run_id"`
	Race  race.Snapshot `json:"race"`
}

// HandleCreateRace handles POST /race requests.
func (h *RaceHandler) HandleCreateRace(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.CreateRace(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "task_generation_failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// HandleGetRace handles GET /race/{raceID} requests.
func (h *RaceHandler) HandleGetRace(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.GetRace(r.Context(), chi.URLParam(r, "raceID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleDeleteRace handles DELETE /race/{raceID} requests. Deleting an
// unknown race succeeds; the endpoint is idempotent.
func (h *RaceHandler) HandleDeleteRace(w http.ResponseWriter, r *http.Request) {
	h.deps.ClearRace(r.Context(), chi.URLParam(r, "raceID"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// HandleStartAgent handles POST /race/{raceID}/agent/start requests.
func (h *RaceHandler) HandleStartAgent(w http.ResponseWriter, r *http.Request) {
	snap, run, err := h.deps.StartAgentRun(r.Context(), chi.URLParam(r, "raceID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agentStartResponse{RunID: run.RunID, Race: snap})
}

// HandleStartHuman handles POST /race/{raceID}/human/start requests.
func (h *RaceHandler) HandleStartHuman(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.StartHumanRace(r.Context(), chi.URLParam(r, "raceID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleSubmitHuman handles POST /race/{raceID}/human/submit requests. The
// body is optional: confirmation tasks submit without text.
func (h *RaceHandler) HandleSubmitHuman(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return
		}
	}

	snap, err := h.deps.SubmitHuman(r.Context(), chi.URLParam(r, "raceID"), req.Submission)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
