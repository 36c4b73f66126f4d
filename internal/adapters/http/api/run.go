// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	service "github.com/agentrace/arena/internal/app"
)

// RunDependencies defines the interface for run operations.
type RunDependencies interface {
	StartRun(ctx context.Context, task string) (service.RunInfo, error)
	RunStatus(ctx context.Context, runID string) (service.RunInfo, error)
}

// RunHandler handles agent run requests.
type RunHandler struct {
	deps RunDependencies
}

// NewRunHandler creates a new run handler.
func NewRunHandler(deps RunDependencies) *RunHandler {
	return &RunHandler{deps: deps}
}

// runRequest mirrors the request body for POST /run.
type runRequest struct {
	Task string `json:"task"`
}

func (r runRequest) validate() error {
	if strings.TrimSpace(r.Task) == "" {
		return ErrMissingTask
	}
	return nil
}

// HandleStartRun handles POST /run requests: launch an ad-hoc agent run.
func (h *RunHandler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	info, err := h.deps.StartRun(r.Context(), req.Task)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleGetRun handles GET /run/{runID} requests.
func (h *RunHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	info, err := h.deps.RunStatus(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
