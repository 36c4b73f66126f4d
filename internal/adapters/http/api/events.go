// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentrace/arena/internal/domain/model"
)

// EventDependencies defines the interface for event streaming dependencies.
type EventDependencies interface {
	SubscribeRun(ctx context.Context, runID string) (<-chan model.RunEvent, func(), error)
}

// EventsHandler streams run events over server-sent events.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandleRunEvents handles GET /run/{runID}/events requests. The stream
// replays every event seen so far before carrying live ones, and ends after
// the complete event. Disconnecting never cancels the run.
func (h *EventsHandler) HandleRunEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", ErrStreamingUnsupported)
		return
	}

	events, cancel, err := h.deps.SubscribeRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := model.EncodeEvent(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind(), data)
			flusher.Flush()
			if ev.Kind() == model.KindComplete {
				return
			}
		}
	}
}
