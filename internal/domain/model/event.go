package model

import (
	"encoding/json"
	"fmt"
)

// EventKind discriminates run event variants on the wire.
type EventKind string

// Run event kinds emitted by agent executors.
const (
	KindStatus   EventKind = "status"
	KindLiveURL  EventKind = "live_url"
	KindLog      EventKind = "log"
	KindResult   EventKind = "result"
	KindError    EventKind = "error"
	KindComplete EventKind = "complete"
)

// RunEvent is the closed set of events an agent run can produce. Each
// variant carries only the fields its kind needs.
type RunEvent interface {
	Kind() EventKind
	isRunEvent()
}

// StatusEvent reports an executor status change. The task field is only set
// on the initial "starting" event.
type StatusEvent struct {
	Status ParticipantStatus
	Task   string
}

// LiveURLEvent carries the URL where the agent's browser can be observed.
type LiveURLEvent struct {
	URL string
}

// LogEvent carries a free-form executor log line. It never mutates race
// state; it exists for streaming clients.
type LogEvent struct {
	Message string
}

// ResultEvent carries the agent's final answer.
type ResultEvent struct {
	Result string
}

// ErrorEvent reports an executor failure.
type ErrorEvent struct {
	Message string
}

// CompleteEvent terminates a run's event stream.
type CompleteEvent struct{}

func (StatusEvent) Kind() EventKind   { return KindStatus }
func (LiveURLEvent) Kind() EventKind  { return KindLiveURL }
func (LogEvent) Kind() EventKind      { return KindLog }
func (ResultEvent) Kind() EventKind   { return KindResult }
func (ErrorEvent) Kind() EventKind    { return KindError }
func (CompleteEvent) Kind() EventKind { return KindComplete }

func (StatusEvent) isRunEvent()   {}
func (LiveURLEvent) isRunEvent()  {}
func (LogEvent) isRunEvent()      {}
func (ResultEvent) isRunEvent()   {}
func (ErrorEvent) isRunEvent()    {}
func (CompleteEvent) isRunEvent() {}

// eventEnvelope is the wire shape shared by all kinds. The result field is a
// pointer so "present but empty" stays distinguishable from "absent".
type eventEnvelope struct {
	Type    EventKind         `json:"type"`
	Status  ParticipantStatus `json:"status,omitempty"`
	Task    string            `json:"task,omitempty"`
	URL     string            `json:"url,omitempty"`
	Message string            `json:"message,omitempty"`
	Result  *string           `json:"result,omitempty"`
}

// EncodeEvent serializes a run event for SSE delivery.
func EncodeEvent(e RunEvent) ([]byte, error) {
	env := eventEnvelope{Type: e.Kind()}
	switch ev := e.(type) {
	case StatusEvent:
		env.Status = ev.Status
		env.Task = ev.Task
	case LiveURLEvent:
		env.URL = ev.URL
	case LogEvent:
		env.Message = ev.Message
	case ResultEvent:
		result := ev.Result
		env.Result = &result
	case ErrorEvent:
		env.Message = ev.Message
	case CompleteEvent:
	default:
		return nil, fmt.Errorf("unknown run event type %T", e)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode run event: %w", err)
	}
	return data, nil
}

// DecodeEvent parses a wire payload back into its typed variant.
func DecodeEvent(data []byte) (RunEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode run event: %w", err)
	}
	switch env.Type {
	case KindStatus:
		return StatusEvent{Status: env.Status, Task: env.Task}, nil
	case KindLiveURL:
		return LiveURLEvent{URL: env.URL}, nil
	case KindLog:
		return LogEvent{Message: env.Message}, nil
	case KindResult:
		var result string
		if env.Result != nil {
			result = *env.Result
		}
		return ResultEvent{Result: result}, nil
	case KindError:
		return ErrorEvent{Message: env.Message}, nil
	case KindComplete:
		return CompleteEvent{}, nil
	default:
		return nil, fmt.Errorf("unknown run event kind %q", env.Type)
	}
}
