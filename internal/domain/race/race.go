// Package race implements the race state machine: two independently
// progressing participants, asynchronous completion reconciliation, and an
// exactly-once judgment trigger.
package race

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/agentrace/arena/internal/domain/model"
)

// Participant tracks one side of a race.
type Participant struct {
	Status          model.ParticipantStatus
	StartedAt       *time.Time
	CompletedAt     *time.Time
	DurationSeconds *float64
	Result          *string
	LiveURL         *string
}

// markStarted records the start timestamp unless one is already set.
func (p *Participant) markStarted(now time.Time) {
	if p.StartedAt == nil {
		p.StartedAt = &now
	}
}

// markCompleted records the completion timestamp unless one is already set
// and derives the duration once both timestamps are known.
func (p *Participant) markCompleted(now time.Time) {
	if p.CompletedAt == nil {
		p.CompletedAt = &now
	}
	if p.StartedAt != nil && p.DurationSeconds == nil {
		d := p.CompletedAt.Sub(*p.StartedAt).Seconds()
		p.DurationSeconds = &d
	}
}

// Race is the aggregate root. All mutation happens under mu, including the
// finalizing guard check-and-set, which is what makes judgment exactly-once
// under concurrent event arrival.
type Race struct {
	mu sync.Mutex

	ID        string
	Task      model.RaceTask
	CreatedAt time.Time
	Status    model.RaceStatus

	AgentRunID string // empty until an agent run is bound; never reassigned
	Agent      Participant
	Human      Participant

	HumanSubmission *string
	Verdict         *model.Verdict

	finalizing bool
}

func newRace(id string, task model.RaceTask) *Race {
	return &Race{
		ID:        id,
		Task:      task,
		CreatedAt: time.Now().UTC(),
		Status:    model.RaceReady,
		Agent:     Participant{Status: model.ParticipantPending},
		Human:     Participant{Status: model.ParticipantPending},
	}
}

// ParticipantView is the read shape of one participant in a race snapshot.
type ParticipantView struct {
	Status          model.ParticipantStatus `json:"status"`
	StartedAt       *string                 `json:"started_at"`
	CompletedAt     *string                 `json:"completed_at"`
	DurationSeconds *float64                `json:"duration_seconds"`

	result        *string
	liveURL       *string
	includeResult bool
	includeLive   bool
}

// Result returns the participant's result payload, if exposed in this view.
func (v ParticipantView) Result() *string { return v.result }

// LiveURL returns the agent's observation URL, if exposed in this view.
func (v ParticipantView) LiveURL() *string { return v.liveURL }

// MarshalJSON includes the result and live_url keys only for views that
// expose them: the agent view always does, the human view only for
// text_entry tasks.
func (v ParticipantView) MarshalJSON() ([]byte, error) {
	type base struct {
		Status          model.ParticipantStatus `json:"status"`
		StartedAt       *string                 `json:"started_at"`
		CompletedAt     *string                 `json:"completed_at"`
		DurationSeconds *float64                `json:"duration_seconds"`
	}
	b := base{v.Status, v.StartedAt, v.CompletedAt, v.DurationSeconds}
	switch {
	case v.includeResult && v.includeLive:
		return json.Marshal(struct {
			base
			Result  *string `json:"result"`
			LiveURL *string `json:"live_url"`
		}{b, v.result, v.liveURL})
	case v.includeResult:
		return json.Marshal(struct {
			base
			Result *string `json:"result"`
		}{b, v.result})
	default:
		return json.Marshal(b)
	}
}

// UnmarshalJSON restores a view from its wire shape; absent optional keys
// stay nil.
func (v *ParticipantView) UnmarshalJSON(data []byte) error {
	var wire struct {
		Status          model.ParticipantStatus `json:"status"`
		StartedAt       *string                 `json:"started_at"`
		CompletedAt     *string                 `json:"completed_at"`
		DurationSeconds *float64                `json:"duration_seconds"`
		Result          *string                 `json:"result"`
		LiveURL         *string                 `json:"live_url"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	v.Status = wire.Status
	v.StartedAt = wire.StartedAt
	v.CompletedAt = wire.CompletedAt
	v.DurationSeconds = wire.DurationSeconds
	v.result = wire.Result
	v.liveURL = wire.LiveURL
	v.includeResult = wire.Result != nil
	v.includeLive = wire.LiveURL != nil
	return nil
}

// Snapshot is the externally visible state of a race.
type Snapshot struct {
	RaceID  string          `json:"race_id"`
	Status  model.RaceStatus `json:"status"`
	Task    model.RaceTask  `json:"task"`
	Agent   ParticipantView `json:"agent"`
	Human   ParticipantView `json:"human"`
	Verdict *model.Verdict  `json:"verdict"`
}

// snapshotLocked builds a Snapshot. Callers must hold r.mu.
func (r *Race) snapshotLocked() Snapshot {
	return Snapshot{
		RaceID: r.ID,
		Status: r.Status,
		Task:   r.Task,
		Agent: ParticipantView{
			Status:          r.Agent.Status,
			StartedAt:       tsToISO(r.Agent.StartedAt),
			CompletedAt:     tsToISO(r.Agent.CompletedAt),
			DurationSeconds: r.Agent.DurationSeconds,
			result:          r.Agent.Result,
			liveURL:         r.Agent.LiveURL,
			includeResult:   true,
			includeLive:     true,
		},
		Human: ParticipantView{
			Status:          r.Human.Status,
			StartedAt:       tsToISO(r.Human.StartedAt),
			CompletedAt:     tsToISO(r.Human.CompletedAt),
			DurationSeconds: r.Human.DurationSeconds,
			result:          r.Human.Result,
			includeResult:   r.Task.TaskType == model.TaskTypeTextEntry,
		},
		Verdict: r.Verdict,
	}
}

// Snapshot returns a consistent view of the race.
func (r *Race) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func tsToISO(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}
