package model

// ParticipantStatus tracks one side of a race.
type ParticipantStatus string

// Participant statuses.
const (
	ParticipantPending   ParticipantStatus = "pending"
	ParticipantStarting  ParticipantStatus = "starting"
	ParticipantRunning   ParticipantStatus = "running"
	ParticipantCompleted ParticipantStatus = "completed"
	ParticipantError     ParticipantStatus = "error"
)

// RaceStatus is the race-level lifecycle state. Transitions only move
// forward: ready -> running -> awaiting_human -> judging -> completed.
type RaceStatus string

// Race statuses.
const (
	RaceReady         RaceStatus = "ready"
	RaceRunning       RaceStatus = "running"
	RaceAwaitingHuman RaceStatus = "awaiting_human"
	RaceJudging       RaceStatus = "judging"
	RaceCompleted     RaceStatus = "completed"
)
