package domain

import "time"

type CallDirection string

const (
	DirectionIncoming CallDirection = "incoming"
	DirectionOutgoing CallDirection = "outgoing"
)

type CallState string

const (
	StateIdle        CallState = "idle"
	StateDialing     CallState = "dialing"
	StateRinging     CallState = "ringing"
	StateProgressing CallState = "progressing"
	StateEstablished CallState = "established"
	StateEnded       CallState = "ended"
	StateFailed      CallState = "failed"
)

// Terminal reports whether a session in this state is finished.
func (s CallState) Terminal() bool {
	return s == StateEnded || s == StateFailed
}

// Session is the one active (or just-terminated) call. At most one
// non-terminal Session exists at any time; the controller enforces that.
type Session struct {
	ID            string
	Direction     CallDirection
	Peer          string
	State         CallState
	EstablishedAt time.Time // zero until the call is confirmed
}

type CallOutcome string

const (
	OutcomeActive    CallOutcome = "active"
	OutcomeCompleted CallOutcome = "completed"
	OutcomeFailed    CallOutcome = "failed"
)

// CallRecord is one line of the in-memory call history, display-only.
type CallRecord struct {
	SessionID string
	Direction CallDirection
	Peer      string
	Outcome   CallOutcome
	At        time.Time
}
