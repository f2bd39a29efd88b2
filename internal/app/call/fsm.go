package call

import (
	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

// Transition is the pure state machine over adapter-originated events:
// given the current session state and an event type it yields the next
// state. ok is false when the event means nothing in that state, which
// callers treat as a no-op rather than an error; duplicate terminal
// events must be absorbed silently.
//
// Operator commands (accept, reject, hangup) are guarded controller
// methods, not events; accept is what moves Ringing to Progressing.
func Transition(state domain.CallState, ev core.EventType) (domain.CallState, bool) {
	if state.Terminal() {
		return state, false
	}
	switch ev {
	case core.EventProgress:
		if state == domain.StateDialing {
			return domain.StateProgressing, true
		}
		return state, false
	case core.EventConfirmed:
		switch state {
		case domain.StateDialing, domain.StateProgressing:
			return domain.StateEstablished, true
		}
		return state, false
	case core.EventEnded:
		return domain.StateEnded, true
	case core.EventFailed:
		return domain.StateFailed, true
	}
	return state, false
}
