package core

import "github.com/calldeck/calldeck/internal/domain"

// View sinks are the only UI surface the orchestration layer touches.
// They are projection targets, not widgets; rendering lives elsewhere.

type StatusView interface {
	SetStatus(text string)
}

type CallView interface {
	ShowIncoming(peer string)
	ShowActive(peer string)
	SetCallStatus(text string)
	SetElapsed(text string)
	Clear()
}

type RosterView interface {
	// RenderRoster replaces the whole roster; an empty slice is the
	// "no other users" state, not an error.
	RenderRoster(users []domain.User)
}

type LogView interface {
	RenderLogs(entries []domain.LogEntry)
	SetChannelState(state domain.ConnectionState)
}
