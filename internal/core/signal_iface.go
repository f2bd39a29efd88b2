package core

import (
	"context"

	"github.com/calldeck/calldeck/internal/domain"
)

// Frame is a raw signaling payload.
type Frame []byte

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

type MediaOptions struct {
	Audio bool
	Video bool
}

type EventType string

const (
	EventConnected          EventType = "connected"
	EventDisconnected       EventType = "disconnected"
	EventRegistered         EventType = "registered"
	EventRegistrationFailed EventType = "registration_failed"
	EventNewSession         EventType = "new_session"
	EventProgress           EventType = "progress"
	EventConfirmed          EventType = "confirmed"
	EventEnded              EventType = "ended"
	EventFailed             EventType = "failed"
)

// AdapterEvent is the union the session controller consumes. Session is
// set for new_session and all per-session events.
type AdapterEvent struct {
	Type    EventType
	Cause   string
	Session SignalSession
}

// SignalingAdapter is the call-setup contract the controller depends on.
// The concrete implementation lives in adapters/signal.
type SignalingAdapter interface {
	Start(ctx context.Context) error
	Stop()
	IsRegistered() bool
	PlaceCall(target string, opts MediaOptions) (SignalSession, error)
	// OnEvent installs the single event callback; must be set before Start.
	OnEvent(fn func(AdapterEvent))
}

// SignalSession is one adapter-level call leg.
type SignalSession interface {
	ID() string
	Direction() domain.CallDirection
	PeerIdentity() string
	Answer(opts MediaOptions) error
	Terminate() error
	// RemoteAudio is nil until the session is confirmed.
	RemoteAudio() MediaSource
}
