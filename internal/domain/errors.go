package domain

import "errors"

var (
	// ErrBusy rejects a second call while a session exists.
	ErrBusy = errors.New("call already in progress")
	// ErrNotRegistered rejects outgoing calls before registration.
	ErrNotRegistered = errors.New("not registered")
	// ErrEmptyTarget rejects a call with an empty dial string.
	ErrEmptyTarget = errors.New("empty dial target")
	// ErrRegistrationPending rejects a re-submitted register while one
	// is still in flight.
	ErrRegistrationPending = errors.New("registration in flight")
	// ErrUnknownUser is returned for operations on usernames the
	// directory has never seen.
	ErrUnknownUser = errors.New("unknown user")
	// ErrPeerUnavailable means the switchboard has no live signal
	// connection for the addressed peer.
	ErrPeerUnavailable = errors.New("peer unavailable")
)
