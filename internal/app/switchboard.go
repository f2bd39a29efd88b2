package app

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

type liveCall struct {
	ID        string
	Caller    string
	Callee    string
	StartedAt time.Time
	Answered  bool
}

// Switchboard routes call signaling between attached consoles and logs
// every protocol step. One live signal connection per username; a new
// attach replaces the previous one. It never carries media.
type Switchboard struct {
	mu    sync.Mutex
	conns map[string]core.SignalConnection
	calls map[string]*liveCall
	steps *StepLog
}

func NewSwitchboard(steps *StepLog) *Switchboard {
	return &Switchboard{
		conns: make(map[string]core.SignalConnection),
		calls: make(map[string]*liveCall),
		steps: steps,
	}
}

func (s *Switchboard) Attach(username string, conn core.SignalConnection) {
	s.mu.Lock()
	old := s.conns[username]
	s.conns[username] = conn
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	log.Info().Str("module", "app.switchboard").Str("username", username).Msg("signal attached")
	s.steps.Append("SIGNAL ATTACHED", map[string]string{"username": username})
	s.send(username, core.Envelope{Type: core.MsgAttached, To: username})
}

// Detach drops the connection and tears down any call the user is in,
// notifying the other leg with a bye.
func (s *Switchboard) Detach(username string, conn core.SignalConnection) {
	s.mu.Lock()
	if cur, ok := s.conns[username]; !ok || cur != conn {
		// A newer attach already replaced this connection.
		s.mu.Unlock()
		return
	}
	delete(s.conns, username)
	var dropped []*liveCall
	for id, c := range s.calls {
		if c.Caller == username || c.Callee == username {
			dropped = append(dropped, c)
			delete(s.calls, id)
		}
	}
	s.mu.Unlock()

	s.steps.Append("SIGNAL DETACHED", map[string]string{"username": username})
	for _, c := range dropped {
		s.send(c.peerOf(username), core.Envelope{Type: core.MsgBye, CallID: c.ID, From: username})
		s.logCallEnd(c, "peer detached")
	}
}

func (c *liveCall) peerOf(username string) string {
	if c.Caller == username {
		return c.Callee
	}
	return c.Caller
}

// Route dispatches one decoded client message.
func (s *Switchboard) Route(from string, env core.Envelope) {
	switch env.Type {
	case core.MsgInvite:
		s.routeInvite(from, env)
	case core.MsgAccept:
		s.routeAccept(from, env)
	case core.MsgReject:
		s.routeReject(from, env)
	case core.MsgBye:
		s.routeBye(from, env)
	case core.MsgCandidate:
		s.routeCandidate(from, env)
	default:
		log.Warn().Str("module", "app.switchboard").Str("type", env.Type).Msg("unknown signal")
	}
}

func (s *Switchboard) routeInvite(from string, env core.Envelope) {
	callID := uuid.NewString()

	s.mu.Lock()
	_, calleeUp := s.conns[env.To]
	if calleeUp {
		s.calls[callID] = &liveCall{ID: callID, Caller: from, Callee: env.To, StartedAt: time.Now()}
	}
	s.mu.Unlock()

	s.steps.Append("CALL INVITE", map[string]string{
		"caller":  from,
		"callee":  env.To,
		"call_id": callID,
	})

	if !calleeUp {
		s.send(from, core.Envelope{Type: core.MsgError, CallID: callID, Cause: domain.ErrPeerUnavailable.Error()})
		s.steps.Append("CALL FAILED", map[string]string{
			"caller": from, "callee": env.To, "cause": "peer unavailable",
		})
		return
	}

	s.send(env.To, core.Envelope{Type: core.MsgInvite, From: from, CallID: callID, SDP: env.SDP})
	s.send(from, core.Envelope{Type: core.MsgRinging, From: env.To, CallID: callID})
	s.steps.Append("CALL RINGING", map[string]string{
		"caller": from, "callee": env.To, "call_id": callID,
	})
}

func (s *Switchboard) routeAccept(from string, env core.Envelope) {
	c, ok := s.call(env.CallID)
	if !ok || c.Callee != from {
		s.send(from, core.Envelope{Type: core.MsgError, CallID: env.CallID, Cause: "no such call"})
		return
	}
	s.mu.Lock()
	c.Answered = true
	s.mu.Unlock()

	s.send(c.Caller, core.Envelope{Type: core.MsgAccepted, From: from, CallID: c.ID, SDP: env.SDP})
	s.steps.Append("CALL ACCEPTED (200 OK)", map[string]string{
		"caller": c.Caller, "callee": c.Callee, "call_id": c.ID,
	})
}

func (s *Switchboard) routeReject(from string, env core.Envelope) {
	c, ok := s.takeCall(env.CallID)
	if !ok {
		return
	}
	s.send(c.peerOf(from), core.Envelope{Type: core.MsgRejected, From: from, CallID: c.ID})
	s.steps.Append("CALL REJECTED", map[string]string{
		"caller": c.Caller, "callee": c.Callee, "call_id": c.ID,
	})
}

func (s *Switchboard) routeBye(from string, env core.Envelope) {
	c, ok := s.takeCall(env.CallID)
	if !ok {
		return
	}
	s.send(c.peerOf(from), core.Envelope{Type: core.MsgBye, From: from, CallID: c.ID})
	s.logCallEnd(c, "bye from "+from)
}

func (s *Switchboard) routeCandidate(from string, env core.Envelope) {
	c, ok := s.call(env.CallID)
	if !ok {
		return
	}
	s.send(c.peerOf(from), core.Envelope{Type: core.MsgCandidate, From: from, CallID: c.ID, Candidate: env.Candidate})
}

// NotifyCallRequest delivers the declarative /call/initiate ping. It
// does not create a call; actual setup still flows through invite.
func (s *Switchboard) NotifyCallRequest(caller, callee string) error {
	s.steps.Append("CALL INITIATE REQUEST", map[string]string{
		"caller": caller, "callee": callee,
	})
	s.mu.Lock()
	_, ok := s.conns[callee]
	s.mu.Unlock()
	if !ok {
		return domain.ErrPeerUnavailable
	}
	s.send(callee, core.Envelope{Type: core.MsgCallRequest, From: caller})
	return nil
}

func (s *Switchboard) call(id string) (*liveCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	return c, ok
}

func (s *Switchboard) takeCall(id string) (*liveCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if ok {
		delete(s.calls, id)
	}
	return c, ok
}

func (s *Switchboard) logCallEnd(c *liveCall, reason string) {
	s.steps.Append("CALL ENDED (BYE)", map[string]string{
		"caller":  c.Caller,
		"callee":  c.Callee,
		"call_id": c.ID,
		"reason":  reason,
	})
}

func (s *Switchboard) send(username string, env core.Envelope) {
	s.mu.Lock()
	conn, ok := s.conns[username]
	s.mu.Unlock()
	if !ok {
		return
	}
	frame, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "app.switchboard").Msg("encode envelope")
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.switchboard").Str("username", username).Msg("send failed")
	}
}
