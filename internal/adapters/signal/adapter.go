// Package signal implements the console's signaling adapter on top of
// the backend switchboard websocket, with one WebRTC peer connection
// per call leg.
package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/adapters/rtc"
	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

type Adapter struct {
	wsURL    string
	username string
	rtcCfg   webrtc.Configuration

	mu         sync.Mutex
	conn       *websocket.Conn
	send       chan core.Frame
	cancel     context.CancelFunc
	registered bool
	sessions   map[string]*callSession
	pending    *callSession // outgoing leg awaiting its server call_id

	events func(core.AdapterEvent)
}

// New builds an adapter for ws(s)://<host>/ws/signal. The username must
// already be registered with the directory.
func New(wsBase, username string) *Adapter {
	return &Adapter{
		wsURL:    fmt.Sprintf("%s/ws/signal?username=%s", wsBase, username),
		username: username,
		rtcCfg:   rtc.DefaultConfig(),
		sessions: make(map[string]*callSession),
	}
}

func (a *Adapter) OnEvent(fn func(core.AdapterEvent)) {
	a.events = fn
}

func (a *Adapter) emit(ev core.AdapterEvent) {
	if a.events != nil {
		a.events(ev)
	}
}

func (a *Adapter) Start(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.wsURL, nil)
	if err != nil {
		a.emit(core.AdapterEvent{Type: core.EventRegistrationFailed, Cause: err.Error()})
		return fmt.Errorf("signal dial: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	a.conn = conn
	a.send = make(chan core.Frame, 32)
	a.cancel = cancel
	a.mu.Unlock()

	a.emit(core.AdapterEvent{Type: core.EventConnected})

	go a.writePump(ctx, conn, a.send)
	go a.readPump(ctx, conn)
	return nil
}

func (a *Adapter) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	conn := a.conn
	a.registered = false
	sessions := a.sessions
	a.sessions = make(map[string]*callSession)
	a.pending = nil
	a.mu.Unlock()

	for _, s := range sessions {
		s.closeMedia()
	}
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func (a *Adapter) IsRegistered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registered
}

// PlaceCall creates the outgoing leg: local offer first, then the
// invite through the switchboard. The session surfaces before any
// response so the controller can track it from Dialing on.
func (a *Adapter) PlaceCall(target string, opts core.MediaOptions) (core.SignalSession, error) {
	if !a.IsRegistered() {
		return nil, domain.ErrNotRegistered
	}

	sess := newCallSession(a, domain.DirectionOutgoing, target)
	if err := sess.openMedia(); err != nil {
		return nil, fmt.Errorf("place call: %w", err)
	}
	offer, err := sess.pc.CreateOffer()
	if err != nil {
		sess.closeMedia()
		return nil, fmt.Errorf("place call: %w", err)
	}

	a.mu.Lock()
	a.pending = sess
	a.mu.Unlock()

	if err := a.sendEnvelope(core.Envelope{Type: core.MsgInvite, To: target, SDP: offer.SDP}); err != nil {
		a.mu.Lock()
		a.pending = nil
		a.mu.Unlock()
		sess.closeMedia()
		return nil, err
	}
	return sess, nil
}

func (a *Adapter) sendEnvelope(env core.Envelope) error {
	frame, err := env.Encode()
	if err != nil {
		return err
	}
	a.mu.Lock()
	send := a.send
	a.mu.Unlock()
	if send == nil {
		return errors.New("signal channel not started")
	}
	select {
	case send <- frame:
		return nil
	case <-time.After(time.Second):
		return errors.New("signal channel congested")
	}
}

func (a *Adapter) writePump(ctx context.Context, conn *websocket.Conn, send <-chan core.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-send:
			if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal.adapter").Msg("writePump write error")
				return
			}
		}
	}
}

func (a *Adapter) readPump(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		a.mu.Lock()
		a.registered = false
		a.mu.Unlock()
		a.emit(core.AdapterEvent{Type: core.EventDisconnected})
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := core.DecodeEnvelope(data)
			if err != nil {
				log.Error().Err(err).Str("module", "signal.adapter").Msg("bad json")
				continue
			}
			a.handle(env)
		}
	}
}

func (a *Adapter) handle(env core.Envelope) {
	switch env.Type {
	case core.MsgAttached:
		a.mu.Lock()
		a.registered = true
		a.mu.Unlock()
		a.emit(core.AdapterEvent{Type: core.EventRegistered})

	case core.MsgInvite:
		sess := newCallSession(a, domain.DirectionIncoming, env.From)
		sess.id = env.CallID
		sess.remoteOffer = env.SDP
		a.mu.Lock()
		a.sessions[sess.id] = sess
		a.mu.Unlock()
		a.emit(core.AdapterEvent{Type: core.EventNewSession, Session: sess})

	case core.MsgRinging:
		a.mu.Lock()
		sess := a.pending
		if sess != nil {
			sess.id = env.CallID
			a.sessions[sess.id] = sess
			a.pending = nil
		}
		a.mu.Unlock()
		if sess != nil {
			a.emit(core.AdapterEvent{Type: core.EventProgress, Session: sess})
		}

	case core.MsgAccepted:
		sess := a.session(env.CallID)
		if sess == nil {
			return
		}
		if err := sess.pc.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: env.SDP}); err != nil {
			log.Error().Err(err).Str("module", "signal.adapter").Msg("apply answer")
			a.finishSession(sess, core.EventFailed, err.Error())
			return
		}
		a.emit(core.AdapterEvent{Type: core.EventConfirmed, Session: sess})

	case core.MsgRejected:
		if sess := a.session(env.CallID); sess != nil {
			a.finishSession(sess, core.EventFailed, "rejected")
		}

	case core.MsgBye:
		if sess := a.session(env.CallID); sess != nil {
			a.finishSession(sess, core.EventEnded, "")
		}

	case core.MsgCandidate:
		if sess := a.session(env.CallID); sess != nil {
			sess.addCandidate(env.Candidate)
		}

	case core.MsgError:
		sess := a.session(env.CallID)
		if sess == nil {
			a.mu.Lock()
			sess = a.pending
			a.pending = nil
			a.mu.Unlock()
		}
		if sess != nil {
			a.finishSession(sess, core.EventFailed, env.Cause)
			return
		}
		log.Warn().Str("module", "signal.adapter").Str("cause", env.Cause).Msg("switchboard error")

	case core.MsgCallRequest:
		// Declarative nudge from /call/initiate; surfaced in the log
		// stream, nothing to orchestrate here.
		log.Info().Str("module", "signal.adapter").Str("from", env.From).Msg("call request received")

	default:
		log.Warn().Str("module", "signal.adapter").Str("type", env.Type).Msg("unknown signal")
	}
}

func (a *Adapter) session(callID string) *callSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions[callID]
}

func (a *Adapter) finishSession(sess *callSession, ev core.EventType, cause string) {
	a.mu.Lock()
	delete(a.sessions, sess.id)
	a.mu.Unlock()
	sess.closeMedia()
	a.emit(core.AdapterEvent{Type: ev, Cause: cause, Session: sess})
}
