// Package call owns the single active call: its state machine, its
// media bindings and its history.
package call

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

// VisualStarter launches a render loop for an inbound media source.
// The loop is expected to terminate itself once the session is gone.
type VisualStarter interface {
	Start(src core.MediaSource)
}

// Controller enforces the single-session invariant and translates
// adapter events into view state. Commands and events are expected to
// arrive on one loop; the mutex only covers cross-goroutine probes
// (ticker, visualizer liveness check).
type Controller struct {
	adapter core.SignalingAdapter
	view    core.CallView
	status  core.StatusView
	audio   core.AudioSink
	visual  VisualStarter
	history *History

	// TickEvery is the elapsed-counter resolution; tests shrink it.
	TickEvery time.Duration

	mu          sync.Mutex
	sess        *domain.Session
	adapterSess core.SignalSession
	mediaBound  bool
	elapsedStop chan struct{}

	now func() time.Time
}

func NewController(adapter core.SignalingAdapter, view core.CallView, status core.StatusView, audio core.AudioSink, visual VisualStarter) *Controller {
	return &Controller{
		adapter:   adapter,
		view:      view,
		status:    status,
		audio:     audio,
		visual:    visual,
		history:   NewHistory(),
		TickEvery: time.Second,
		now:       time.Now,
	}
}

// PlaceCall starts an outgoing call. Guard order mirrors the reference
// UI: dial string, registration, then the busy slot.
func (c *Controller) PlaceCall(target string) error {
	if target == "" {
		return domain.ErrEmptyTarget
	}
	if !c.adapter.IsRegistered() {
		return domain.ErrNotRegistered
	}

	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		return domain.ErrBusy
	}
	c.mu.Unlock()

	adapterSess, err := c.adapter.PlaceCall(target, core.MediaOptions{Audio: true})
	if err != nil {
		return fmt.Errorf("place call: %w", err)
	}

	c.mu.Lock()
	c.sess = &domain.Session{
		ID:        adapterSess.ID(),
		Direction: domain.DirectionOutgoing,
		Peer:      target,
		State:     domain.StateDialing,
	}
	c.adapterSess = adapterSess
	c.mu.Unlock()

	log.Info().Str("module", "app.call").Str("peer", target).Msg("outgoing call")
	c.view.ShowActive(target)
	c.view.SetCallStatus("Calling...")
	return nil
}

// Accept answers the ringing incoming call.
func (c *Controller) Accept() error {
	c.mu.Lock()
	if c.sess == nil || c.sess.State != domain.StateRinging {
		c.mu.Unlock()
		return fmt.Errorf("accept: no ringing call")
	}
	c.sess.State = domain.StateProgressing
	sess := c.adapterSess
	peer := c.sess.Peer
	c.mu.Unlock()

	if err := sess.Answer(core.MediaOptions{Audio: true}); err != nil {
		return fmt.Errorf("accept: %w", err)
	}
	c.view.ShowActive(peer)
	c.view.SetCallStatus("Connecting...")
	return nil
}

// Reject declines the ringing incoming call.
func (c *Controller) Reject() error {
	c.mu.Lock()
	if c.sess == nil || c.sess.State != domain.StateRinging {
		c.mu.Unlock()
		return fmt.Errorf("reject: no ringing call")
	}
	sess := c.adapterSess
	c.mu.Unlock()
	return sess.Terminate()
}

// Hangup terminates the active call. With no session it is a no-op,
// not an error.
func (c *Controller) Hangup() {
	c.mu.Lock()
	sess := c.adapterSess
	c.mu.Unlock()
	if sess == nil {
		return
	}
	if err := sess.Terminate(); err != nil {
		log.Warn().Err(err).Str("module", "app.call").Msg("hangup terminate")
	}
}

// HandleEvent consumes one adapter event.
func (c *Controller) HandleEvent(ev core.AdapterEvent) {
	switch ev.Type {
	case core.EventConnected:
		c.status.SetStatus("Connected (Unregistered)")
	case core.EventDisconnected:
		c.status.SetStatus("Disconnected")
	case core.EventRegistered:
		c.status.SetStatus("Registered")
	case core.EventRegistrationFailed:
		log.Warn().Str("module", "app.call").Str("cause", ev.Cause).Msg("registration failed")
		c.status.SetStatus("Registration Failed")
	case core.EventNewSession:
		c.onNewSession(ev.Session)
	default:
		c.onSessionEvent(ev)
	}
}

func (c *Controller) onNewSession(sess core.SignalSession) {
	c.mu.Lock()
	busy := c.sess != nil
	c.mu.Unlock()

	if busy {
		// Busy policy: the losing session is actively terminated, not
		// merely ignored, so the caller hears a definite reject.
		log.Info().Str("module", "app.call").Str("peer", sess.PeerIdentity()).Msg("busy, auto-rejecting")
		if err := sess.Terminate(); err != nil {
			log.Warn().Err(err).Str("module", "app.call").Msg("busy terminate")
		}
		return
	}

	if sess.Direction() == domain.DirectionOutgoing {
		// Outgoing sessions are installed by PlaceCall; an adapter that
		// also announces them is tolerated.
		return
	}

	c.mu.Lock()
	c.sess = &domain.Session{
		ID:        sess.ID(),
		Direction: domain.DirectionIncoming,
		Peer:      sess.PeerIdentity(),
		State:     domain.StateRinging,
	}
	c.adapterSess = sess
	c.mu.Unlock()

	log.Info().Str("module", "app.call").Str("peer", sess.PeerIdentity()).Msg("incoming call")
	c.view.ShowIncoming(sess.PeerIdentity())
}

func (c *Controller) onSessionEvent(ev core.AdapterEvent) {
	c.mu.Lock()
	if c.adapterSess == nil || ev.Session == nil || ev.Session != c.adapterSess {
		// Stale event for a session already torn down (or a foreign
		// auto-rejected one); teardown stays idempotent by ignoring it.
		c.mu.Unlock()
		return
	}
	next, ok := Transition(c.sess.State, ev.Type)
	if !ok {
		c.mu.Unlock()
		return
	}
	c.sess.State = next
	c.mu.Unlock()

	switch next {
	case domain.StateProgressing:
		c.view.SetCallStatus("Ringing...")
	case domain.StateEstablished:
		c.onEstablished()
	case domain.StateEnded, domain.StateFailed:
		c.finish(next, ev.Cause)
	}
}

func (c *Controller) onEstablished() {
	c.mu.Lock()
	c.sess.EstablishedAt = c.now()
	peer := c.sess.Peer
	rec := domain.CallRecord{
		SessionID: c.sess.ID,
		Direction: c.sess.Direction,
		Peer:      peer,
		Outcome:   domain.OutcomeActive,
		At:        c.now(),
	}
	src := c.adapterSess.RemoteAudio()
	bind := !c.mediaBound && src != nil
	if bind {
		c.mediaBound = true
	}
	stop := make(chan struct{})
	c.elapsedStop = stop
	c.mu.Unlock()

	c.history.Touch(rec)
	if bind {
		c.audio.Bind(src)
		c.visual.Start(src)
	}
	c.view.SetCallStatus("In Call with " + peer)
	c.view.SetElapsed("00:00")
	go c.elapsedLoop(stop)
	log.Info().Str("module", "app.call").Str("peer", peer).Msg("call established")
}

func (c *Controller) elapsedLoop(stop chan struct{}) {
	t := time.NewTicker(c.TickEvery)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			c.mu.Lock()
			if c.sess == nil || c.sess.State != domain.StateEstablished {
				c.mu.Unlock()
				return
			}
			elapsed := formatElapsed(c.now().Sub(c.sess.EstablishedAt))
			c.mu.Unlock()
			c.view.SetElapsed(elapsed)
		}
	}
}

func formatElapsed(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// finish runs the single teardown for a terminal transition: counter
// stopped, media unbound, view cleared, slot released.
func (c *Controller) finish(state domain.CallState, cause string) {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return
	}
	sess := *c.sess
	stop := c.elapsedStop
	bound := c.mediaBound
	c.sess = nil
	c.adapterSess = nil
	c.elapsedStop = nil
	c.mediaBound = false
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if bound {
		c.audio.Unbind()
	}
	c.view.Clear()

	outcome := domain.OutcomeFailed
	if state == domain.StateEnded && !sess.EstablishedAt.IsZero() {
		outcome = domain.OutcomeCompleted
	}
	c.history.Touch(domain.CallRecord{
		SessionID: sess.ID,
		Direction: sess.Direction,
		Peer:      sess.Peer,
		Outcome:   outcome,
		At:        c.now(),
	})

	evt := log.Info().Str("module", "app.call").Str("peer", sess.Peer).Str("state", string(state))
	if cause != "" {
		evt = evt.Str("cause", cause)
	}
	evt.Msg("call finished")
}

// SessionAlive is the visualizer's liveness probe: true only while the
// call is established.
func (c *Controller) SessionAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil && c.sess.State == domain.StateEstablished
}

// ActiveSession returns a copy of the current session, or nil.
func (c *Controller) ActiveSession() *domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	out := *c.sess
	return &out
}

func (c *Controller) History() []domain.CallRecord {
	return c.history.Records()
}
