// Package logstream merges the pull snapshot feed and the push channel
// into one rendered log view.
package logstream

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/adapters/push"
	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

// PushChannel is one live /ws/logs connection. Dialing is expected to
// request a full snapshot immediately.
type PushChannel interface {
	Receive() (push.Message, error)
	RequestSnapshot() error
	Close()
}

type Dialer func(ctx context.Context) (PushChannel, error)

// Stream trusts the pull snapshot as authoritative and treats push
// traffic as either a ready-made snapshot (all_logs) or a "refresh
// sooner" trigger. The channel reconnects with a fixed delay for as
// long as the local user stays registered.
type Stream struct {
	client     core.DirectoryClient
	dial       Dialer
	view       core.LogView
	registered func() bool

	PollEvery      time.Duration
	ReconnectDelay time.Duration

	mu       sync.Mutex
	state    domain.ConnectionState
	attempts int
	channel  PushChannel
	stop     chan struct{}
	refresh  chan struct{}
	wg       sync.WaitGroup
}

func NewStream(client core.DirectoryClient, dial Dialer, view core.LogView, registered func() bool) *Stream {
	return &Stream{
		client:         client,
		dial:           dial,
		view:           view,
		registered:     registered,
		PollEvery:      2 * time.Second,
		ReconnectDelay: 5 * time.Second,
		state:          domain.ChannelDisconnected,
		refresh:        make(chan struct{}, 1),
	}
}

func (s *Stream) Start() {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	s.wg.Add(2)
	go s.pollLoop(stop)
	go s.channelLoop(stop)
}

// Stop closes the push channel deliberately; no reconnect follows.
func (s *Stream) Stop() {
	s.mu.Lock()
	stop := s.stop
	ch := s.channel
	s.stop = nil
	s.channel = nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	if ch != nil {
		ch.Close()
	}
	s.wg.Wait()
}

// State reports the push channel state and reconnect attempt counter.
func (s *Stream) State() (domain.ConnectionState, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.attempts
}

func (s *Stream) setState(state domain.ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.view.SetChannelState(state)
}

// RefreshNow schedules an immediate pull instead of waiting for the
// next poll tick.
func (s *Stream) RefreshNow() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

func (s *Stream) pollLoop(stop <-chan struct{}) {
	defer s.wg.Done()
	t := time.NewTicker(s.PollEvery)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		case <-s.refresh:
		}
		s.pullOnce()
	}
}

func (s *Stream) pullOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entries, err := s.client.Logs(ctx)
	if err != nil {
		// Logged, not retried out of band; the next tick is the retry.
		log.Warn().Err(err).Str("module", "app.logstream").Msg("log fetch failed")
		return
	}
	s.Render(entries)
}

// Render replaces the view with the snapshot, preserving array order
// and suppressing duplicate sequence indexes.
func (s *Stream) Render(entries []domain.LogEntry) {
	out := make([]domain.LogEntry, 0, len(entries))
	var lastSeq int64 = -1
	for _, e := range entries {
		if e.Seq == lastSeq {
			continue
		}
		lastSeq = e.Seq
		out = append(out, e)
	}
	s.view.RenderLogs(out)
}

func (s *Stream) channelLoop(stop <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}

		s.setState(domain.ChannelConnecting)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		ch, err := s.dial(ctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("module", "app.logstream").Msg("push channel dial failed")
			s.setState(domain.ChannelDisconnected)
			if !s.waitReconnect(stop) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.channel = ch
		s.attempts = 0
		s.mu.Unlock()
		s.setState(domain.ChannelConnected)

		s.consume(ch)

		s.mu.Lock()
		s.channel = nil
		s.mu.Unlock()
		ch.Close()
		s.setState(domain.ChannelDisconnected)

		if !s.waitReconnect(stop) {
			return
		}
	}
}

func (s *Stream) consume(ch PushChannel) {
	for {
		msg, err := ch.Receive()
		if err != nil {
			return
		}
		if msg.IsSnapshot() {
			// A pushed snapshot renders without a fetch round-trip.
			s.Render(msg.Logs)
			continue
		}
		s.RefreshNow()
	}
}

// waitReconnect sleeps the fixed backoff and reports whether another
// attempt should be made. A drop while logged out means the session
// ended on purpose.
func (s *Stream) waitReconnect(stop <-chan struct{}) bool {
	if !s.registered() {
		log.Info().Str("module", "app.logstream").Msg("channel closed while logged out, not reconnecting")
		return false
	}
	select {
	case <-stop:
		return false
	case <-time.After(s.ReconnectDelay):
	}
	if !s.registered() {
		return false
	}
	s.mu.Lock()
	s.attempts++
	n := s.attempts
	s.mu.Unlock()
	log.Info().Str("module", "app.logstream").Int("attempt", n).Msg("reconnecting push channel")
	return true
}
