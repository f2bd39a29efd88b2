// Package presence registers the local user, keeps its roster entry
// fresh and mirrors the remote roster.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

// Sync runs independently of any call. Heartbeat failures are logged
// and left to the next tick; the roster snapshot is replaced wholesale
// on every poll, so flicker from heartbeat timing shows through.
type Sync struct {
	client core.DirectoryClient
	roster core.RosterView

	HeartbeatEvery time.Duration
	PollEvery      time.Duration

	mu          sync.Mutex
	user        *domain.User
	registering bool
	stop        chan struct{}
	wg          sync.WaitGroup
}

func NewSync(client core.DirectoryClient, roster core.RosterView) *Sync {
	return &Sync{
		client:         client,
		roster:         roster,
		HeartbeatEvery: 10 * time.Second,
		PollEvery:      5 * time.Second,
	}
}

// Register is single-flight: re-submission is rejected until the
// in-flight attempt reaches a terminal response. On success the
// heartbeat and roster tickers start.
func (s *Sync) Register(ctx context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	if s.registering {
		s.mu.Unlock()
		return nil, domain.ErrRegistrationPending
	}
	if s.user != nil {
		u := *s.user
		s.mu.Unlock()
		return &u, nil
	}
	s.registering = true
	s.mu.Unlock()

	user, err := s.client.Register(ctx, username)

	s.mu.Lock()
	s.registering = false
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("register: %w", err)
	}
	s.user = user
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	log.Info().Str("module", "app.presence").Str("username", user.Username).Str("ip", user.InternalIP).Msg("registered")

	s.wg.Add(2)
	go s.heartbeatLoop(stop)
	go s.rosterLoop(stop)

	u := *user
	return &u, nil
}

// Logout stops both tickers and forgets the local user. No heartbeat
// fires after Logout returns.
func (s *Sync) Logout() {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.user = nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	s.wg.Wait()
	log.Info().Str("module", "app.presence").Msg("logged out")
}

func (s *Sync) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil
}

func (s *Sync) User() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// InitiateCall asks the backend to set up a call declaratively. It
// creates no local session; failure is a log entry, nothing more.
func (s *Sync) InitiateCall(ctx context.Context, callee string) {
	u := s.User()
	if u == nil {
		log.Warn().Str("module", "app.presence").Str("callee", callee).Msg("initiate call while logged out")
		return
	}
	if err := s.client.InitiateCall(ctx, u.Username, callee); err != nil {
		log.Warn().Err(err).Str("module", "app.presence").Str("callee", callee).Msg("initiate call failed")
	}
}

// RefreshRoster pulls one snapshot and replaces the view. An empty
// list is rendered as-is (the "no other users" state).
func (s *Sync) RefreshRoster(ctx context.Context) {
	users, err := s.client.Users(ctx)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.presence").Msg("roster fetch failed")
		return
	}
	s.roster.RenderRoster(users)
}

func (s *Sync) heartbeatLoop(stop <-chan struct{}) {
	defer s.wg.Done()
	t := time.NewTicker(s.HeartbeatEvery)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			u := s.User()
			if u == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.client.Heartbeat(ctx, u.Username); err != nil {
				// Next tick is the retry.
				log.Warn().Err(err).Str("module", "app.presence").Msg("heartbeat failed")
			}
			cancel()
		}
	}
}

func (s *Sync) rosterLoop(stop <-chan struct{}) {
	defer s.wg.Done()
	t := time.NewTicker(s.PollEvery)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.RefreshRoster(ctx)
			cancel()
		}
	}
}
