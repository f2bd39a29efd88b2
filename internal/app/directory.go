package app

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/domain"
)

const (
	ipBase      = "192.168.100."
	firstHost   = 10
	sipPortBase = 5060
)

// Directory tracks registered consoles and their liveness. Stale users
// are omitted from Active, never deleted, so a late heartbeat revives
// the same assignment.
type Directory struct {
	mu       sync.RWMutex
	users    map[string]*domain.User
	nextHost int
	timeout  time.Duration
	steps    *StepLog

	now func() time.Time
}

func NewDirectory(steps *StepLog, timeout time.Duration) *Directory {
	return &Directory{
		users:    make(map[string]*domain.User),
		nextHost: firstHost,
		timeout:  timeout,
		steps:    steps,
		now:      time.Now,
	}
}

// Register is idempotent: a known username gets its existing assignment
// back with a refreshed heartbeat.
func (d *Directory) Register(username string) (*domain.User, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if u, ok := d.users[username]; ok {
		u.LastSeenAt = d.now()
		out := *u
		d.mu.Unlock()
		d.steps.Append("USER RE-REGISTERED", map[string]string{
			"username":    username,
			"internal_ip": out.InternalIP,
		})
		return &out, nil
	}

	u := &domain.User{
		Username:   username,
		InternalIP: fmt.Sprintf("%s%d", ipBase, d.nextHost),
		SIPPort:    sipPortBase + len(d.users),
		LastSeenAt: d.now(),
	}
	d.nextHost++
	d.users[username] = u
	out := *u
	d.mu.Unlock()

	log.Info().Str("module", "app.directory").Str("username", username).Str("ip", out.InternalIP).Msg("user registered")
	d.steps.Append("USER REGISTERED", map[string]string{
		"username":    username,
		"internal_ip": out.InternalIP,
		"sip_port":    fmt.Sprintf("%d", out.SIPPort),
	})
	return &out, nil
}

func (d *Directory) Heartbeat(username string) error {
	d.mu.Lock()
	u, ok := d.users[username]
	if ok {
		u.LastSeenAt = d.now()
	}
	d.mu.Unlock()
	if !ok {
		return domain.ErrUnknownUser
	}
	d.steps.Append("HEARTBEAT", map[string]string{"username": username})
	return nil
}

// Active returns users whose heartbeat is within the liveness timeout,
// sorted by username for a stable roster order.
func (d *Directory) Active() []domain.User {
	cutoff := d.now().Add(-d.timeout)
	d.mu.RLock()
	out := make([]domain.User, 0, len(d.users))
	for _, u := range d.users {
		if u.LastSeenAt.After(cutoff) {
			out = append(out, *u)
		}
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (d *Directory) Known(username string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[username]
	return ok
}
