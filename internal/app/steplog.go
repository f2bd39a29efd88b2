package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/domain"
)

// StepLog is the ordered operational event log. Entries are immutable
// once appended; seq is strictly increasing and survives Clear so that
// clients never observe a sequence index going backwards.
type StepLog struct {
	mu      sync.Mutex
	seq     int64
	entries []domain.LogEntry
	subs    map[int]chan struct{}
	nextSub int

	now func() time.Time
}

func NewStepLog() *StepLog {
	return &StepLog{
		subs: make(map[int]chan struct{}),
		now:  time.Now,
	}
}

func (l *StepLog) Append(step string, details map[string]string) domain.LogEntry {
	l.mu.Lock()
	l.seq++
	entry := domain.LogEntry{
		Seq:       l.seq,
		Timestamp: l.now().UTC(),
		Step:      step,
		Details:   details,
	}
	l.entries = append(l.entries, entry)
	subs := make([]chan struct{}, 0, len(l.subs))
	for _, ch := range l.subs {
		subs = append(subs, ch)
	}
	l.mu.Unlock()

	log.Debug().Str("module", "app.steplog").Str("step", step).Int64("seq", entry.Seq).Msg("step logged")

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default: // subscriber is behind, one pending notify is enough
		}
	}
	return entry
}

// Snapshot returns entries oldest-to-newest.
func (l *StepLog) Snapshot() []domain.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *StepLog) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
	log.Info().Str("module", "app.steplog").Msg("log history cleared")
}

// Subscribe returns a change-notification channel and a cancel func.
// The channel carries no payload; subscribers refetch a snapshot.
func (l *StepLog) Subscribe() (<-chan struct{}, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSub
	l.nextSub++
	ch := make(chan struct{}, 1)
	l.subs[id] = ch
	return ch, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
	}
}
