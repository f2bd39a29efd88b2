package call

import (
	"sync"

	"github.com/calldeck/calldeck/internal/domain"
)

// History is the in-memory, display-only call list, most recent first.
// A session gets exactly one record; transitions after the first touch
// update its outcome in place instead of appending again.
type History struct {
	mu      sync.Mutex
	records []domain.CallRecord
}

func NewHistory() *History {
	return &History{}
}

func (h *History) Touch(rec domain.CallRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.records {
		if h.records[i].SessionID == rec.SessionID {
			h.records[i].Outcome = rec.Outcome
			h.records[i].At = rec.At
			return
		}
	}
	h.records = append([]domain.CallRecord{rec}, h.records...)
}

func (h *History) Records() []domain.CallRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.CallRecord, len(h.records))
	copy(out, h.records)
	return out
}
