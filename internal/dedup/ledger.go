package dedup

import (
	"context"
	"sync"
	"time"
)

// Ledger records message ids admitted for broadcast. Admit is
// insert-if-absent: it returns true exactly once per id within the
// ledger's retention window. Forget withdraws an admission so a
// requeued delivery is not suppressed after its republish failed.
type Ledger interface {
	Admit(ctx context.Context, messageID string) (bool, error)
	Forget(ctx context.Context, messageID string) error
	Close() error
}

// MemoryLedger is a process-local, time-windowed ledger. Entries
// expire after the window so the ledger stays bounded on a long-lived
// process; the window must exceed the broker's redelivery horizon for
// suppression to hold.
type MemoryLedger struct {
	window  time.Duration
	mu      sync.Mutex
	entries map[string]time.Time // messageID -> expiry
	admits  int
}

// sweep the expired entries every this many admissions.
const sweepInterval = 4096

func NewMemoryLedger(window time.Duration) *MemoryLedger {
	return &MemoryLedger{
		window:  window,
		entries: make(map[string]time.Time),
	}
}

func (l *MemoryLedger) Admit(_ context.Context, messageID string) (bool, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, ok := l.entries[messageID]; ok && now.Before(expiry) {
		return false, nil
	}
	l.entries[messageID] = now.Add(l.window)

	l.admits++
	if l.admits%sweepInterval == 0 {
		for id, expiry := range l.entries {
			if now.After(expiry) {
				delete(l.entries, id)
			}
		}
	}

	return true, nil
}

func (l *MemoryLedger) Forget(_ context.Context, messageID string) error {
	l.mu.Lock()
	delete(l.entries, messageID)
	l.mu.Unlock()
	return nil
}

func (l *MemoryLedger) Close() error {
	return nil
}

// Len reports the number of tracked ids, including not-yet-swept
// expired entries.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
