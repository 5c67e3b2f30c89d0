package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DeletionState is the outcome of a leave request.
type DeletionState int

const (
	// DeletionArmed means this was the first leave request (or a fresh one
	// after an earlier request expired); the account is now awaiting a
	// confirming second request.
	DeletionArmed DeletionState = iota
	// DeletionConfirmed means a second leave arrived inside the confirmation
	// window; the caller must now run the destructive cascade.
	DeletionConfirmed
)

// deletionRequest is one account's pending confirm-to-delete request.
type deletionRequest struct {
	armedAt time.Time
	replyTo string
}

// DeletionTracker maps accounts to pending two-phase deletion confirmations.
// A request commits only when a second leave arrives within the confirmation
// window; otherwise the sweeper silently expires it.
type DeletionTracker struct {
	mu      sync.Mutex
	pending map[int64]*deletionRequest

	confirmTimeout time.Duration
	now            func() time.Time
}

// NewDeletionTracker creates a deletion confirmation tracker.
func NewDeletionTracker(confirmTimeout time.Duration) *DeletionTracker {
	return &DeletionTracker{
		pending:        make(map[int64]*deletionRequest),
		confirmTimeout: confirmTimeout,
		now:            time.Now,
	}
}

// Request records a leave event for the account. The first request arms the
// tracker; a second request while still armed confirms and clears the entry.
// A second request arriving after the window has lapsed re-arms instead:
// it is treated as a fresh first request even if the sweeper has not run yet.
func (t *DeletionTracker) Request(accountID int64, replyTo string) DeletionState {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	r, ok := t.pending[accountID]
	if ok && now.Sub(r.armedAt) < t.confirmTimeout {
		delete(t.pending, accountID)
		return DeletionConfirmed
	}

	t.pending[accountID] = &deletionRequest{armedAt: now, replyTo: replyTo}
	return DeletionArmed
}

// Pending reports whether the account has an armed deletion request.
func (t *DeletionTracker) Pending(accountID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[accountID]
	return ok
}

// Cancel drops any pending request for the account without side effects.
func (t *DeletionTracker) Cancel(accountID int64) {
	t.mu.Lock()
	delete(t.pending, accountID)
	t.mu.Unlock()
}

// Sweep aborts every request older than the confirmation window. The abort
// is silent toward the user; it is only logged. Returns the number aborted.
func (t *DeletionTracker) Sweep(ctx context.Context) int {
	now := t.now()
	var aborted []int64

	t.mu.Lock()
	for accountID, r := range t.pending {
		if now.Sub(r.armedAt) >= t.confirmTimeout {
			aborted = append(aborted, accountID)
			delete(t.pending, accountID)
		}
	}
	t.mu.Unlock()

	for _, accountID := range aborted {
		slog.Info("deletion request expired", "account_id", accountID)
	}
	return len(aborted)
}
