package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInsufficientSpace is returned by Reserve when the declared size does not
// fit in the account's remaining capacity.
var ErrInsufficientSpace = errors.New("insufficient storage space")

// Store is the durable backing for quota records. The repository satisfies it.
type Store interface {
	// Usage returns the account's capacity and used byte counts.
	Usage(ctx context.Context, accountID int64) (capacity, used int64, err error)
	// AddUsed adjusts the account's used byte count by delta.
	AddUsed(ctx context.Context, accountID int64, delta int64) error
}

// entry caches one account's quota state. Its mutex serializes all ledger
// operations for that account; distinct accounts never contend.
type entry struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	loaded   bool
}

// Ledger owns per-account capacity/used bookkeeping. Reserve is a pure
// admission check against the declared size; Commit records the measured
// size after bytes are durably written and never re-checks capacity: a
// misreported declared size can skew admission, never the accounting.
type Ledger struct {
	store Store

	mu      sync.Mutex
	entries map[int64]*entry
}

// NewLedger creates a ledger backed by the given store.
func NewLedger(store Store) *Ledger {
	return &Ledger{
		store:   store,
		entries: make(map[int64]*entry),
	}
}

// acquire returns the account's entry with its mutex held, loading the
// durable state on first touch.
func (l *Ledger) acquire(ctx context.Context, accountID int64) (*entry, error) {
	l.mu.Lock()
	e, ok := l.entries[accountID]
	if !ok {
		e = &entry{}
		l.entries[accountID] = e
	}
	l.mu.Unlock()

	e.mu.Lock()
	if !e.loaded {
		capacity, used, err := l.store.Usage(ctx, accountID)
		if err != nil {
			e.mu.Unlock()
			return nil, fmt.Errorf("failed to load quota record: %w", err)
		}
		e.capacity = capacity
		e.used = used
		e.loaded = true
	}
	return e, nil
}

// Reserve checks that declaredSize fits in the account's remaining capacity.
// It does not mutate used space; it is the only admission gate.
func (l *Ledger) Reserve(ctx context.Context, accountID int64, declaredSize int64) error {
	e, err := l.acquire(ctx, accountID)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	if e.used+declaredSize > e.capacity {
		return ErrInsufficientSpace
	}
	return nil
}

// Commit adds actualSize to the account's used space and writes it through
// to the store. Called only after ingestion has durably succeeded; it
// succeeds even when the measured size pushes used past capacity.
func (l *Ledger) Commit(ctx context.Context, accountID int64, actualSize int64) error {
	e, err := l.acquire(ctx, accountID)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	if err := l.store.AddUsed(ctx, accountID, actualSize); err != nil {
		return fmt.Errorf("failed to persist quota commit: %w", err)
	}
	e.used += actualSize
	return nil
}

// Release subtracts actualSize from the account's used space, for deleted
// content or rolled-back ingestions.
func (l *Ledger) Release(ctx context.Context, accountID int64, actualSize int64) error {
	e, err := l.acquire(ctx, accountID)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	if err := l.store.AddUsed(ctx, accountID, -actualSize); err != nil {
		return fmt.Errorf("failed to persist quota release: %w", err)
	}
	e.used -= actualSize
	if e.used < 0 {
		e.used = 0
	}
	return nil
}

// Usage reports the account's current used and capacity byte counts.
func (l *Ledger) Usage(ctx context.Context, accountID int64) (used, capacity int64, err error) {
	e, err := l.acquire(ctx, accountID)
	if err != nil {
		return 0, 0, err
	}
	defer e.mu.Unlock()
	return e.used, e.capacity, nil
}

// Forget drops the cached entry for an account, forcing a reload from the
// store on next touch. Called after account deletion or reconciliation.
func (l *Ledger) Forget(accountID int64) {
	l.mu.Lock()
	delete(l.entries, accountID)
	l.mu.Unlock()
}
