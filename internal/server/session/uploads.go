package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Notifier delivers asynchronous notices to the reply channel an inbound
// event was bound to. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, replyTo, text string)
}

// uploadSession tracks one account's in-flight transmission burst.
type uploadSession struct {
	startedAt    time.Time
	lastActivity time.Time
	photos       int
	replyTo      string
}

// UploadTracker maps accounts to in-progress multi-photo transmission
// windows. A session starts on the first accepted photo of a burst and is
// closed only by the sweeper after the idle timeout; the inbound protocol
// delivers photos as discrete messages with no batch delimiter, so there is
// no explicit "done" signal to wait for.
type UploadTracker struct {
	mu       sync.Mutex
	sessions map[int64]*uploadSession

	idleTimeout time.Duration
	notifier    Notifier
	now         func() time.Time
}

// NewUploadTracker creates an upload session tracker.
func NewUploadTracker(notifier Notifier, idleTimeout time.Duration) *UploadTracker {
	return &UploadTracker{
		sessions:    make(map[int64]*uploadSession),
		idleTimeout: idleTimeout,
		notifier:    notifier,
		now:         time.Now,
	}
}

// RecordUpload advances the account's session after a successful ingestion:
// the first accepted photo opens a session and announces the transmission,
// every further one refreshes the idle clock silently. Rejected ingestions
// must never reach this method.
func (t *UploadTracker) RecordUpload(ctx context.Context, accountID int64, replyTo string) (started bool) {
	t.mu.Lock()
	s, ok := t.sessions[accountID]
	now := t.now()
	if !ok {
		s = &uploadSession{startedAt: now, replyTo: replyTo}
		t.sessions[accountID] = s
		started = true
	}
	s.lastActivity = now
	s.photos++
	t.mu.Unlock()

	if started {
		slog.Info("upload session started", "account_id", accountID)
		t.notifier.Notify(ctx, replyTo, fmt.Sprintf(
			"Starting the transmission! If no photos arrive within %s the transmission is considered closed.",
			t.idleTimeout))
	}
	return started
}

// Active reports whether the account has an in-flight upload session.
func (t *UploadTracker) Active(accountID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[accountID]
	return ok
}

// Sweep closes every session idle for at least the idle timeout and emits a
// one-shot summary to the stored reply channel. Returns the number closed.
func (t *UploadTracker) Sweep(ctx context.Context) int {
	type closed struct {
		accountID int64
		session   *uploadSession
		elapsed   time.Duration
	}

	now := t.now()
	var expired []closed

	t.mu.Lock()
	for accountID, s := range t.sessions {
		if now.Sub(s.lastActivity) >= t.idleTimeout {
			expired = append(expired, closed{accountID, s, now.Sub(s.startedAt)})
			delete(t.sessions, accountID)
		}
	}
	t.mu.Unlock()

	for _, c := range expired {
		slog.Info("upload session closed",
			"account_id", c.accountID,
			"photos", c.session.photos,
			"elapsed", c.elapsed,
		)
		t.notifier.Notify(ctx, c.session.replyTo, fmt.Sprintf(
			"Transmission ended after %.2f seconds! %d photos received!",
			c.elapsed.Seconds(), c.session.photos))
	}
	return len(expired)
}

// CloseAll closes every open session regardless of idle time, emitting the
// usual summaries. Used at process shutdown.
func (t *UploadTracker) CloseAll(ctx context.Context) {
	t.mu.Lock()
	sessions := t.sessions
	t.sessions = make(map[int64]*uploadSession)
	now := t.now()
	t.mu.Unlock()

	for accountID, s := range sessions {
		elapsed := now.Sub(s.startedAt)
		slog.Info("upload session closed on shutdown", "account_id", accountID, "photos", s.photos)
		t.notifier.Notify(ctx, s.replyTo, fmt.Sprintf(
			"Transmission ended after %.2f seconds! %d photos received!",
			elapsed.Seconds(), s.photos))
	}
}
