package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingNotifier captures notices for assertions.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *recordingNotifier) Notify(ctx context.Context, replyTo, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, replyTo+": "+text)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

func (n *recordingNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) == 0 {
		return ""
	}
	return n.notices[len(n.notices)-1]
}

// fakeClock lets tests drive tracker time deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestUploadTracker(idle time.Duration) (*UploadTracker, *recordingNotifier, *fakeClock) {
	notifier := &recordingNotifier{}
	clock := newFakeClock()
	tracker := NewUploadTracker(notifier, idle)
	tracker.now = clock.now
	return tracker, notifier, clock
}

func TestUploadTracker_RecordUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("first photo starts session and announces it", func(t *testing.T) {
		tracker, notifier, _ := newTestUploadTracker(10 * time.Second)

		if started := tracker.RecordUpload(ctx, 1, "chat-1"); !started {
			t.Error("expected first upload to start a session")
		}
		if !tracker.Active(1) {
			t.Error("expected session to be active")
		}
		if notifier.count() != 1 {
			t.Errorf("expected 1 start notice, got %d", notifier.count())
		}
		if !strings.Contains(notifier.last(), "Starting the transmission") {
			t.Errorf("unexpected notice: %q", notifier.last())
		}
	})

	t.Run("burst refreshes silently", func(t *testing.T) {
		tracker, notifier, _ := newTestUploadTracker(10 * time.Second)

		tracker.RecordUpload(ctx, 1, "chat-1")
		for i := 0; i < 4; i++ {
			if started := tracker.RecordUpload(ctx, 1, "chat-1"); started {
				t.Error("refresh must not start a new session")
			}
		}
		if notifier.count() != 1 {
			t.Errorf("expected no notices on refresh, got %d total", notifier.count())
		}
	})

	t.Run("accounts get independent sessions", func(t *testing.T) {
		tracker, _, _ := newTestUploadTracker(10 * time.Second)

		tracker.RecordUpload(ctx, 1, "chat-1")
		tracker.RecordUpload(ctx, 2, "chat-2")
		if !tracker.Active(1) || !tracker.Active(2) {
			t.Error("both accounts should have active sessions")
		}
	})
}

func TestUploadTracker_Sweep(t *testing.T) {
	ctx := context.Background()

	t.Run("session survives below the idle timeout", func(t *testing.T) {
		tracker, _, clock := newTestUploadTracker(10 * time.Second)

		tracker.RecordUpload(ctx, 1, "chat-1")
		clock.advance(9 * time.Second)

		if closed := tracker.Sweep(ctx); closed != 0 {
			t.Errorf("expected no sessions closed at t0+9s, got %d", closed)
		}
		if !tracker.Active(1) {
			t.Error("session should still be active")
		}
	})

	t.Run("session closes exactly once at the idle timeout", func(t *testing.T) {
		tracker, notifier, clock := newTestUploadTracker(10 * time.Second)

		tracker.RecordUpload(ctx, 1, "chat-1")
		tracker.RecordUpload(ctx, 1, "chat-1")
		tracker.RecordUpload(ctx, 1, "chat-1")
		startNotices := notifier.count()

		clock.advance(10 * time.Second)
		if closed := tracker.Sweep(ctx); closed != 1 {
			t.Fatalf("expected 1 session closed at t0+10s, got %d", closed)
		}
		if tracker.Active(1) {
			t.Error("session should be gone after sweep")
		}

		summary := notifier.last()
		if !strings.Contains(summary, "3 photos received") {
			t.Errorf("summary should report the photo count, got %q", summary)
		}
		if !strings.Contains(summary, "10.00 seconds") {
			t.Errorf("summary should report elapsed time since session start, got %q", summary)
		}

		// A second sweep must not re-emit.
		if closed := tracker.Sweep(ctx); closed != 0 {
			t.Errorf("expected idempotent close, got %d more", closed)
		}
		if notifier.count() != startNotices+1 {
			t.Errorf("expected exactly one summary, got %d extra notices", notifier.count()-startNotices)
		}
	})

	t.Run("activity resets the idle clock", func(t *testing.T) {
		tracker, notifier, clock := newTestUploadTracker(10 * time.Second)

		tracker.RecordUpload(ctx, 1, "chat-1")
		clock.advance(8 * time.Second)
		tracker.RecordUpload(ctx, 1, "chat-1")
		clock.advance(8 * time.Second)

		if closed := tracker.Sweep(ctx); closed != 0 {
			t.Errorf("refreshed session must not close, got %d", closed)
		}

		clock.advance(2 * time.Second)
		if closed := tracker.Sweep(ctx); closed != 1 {
			t.Fatalf("expected close 10s after last activity, got %d", closed)
		}
		// Elapsed is measured from session start (18s), not last activity.
		if !strings.Contains(notifier.last(), "18.00 seconds") {
			t.Errorf("expected elapsed from session start, got %q", notifier.last())
		}
	})

	t.Run("only idle sessions close", func(t *testing.T) {
		tracker, _, clock := newTestUploadTracker(10 * time.Second)

		tracker.RecordUpload(ctx, 1, "chat-1")
		clock.advance(6 * time.Second)
		tracker.RecordUpload(ctx, 2, "chat-2")
		clock.advance(5 * time.Second)

		if closed := tracker.Sweep(ctx); closed != 1 {
			t.Errorf("expected only account 1 to close, got %d", closed)
		}
		if tracker.Active(1) {
			t.Error("account 1 session should be closed")
		}
		if !tracker.Active(2) {
			t.Error("account 2 session should survive")
		}
	})
}

func TestUploadTracker_CloseAll(t *testing.T) {
	ctx := context.Background()
	tracker, notifier, _ := newTestUploadTracker(10 * time.Second)

	tracker.RecordUpload(ctx, 1, "chat-1")
	tracker.RecordUpload(ctx, 2, "chat-2")
	before := notifier.count()

	tracker.CloseAll(ctx)
	if tracker.Active(1) || tracker.Active(2) {
		t.Error("all sessions should be closed")
	}
	if notifier.count() != before+2 {
		t.Errorf("expected 2 shutdown summaries, got %d", notifier.count()-before)
	}
}
