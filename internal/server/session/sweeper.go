package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically drives both trackers' timeout transitions: idle upload
// sessions are closed and stale deletion requests aborted. It is the only
// component with time-driven side effects; both expiries fire independently
// when they coincide for one account.
type Sweeper struct {
	uploads   *UploadTracker
	deletions *DeletionTracker
	interval  time.Duration
	done      chan struct{}
}

// NewSweeper creates a sweeper over the two trackers.
func NewSweeper(uploads *UploadTracker, deletions *DeletionTracker, interval time.Duration) *Sweeper {
	return &Sweeper{
		uploads:   uploads,
		deletions: deletions,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("sweeper started", "interval", s.interval)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runSweep(ctx)
			case <-ctx.Done():
				slog.Info("sweeper stopping")
				s.uploads.CloseAll(context.Background())
				close(s.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (s *Sweeper) Wait() {
	<-s.done
}

func (s *Sweeper) runSweep(ctx context.Context) {
	closedSessions := s.uploads.Sweep(ctx)
	abortedDeletions := s.deletions.Sweep(ctx)

	if closedSessions > 0 || abortedDeletions > 0 {
		slog.Info("sweep complete",
			"sessions_closed", closedSessions,
			"deletions_aborted", abortedDeletions,
		)
	}
}
