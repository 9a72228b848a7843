package worker

import (
	"context"
	"sync"
	"time"

	"github.com/musubi-dev/musubi/pkg/utils/errutil"
	"github.com/musubi-dev/musubi/pkg/utils/logging"
)

// ActionCleaner removes finished actions and returns how many were removed
type ActionCleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

// CleanupWorker periodically purges executed and rejected actions.
//
// Architecture assumptions:
// - Single server instance (no distributed locking)
type CleanupWorker struct {
	cleaner  ActionCleaner
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupWorker creates a worker that runs cleaner every interval
func NewCleanupWorker(cleaner ActionCleaner, interval time.Duration) *CleanupWorker {
	return &CleanupWorker{
		cleaner:  cleaner,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background cleanup loop. The first pass runs after one interval.
func (w *CleanupWorker) Start(ctx context.Context) error {
	logging.From(ctx).Info("Action cleanup worker starting",
		"interval", w.interval.String())

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for completion. Safe to call more than once.
func (w *CleanupWorker) Stop() {
	w.stopOnce.Do(func() {
		logging.Default().Info("Action cleanup worker stopping")
		close(w.stopCh)
	})
	<-w.doneCh
}

func (w *CleanupWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.cleanup(ctx)

		case <-w.stopCh:
			logging.From(ctx).Info("Action cleanup worker received stop signal")
			return

		case <-ctx.Done():
			logging.From(ctx).Info("Action cleanup worker context cancelled")
			return
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context) {
	startTime := time.Now()

	removed, err := w.cleaner.Cleanup(ctx)
	if err != nil {
		// retried on the next tick
		_ = errutil.Handle(ctx, err, "action cleanup failed")
		return
	}

	if removed > 0 {
		logging.From(ctx).Info("Action cleanup completed",
			"removed", removed,
			"duration", time.Since(startTime).String())
	}
}
