package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/musubi-dev/musubi/pkg/domain/model"
	"github.com/musubi-dev/musubi/pkg/domain/types"
	"github.com/musubi-dev/musubi/pkg/repository/memory"
	"github.com/musubi-dev/musubi/pkg/service/worker"
	"github.com/musubi-dev/musubi/pkg/usecase"
)

// countingCleaner counts calls and optionally fails
type countingCleaner struct {
	calls atomic.Int32
	err   error
}

func (c *countingCleaner) Cleanup(ctx context.Context) (int, error) {
	c.calls.Add(1)
	return 0, c.err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestCleanupWorker_PeriodicCleanup(t *testing.T) {
	ctx := context.Background()
	cleaner := &countingCleaner{}

	w := worker.NewCleanupWorker(cleaner, 10*time.Millisecond)
	gt.NoError(t, w.Start(ctx)).Required()

	waitFor(t, func() bool { return cleaner.calls.Load() >= 3 })
	w.Stop()

	after := cleaner.calls.Load()
	time.Sleep(30 * time.Millisecond)
	gt.Value(t, cleaner.calls.Load()).Equal(after)
}

func TestCleanupWorker_ContinuesAfterFailure(t *testing.T) {
	cleaner := &countingCleaner{err: errors.New("storage unavailable")}

	w := worker.NewCleanupWorker(cleaner, 10*time.Millisecond)
	gt.NoError(t, w.Start(context.Background())).Required()
	defer w.Stop()

	waitFor(t, func() bool { return cleaner.calls.Load() >= 2 })
}

func TestCleanupWorker_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cleaner := &countingCleaner{}

	w := worker.NewCleanupWorker(cleaner, time.Hour)
	gt.NoError(t, w.Start(ctx)).Required()
	cancel()

	done := make(chan struct{})
	go func() {
		w.Stop()
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	gt.Value(t, cleaner.calls.Load()).Equal(int32(0))
}

func TestCleanupWorker_RemovesFinishedActions(t *testing.T) {
	ctx := context.Background()
	uc := usecase.New(memory.New()).Action

	rejected, err := uc.Submit(ctx, &model.Action{
		Type:    types.ActionTypeCodeGeneration,
		Details: &model.CodeGenerationDetails{Prompt: "p"},
	})
	gt.NoError(t, err).Required()
	kept, err := uc.Submit(ctx, &model.Action{
		Type:    types.ActionTypeCodeGeneration,
		Details: &model.CodeGenerationDetails{Prompt: "q"},
	})
	gt.NoError(t, err).Required()
	_, err = uc.Reject(ctx, rejected, "")
	gt.NoError(t, err).Required()

	w := worker.NewCleanupWorker(uc, 10*time.Millisecond)
	gt.NoError(t, w.Start(ctx)).Required()
	defer w.Stop()

	waitFor(t, func() bool {
		_, err := uc.Get(ctx, rejected)
		return errors.Is(err, usecase.ErrActionNotFound)
	})

	got, err := uc.Get(ctx, kept)
	gt.NoError(t, err).Required()
	gt.Value(t, got.Status).Equal(types.ActionStatusPending)
}
