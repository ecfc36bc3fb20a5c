package groupsync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Runner is the part of Coordinator the worker drives.
type Runner interface {
	SyncAll(ctx context.Context) (Report, error)
}

// Worker runs SyncAll on a fixed interval.
type Worker struct {
	runner   Runner
	interval time.Duration
	log      *zap.SugaredLogger
}

func NewWorker(runner Runner, interval time.Duration, log *zap.SugaredLogger) *Worker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Worker{runner: runner, interval: interval, log: log}
}

// RunOnce performs one run. A run skipped because another holds the lock is not an error.
func (w *Worker) RunOnce(ctx context.Context) (Report, error) {
	rep, err := w.runner.SyncAll(ctx)
	if errors.Is(err, ErrSyncInProgress) {
		w.log.Infow("sync run skipped, another run holds the lock")
		return rep, nil
	}
	return rep, err
}

// Start runs immediately and then every interval until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Errorw("periodic group sync failed", "err", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
