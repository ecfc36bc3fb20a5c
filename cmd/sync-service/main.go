package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zienshield/internal/bootstrap"
	"zienshield/internal/groupsync"
	"zienshield/pkg/config"
	"zienshield/pkg/logger"
	"zienshield/pkg/middleware"
)

// sync-service creates missing engine groups. With SYNC_INTERVAL_SEC unset it
// runs once and exits non-zero when the run could not complete.
func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	log := logger.New(cfg.Env, "sync-service")
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Errorw("config", "err", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, _ := middleware.InitTracing(ctx, "zienshield-sync", log)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	core := bootstrap.MustCore(cfg, log)
	defer core.Close()

	w := groupsync.NewWorker(core.Coordinator, cfg.Sync.Interval, log)
	if cfg.Sync.Interval > 0 {
		log.Infow("periodic sync started", "interval", cfg.Sync.Interval)
		_ = w.Start(ctx)
		return 0
	}

	rep, err := w.RunOnce(ctx)
	for _, f := range rep.Failures {
		log.Warnw("tenant not synced", "tenant", f.TenantID, "name", f.TenantName, "err", f.Error)
	}
	log.Infow("sync finished", "run", rep.RunID, "total", rep.Total, "synced", rep.Synced, "failed", rep.Failed)
	if err != nil {
		log.Errorw("sync aborted", "err", err)
		return 1
	}
	return 0
}
