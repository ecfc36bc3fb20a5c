package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zienshield/internal/adminapi"
	"zienshield/internal/bootstrap"
	"zienshield/internal/groupsync"
	"zienshield/internal/policy"
	"zienshield/pkg/config"
	"zienshield/pkg/logger"
	"zienshield/pkg/middleware"
)

var version = "dev"

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, "admin-api")
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatalw("config", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, tracing := middleware.InitTracing(ctx, "zienshield-admin", log)
	core := bootstrap.MustCore(cfg, log)
	defer core.Close()

	authz, err := policy.Load(ctx, cfg.AdminPolicyFile)
	if err != nil {
		log.Fatalw("admin policy", "err", err)
	}
	var keys middleware.KeySet
	if cfg.AdminJWKSURL != "" {
		keys = middleware.NewJWKSCache(cfg.AdminJWKSURL, 6*time.Hour)
	}

	app := adminapi.New(adminapi.Deps{
		Log:      log,
		Store:    core.Store,
		Sync:     core.Coordinator,
		Engine:   core.Engine,
		Authz:    authz,
		Keys:     keys,
		Gatherer: core.Registry,
	}, adminapi.Config{
		Env:         cfg.Env,
		Issuer:      cfg.AdminIssuer,
		Audience:    cfg.AdminAudience,
		CORSOrigins: cfg.CORSOrigins,
		Tracing:     tracing,
		Version:     version,
	})

	if cfg.Sync.Interval > 0 {
		w := groupsync.NewWorker(core.Coordinator, cfg.Sync.Interval, log.With("component", "sync-worker"))
		go func() { _ = w.Start(ctx) }()
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: app.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infow("admin-api listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	<-ctx.Done()
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(sctx)
	_ = shutdownTracing(sctx)
	log.Infow("admin-api stopped")
}
