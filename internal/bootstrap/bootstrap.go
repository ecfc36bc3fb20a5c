// Package bootstrap wires the pieces shared by every service binary.
package bootstrap

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"zienshield/internal/engine"
	"zienshield/internal/groupsync"
	"zienshield/pkg/config"
	"zienshield/pkg/db"
	"zienshield/pkg/tenants"
)

// Core holds the long-lived dependencies of a service.
type Core struct {
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	Store       tenants.Store
	Engine      *engine.Client
	Coordinator *groupsync.Coordinator
	Registry    *prometheus.Registry
}

// MustCore connects to Postgres/Redis when configured and builds the engine
// client and sync coordinator. Without DATABASE_URL the tenant store is in memory.
func MustCore(cfg config.Config, log *zap.SugaredLogger) *Core {
	c := &Core{Registry: prometheus.NewRegistry()}
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	seed, err := tenants.LoadSeed(cfg.TenantSeedJSON, cfg.TenantSeedFile)
	if err != nil {
		log.Fatalw("tenant seed", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c.Pool = db.MustConnect(cfg, log)
	if c.Pool != nil {
		if err := tenants.EnsureSchema(ctx, c.Pool); err != nil {
			log.Fatalw("tenant schema", "err", err)
		}
		if err := tenants.Seed(ctx, c.Pool, seed); err != nil {
			log.Warnw("tenant seed", "err", err)
		}
		c.Store = tenants.NewPostgresStore(c.Pool, log)
	} else {
		c.Store = tenants.NewMemoryStore(log, seed)
	}

	c.Redis = db.MustRedis(cfg, log)
	engineOpts := []engine.Option{
		engine.WithLogger(log.With("component", "engine")),
		engine.WithMetrics(engine.NewMetrics(c.Registry)),
	}
	syncOpts := []groupsync.Option{
		groupsync.WithLogger(log.With("component", "groupsync")),
		groupsync.WithPause(cfg.Sync.Pause),
		groupsync.WithWorkers(cfg.Sync.Workers),
		groupsync.WithMetrics(groupsync.NewMetrics(c.Registry)),
	}
	if c.Redis != nil {
		engineOpts = append(engineOpts, engine.WithCache(engine.NewRedisCache(c.Redis)))
		syncOpts = append(syncOpts, groupsync.WithLocker(groupsync.NewRedisLocker(c.Redis), cfg.Sync.LockTTL))
	} else {
		syncOpts = append(syncOpts, groupsync.WithLocker(groupsync.NewLocalLocker(), cfg.Sync.LockTTL))
	}

	c.Engine = engine.New(cfg.Engine, engineOpts...)
	c.Coordinator = groupsync.New(c.Store, c.Engine, syncOpts...)
	return c
}

// Close releases connections.
func (c *Core) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}
