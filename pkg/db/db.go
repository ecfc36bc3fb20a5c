// pkg/db/db.go
package db

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"zienshield/pkg/config"
)

// MustConnect opens the Postgres pool or exits. Returns nil when DATABASE_URL is unset.
func MustConnect(cfg config.Config, log *zap.SugaredLogger) *pgxpool.Pool {
	if cfg.DatabaseURL == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("pg connect", "err", err)
	}
	if err := pool.Ping(ctx); err != nil {
		log.Fatalw("pg ping", "err", err)
	}
	log.Infow("postgres ready", "host", redactDSN(cfg.DatabaseURL))
	return pool
}

// MustRedis opens the Redis client or exits. Returns nil when REDIS_URL is unset.
func MustRedis(cfg config.Config, log *zap.SugaredLogger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalw("redis parse", "err", err)
	}
	cli := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		log.Fatalw("redis ping", "err", err)
	}
	log.Infow("redis ready", "addr", opts.Addr)
	return cli
}

func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "@"); i > 0 {
		return "***@" + dsn[i+1:]
	}
	return dsn
}
