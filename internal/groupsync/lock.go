package groupsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned by Acquire when another holder owns the key.
var ErrLocked = errors.New("lock held by another holder")

// Lease is a held lock. Release is safe to call once the lease has expired.
type Lease interface {
	// Extend moves the expiry to ttl from now. ErrLocked means the lease was lost.
	Extend(ctx context.Context, ttl time.Duration) error
	Release()
}

// Locker hands out short-lived advisory locks.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// LocalLocker guards runs inside a single process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localLease
	now  func() time.Time
	seq  uint64
}

type localLease struct {
	id  uint64
	exp time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]localLease{}, now: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lease, ok := l.held[key]; ok && l.now().Before(lease.exp) {
		return nil, ErrLocked
	}
	l.seq++
	l.held[key] = localLease{id: l.seq, exp: l.now().Add(ttl)}
	return &localHandle{l: l, key: key, id: l.seq}, nil
}

type localHandle struct {
	l   *LocalLocker
	key string
	id  uint64
}

func (h *localHandle) Extend(_ context.Context, ttl time.Duration) error {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	if cur, ok := h.l.held[h.key]; !ok || cur.id != h.id {
		return ErrLocked
	}
	h.l.held[h.key] = localLease{id: h.id, exp: h.l.now().Add(ttl)}
	return nil
}

func (h *localHandle) Release() {
	h.l.mu.Lock()
	if cur, ok := h.l.held[h.key]; ok && cur.id == h.id {
		delete(h.l.held, h.key)
	}
	h.l.mu.Unlock()
}

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

// extendScript refreshes the expiry only while the key still carries our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// RedisLocker shares the lock between every replica using the same Redis.
type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker { return &RedisLocker{rdb: rdb} }

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	return &redisLease{rdb: l.rdb, key: key, token: token}, nil
}

type redisLease struct {
	rdb   *redis.Client
	key   string
	token string
}

func (l *redisLease) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.rdb, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLocked
	}
	return nil
}

func (l *redisLease) Release() {
	rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = releaseScript.Run(rctx, l.rdb, []string{l.key}, l.token).Err()
}
