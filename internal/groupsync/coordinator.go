// Package groupsync reconciles tenants with their security-engine groups.
package groupsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"zienshield/internal/engine"
	"zienshield/pkg/tenants"
)

// ErrSyncInProgress is returned when another run holds the sync lock.
var ErrSyncInProgress = errors.New("group sync already in progress")

// ErrLockLost stops a run whose lock expired and was taken by another holder.
var ErrLockLost = errors.New("group sync lock lost")

const lockKey = "zienshield:groupsync:run"

// GroupCreator creates the engine group for a tenant.
type GroupCreator interface {
	CreateGroup(ctx context.Context, tenantID string) (engine.GroupResult, error)
}

type waitFunc func(time.Duration) <-chan time.Time

// Coordinator pairs engine group creation with the tenant store write.
type Coordinator struct {
	store   tenants.Store
	engine  GroupCreator
	log     *zap.SugaredLogger
	pause   time.Duration
	workers int
	locker  Locker
	lockTTL time.Duration
	metrics *Metrics
	wait    waitFunc
	tracer  trace.Tracer
}

type Option func(*Coordinator)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// WithPause sets the delay between consecutive tenants.
func WithPause(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.pause = d
		}
	}
}

// WithWorkers bounds how many tenants are in flight at once. 1 keeps runs sequential.
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLocker guards runs with l. The lease is renewed to ttl before every
// tenant and expires after ttl if the holder dies.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.locker = l
		}
		if ttl > 0 {
			c.lockTTL = ttl
		}
	}
}

func WithMetrics(m *Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

// WithWait replaces the timer used for the pause between tenants.
func WithWait(w func(time.Duration) <-chan time.Time) Option {
	return func(c *Coordinator) { c.wait = w }
}

func New(store tenants.Store, eng GroupCreator, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		engine:  eng,
		log:     zap.NewNop().Sugar(),
		pause:   time.Second,
		workers: 1,
		locker:  NewLocalLocker(),
		lockTTL: 10 * time.Minute,
		wait:    time.After,
		tracer:  otel.Tracer("zienshield/groupsync"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SyncTenant creates the tenant's group and records it. The store is written
// exactly once on success and never on failure. Cancelling ctx does not
// interrupt a tenant once started; the engine client's timeout bounds it.
func (c *Coordinator) SyncTenant(ctx context.Context, t tenants.Tenant) Result {
	ctx, span := c.tracer.Start(ctx, "groupsync.SyncTenant", trace.WithAttributes(attribute.String("tenant.id", t.ID)))
	defer span.End()
	ctx = context.WithoutCancel(ctx)

	res := Result{TenantID: t.ID, TenantName: t.Name}
	fail := func(err error) Result {
		res.Outcome = OutcomeFailed
		res.Err = err
		res.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.tenant(OutcomeFailed)
		c.log.Warnw("tenant sync failed", "tenant", t.ID, "name", t.Name, "err", err)
		return res
	}

	gr, err := c.engine.CreateGroup(ctx, t.ID)
	if err != nil {
		return fail(fmt.Errorf("create group: %w", err))
	}
	if err := c.store.SetGroup(ctx, t.ID, gr.Name); err != nil {
		return fail(fmt.Errorf("record group %s: %w", gr.Name, err))
	}
	res.Outcome = OutcomeSynced
	res.Group = gr.Name
	res.Existed = gr.Existed
	span.SetAttributes(attribute.String("engine.group", gr.Name), attribute.Bool("engine.group_existed", gr.Existed))
	c.metrics.tenant(OutcomeSynced)
	c.log.Infow("tenant synced", "tenant", t.ID, "group", gr.Name, "existed", gr.Existed)
	return res
}

// SyncAll syncs every tenant without a group, in store order. Per-tenant
// failures land in the report; an error is returned only when the run could
// not start or had to stop early, together with the partial report.
func (c *Coordinator) SyncAll(ctx context.Context) (Report, error) {
	ctx, span := c.tracer.Start(ctx, "groupsync.SyncAll")
	defer span.End()

	rep := newReport(uuid.NewString(), time.Now().UTC())
	log := c.log.With("run", rep.RunID)

	lease, err := c.locker.Acquire(ctx, lockKey, c.lockTTL)
	if err != nil {
		if errors.Is(err, ErrLocked) {
			c.metrics.run("skipped", 0)
			return rep, ErrSyncInProgress
		}
		return rep, fmt.Errorf("acquire sync lock: %w", err)
	}
	defer lease.Release()

	pending, err := c.store.ListUnsynced(ctx)
	if err != nil {
		c.finish(log, &rep, "aborted")
		return rep, fmt.Errorf("list unsynced tenants: %w", err)
	}
	rep.Total = len(pending)
	c.metrics.pending(len(pending))
	span.SetAttributes(attribute.Int("sync.pending", len(pending)))
	log.Infow("sync run started", "pending", len(pending), "workers", c.workers)

	if c.workers > 1 {
		err = c.runPool(ctx, lease, log, pending, &rep)
	} else {
		err = c.runSequential(ctx, lease, log, pending, &rep)
	}
	if err != nil {
		rep.Aborted = true
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.finish(log, &rep, "aborted")
		return rep, err
	}
	result := "ok"
	if rep.Failed > 0 {
		result = "partial"
	}
	c.finish(log, &rep, result)
	return rep, nil
}

// renew pushes the run lock's expiry out before the next tenant. A failure to
// reach the locker is only logged; a lease taken over by someone else stops the run.
func (c *Coordinator) renew(ctx context.Context, lease Lease, log *zap.SugaredLogger) error {
	err := lease.Extend(ctx, c.lockTTL)
	if errors.Is(err, ErrLocked) {
		return ErrLockLost
	}
	if err != nil {
		log.Warnw("extend sync lock", "err", err)
	}
	return nil
}

func (c *Coordinator) runSequential(ctx context.Context, lease Lease, log *zap.SugaredLogger, pending []tenants.Tenant, rep *Report) error {
	for i, t := range pending {
		if i > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.wait(c.pause):
			}
			if err := c.renew(ctx, lease, log); err != nil {
				return fmt.Errorf("%w, %d tenant(s) not attempted", err, len(pending)-i)
			}
		}
		res := c.SyncTenant(ctx, t)
		rep.add(res)
		if errors.Is(res.Err, tenants.ErrUnavailable) {
			return fmt.Errorf("tenant store unavailable, %d tenant(s) not attempted: %w", len(pending)-i-1, res.Err)
		}
	}
	return nil
}

// runPool starts at most one tenant per pause and keeps up to c.workers in flight.
func (c *Coordinator) runPool(ctx context.Context, lease Lease, log *zap.SugaredLogger, pending []tenants.Tenant, rep *Report) error {
	results := make([]*Result, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	var lockErr error
dispatch:
	for i, t := range pending {
		if i > 0 {
			select {
			case <-gctx.Done():
				break dispatch
			case <-c.wait(c.pause):
			}
			if lockErr = c.renew(gctx, lease, log); lockErr != nil {
				break
			}
		}
		if gctx.Err() != nil {
			break
		}
		i, t := i, t
		g.Go(func() error {
			res := c.SyncTenant(gctx, t)
			results[i] = &res
			if errors.Is(res.Err, tenants.ErrUnavailable) {
				return fmt.Errorf("tenant store unavailable: %w", res.Err)
			}
			return nil
		})
	}
	err := g.Wait()
	for _, r := range results {
		if r != nil {
			rep.add(*r)
		}
	}
	if err != nil {
		return err
	}
	if lockErr != nil {
		return lockErr
	}
	return ctx.Err()
}

func (c *Coordinator) finish(log *zap.SugaredLogger, rep *Report, result string) {
	d := time.Since(rep.StartedAt)
	rep.DurationMS = d.Milliseconds()
	c.metrics.run(result, d.Seconds())
	log.Infow("sync run finished", "result", result, "total", rep.Total, "synced", rep.Synced, "failed", rep.Failed, "duration", d)
}

// SyncOne syncs a single tenant by id. A tenant that already has a group is
// reported as OutcomeAlreadySynced without contacting the engine.
func (c *Coordinator) SyncOne(ctx context.Context, tenantID string) (Result, error) {
	t, err := c.store.Get(ctx, tenantID)
	if err != nil {
		return Result{}, err
	}
	if t.Synced() {
		return Result{TenantID: t.ID, TenantName: t.Name, Outcome: OutcomeAlreadySynced, Group: t.Group}, nil
	}

	lease, err := c.locker.Acquire(ctx, lockKey, c.lockTTL)
	if err != nil {
		if errors.Is(err, ErrLocked) {
			return Result{}, ErrSyncInProgress
		}
		return Result{}, fmt.Errorf("acquire sync lock: %w", err)
	}
	defer lease.Release()

	res := c.SyncTenant(ctx, t)
	if errors.Is(res.Err, tenants.ErrUnavailable) {
		return res, res.Err
	}
	return res, nil
}
