// pkg/tenants/postgres.go
package tenants

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"zienshield/pkg/db"
)

// pgStore implements Store over the companies table.
type pgStore struct {
	dbPool *pgxpool.Pool      // Connection pool to PostgreSQL
	log    *zap.SugaredLogger // Logger for diagnostic output
}

// NewPostgresStore constructs a PostgreSQL-backed tenant store.
func NewPostgresStore(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Store {
	return &pgStore{dbPool: dbPool, log: log}
}

// EnsureSchema creates the companies table and the columns the sync core relies on.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS companies (
  id BIGSERIAL PRIMARY KEY,
  tenant_id text NOT NULL UNIQUE,
  name text NOT NULL,
  wazuh_group text,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
-- Backfill for databases created by the dashboard before group sync existed
ALTER TABLE companies ADD COLUMN IF NOT EXISTS wazuh_group text;
ALTER TABLE companies ADD COLUMN IF NOT EXISTS created_at timestamptz NOT NULL DEFAULT NOW();
ALTER TABLE companies ADD COLUMN IF NOT EXISTS updated_at timestamptz NOT NULL DEFAULT NOW();
CREATE INDEX IF NOT EXISTS companies_unsynced_idx ON companies(id) WHERE wazuh_group IS NULL;
`)
	return err
}

// Seed upserts tenant names. Existing group assignments are never touched.
func Seed(ctx context.Context, dbPool *pgxpool.Pool, seed []Tenant) error {
	for _, t := range seed {
		if t.ID == "" {
			continue
		}
		if _, err := dbPool.Exec(ctx, `INSERT INTO companies(tenant_id, name) VALUES ($1,$2)
		  ON CONFLICT (tenant_id) DO UPDATE SET name=EXCLUDED.name, updated_at=NOW()`, t.ID, t.Name); err != nil {
			return fmt.Errorf("seed tenant %s: %w", t.ID, err)
		}
	}
	return nil
}

func (p *pgStore) ListUnsynced(ctx context.Context) ([]Tenant, error) {
	rows, err := p.dbPool.Query(ctx, `SELECT tenant_id, name, created_at FROM companies WHERE wazuh_group IS NULL ORDER BY id`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := []Tenant{}
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, classify(err)
		}
		out = append(out, t)
	}
	return out, classify(rows.Err())
}

func (p *pgStore) Get(ctx context.Context, tenantID string) (Tenant, error) {
	var t Tenant
	err := p.dbPool.QueryRow(ctx, `SELECT tenant_id, name, COALESCE(wazuh_group,''), created_at FROM companies WHERE tenant_id=$1`, tenantID).
		Scan(&t.ID, &t.Name, &t.Group, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, fmt.Errorf("%w: %s", ErrNotFound, tenantID)
		}
		return Tenant{}, classify(err)
	}
	return t, nil
}

func (p *pgStore) SetGroup(ctx context.Context, tenantID, group string) error {
	err := db.InTenantTx(ctx, p.dbPool, tenantID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE companies SET wazuh_group=$1, updated_at=NOW() WHERE tenant_id=$2`, group, tenantID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, tenantID)
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		p.log.Warnw("set tenant group", "tenant", tenantID, "group", group, "err", err)
	}
	return classify(err)
}

func (p *pgStore) Stats(ctx context.Context, pendingLimit int) (Stats, error) {
	var st Stats
	if err := p.dbPool.QueryRow(ctx, `SELECT COUNT(*), COUNT(wazuh_group) FROM companies`).Scan(&st.Total, &st.Synced); err != nil {
		return Stats{}, classify(err)
	}
	st.Pending = st.Total - st.Synced
	st.Recent = []Tenant{}
	if pendingLimit <= 0 {
		return st, nil
	}
	rows, err := p.dbPool.Query(ctx, `SELECT tenant_id, name, created_at FROM companies WHERE wazuh_group IS NULL ORDER BY created_at DESC LIMIT $1`, pendingLimit)
	if err != nil {
		return Stats{}, classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return Stats{}, classify(err)
		}
		st.Recent = append(st.Recent, t)
	}
	return st, classify(rows.Err())
}

// classify marks connectivity failures with ErrUnavailable so callers can tell
// "this row failed" apart from "the database is gone".
func classify(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
