package tenants

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the tenant row does not exist.
	ErrNotFound = errors.New("tenant not found")
	// ErrUnavailable wraps failures reaching the backing store itself.
	ErrUnavailable = errors.New("tenant store unavailable")
)

// Store is the persistence contract the sync core depends on.
type Store interface {
	// ListUnsynced returns tenants without a group, in creation order.
	ListUnsynced(ctx context.Context) ([]Tenant, error)
	Get(ctx context.Context, tenantID string) (Tenant, error)
	// SetGroup records the remote group. Fails with ErrNotFound if the tenant is gone.
	SetGroup(ctx context.Context, tenantID, group string) error
	// Stats returns coverage counts plus up to pendingLimit recently created unsynced tenants.
	Stats(ctx context.Context, pendingLimit int) (Stats, error)
}
