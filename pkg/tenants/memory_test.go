package tenants

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newSeededStore(t *testing.T) Store {
	t.Helper()
	return NewMemoryStore(zaptest.NewLogger(t).Sugar(), []Tenant{
		{ID: "t1", Name: "Acme"},
		{ID: "t2", Name: "Globex", Group: "zs_t2"},
		{ID: "t3", Name: "Initech"},
	})
}

func TestListUnsynced_PreservesOrderAndSkipsSynced(t *testing.T) {
	store := newSeededStore(t)

	pending, err := store.ListUnsynced(context.Background())
	require.NoError(t, err)

	require.Len(t, pending, 2)
	assert.Equal(t, "t1", pending[0].ID)
	assert.Equal(t, "t3", pending[1].ID)
}

func TestSetGroup_RemovesTenantFromPending(t *testing.T) {
	store := newSeededStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetGroup(ctx, "t1", "zs_t1"))

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "zs_t1", got.Group)
	assert.True(t, got.Synced())

	pending, err := store.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "t3", pending[0].ID)
}

func TestSetGroup_UnknownTenantFailsLoudly(t *testing.T) {
	store := newSeededStore(t)

	err := store.SetGroup(context.Background(), "missing", "zs_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet_NotFound(t *testing.T) {
	_, err := newSeededStore(t).Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewMemoryStore_DropsDuplicatesAndBlankIDs(t *testing.T) {
	store := NewMemoryStore(nil, []Tenant{{ID: "a", Name: "first"}, {ID: "a", Name: "second"}, {Name: "no id"}})

	st, err := store.Stats(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)

	got, err := store.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)
}

func TestStats(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(nil, []Tenant{
		{ID: "old", Name: "Old", CreatedAt: base},
		{ID: "synced", Name: "Synced", Group: "zs_synced", CreatedAt: base.Add(time.Hour)},
		{ID: "new", Name: "New", CreatedAt: base.Add(2 * time.Hour)},
	})

	st, err := store.Stats(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.Synced)
	assert.Equal(t, 2, st.Pending)
	require.Len(t, st.Recent, 1)
	assert.Equal(t, "new", st.Recent[0].ID)
}
