package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"zienshield/internal/engine"
	"zienshield/internal/groupsync"
	"zienshield/internal/policy"
	"zienshield/pkg/tenants"
)

type fakeEngine struct {
	groups  []engine.Group
	agents  map[string][]engine.Agent
	err     error
	health  engine.Health
	cleared bool
	creates []string
}

func (f *fakeEngine) CreateGroup(_ context.Context, tenantID string) (engine.GroupResult, error) {
	f.creates = append(f.creates, tenantID)
	if f.err != nil {
		return engine.GroupResult{}, f.err
	}
	return engine.GroupResult{Name: engine.GroupName(tenantID)}, nil
}

func (f *fakeEngine) ListGroups(context.Context) ([]engine.Group, error) { return f.groups, f.err }

func (f *fakeEngine) GroupAgents(_ context.Context, group string) ([]engine.Agent, error) {
	return f.agents[group], f.err
}

func (f *fakeEngine) Health(context.Context) engine.Health { return f.health }
func (f *fakeEngine) ClearTokenCache()                     { f.cleared = true }

type stubSyncer struct {
	all func(ctx context.Context) (groupsync.Report, error)
	one func(ctx context.Context, id string) (groupsync.Result, error)
}

func (s stubSyncer) SyncAll(ctx context.Context) (groupsync.Report, error) { return s.all(ctx) }
func (s stubSyncer) SyncOne(ctx context.Context, id string) (groupsync.Result, error) {
	return s.one(ctx, id)
}

type harness struct {
	store tenants.Store
	eng   *fakeEngine
	srv   http.Handler
}

func newHarness(t *testing.T, sync Syncer) *harness {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	store := tenants.NewMemoryStore(log, []tenants.Tenant{
		{ID: "T1", Name: "Acme", CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "T2", Name: "Globex", Group: "zs_T2"},
		{ID: "T3", Name: "Initech", CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	})
	eng := &fakeEngine{agents: map[string][]engine.Agent{}}
	if sync == nil {
		sync = groupsync.New(store, eng, groupsync.WithLogger(log), groupsync.WithPause(0))
	}
	authz, err := policy.Load(context.Background(), "")
	require.NoError(t, err)
	app := New(Deps{
		Log:      log,
		Store:    store,
		Sync:     sync,
		Engine:   eng,
		Authz:    authz,
		Gatherer: prometheus.NewRegistry(),
	}, Config{Env: "dev", CORSOrigins: []string{"http://localhost:3000"}})
	return &harness{store: store, eng: eng, srv: app.Handler()}
}

func (h *harness) do(t *testing.T, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestPostSyncAll(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/admin/sync/tenants", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[syncAllResponse](t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, 2, body.Report.Total)
	assert.Equal(t, 2, body.Report.Synced)
	assert.Empty(t, body.Report.Failures)
	assert.Equal(t, []string{"T1", "T3"}, h.eng.creates)

	st := decode[syncStatusResponse](t, h.do(t, http.MethodGet, "/admin/sync/status", nil))
	assert.Equal(t, 100, st.Percentage)
}

func TestPostSyncAll_PartialFailureIsStillOK(t *testing.T) {
	h := newHarness(t, nil)
	h.eng.err = &engine.ServiceError{Method: "POST", Endpoint: "/groups", Attempts: 3, Last: errors.New("boom")}

	rec := h.do(t, http.MethodPost, "/admin/sync/tenants", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[syncAllResponse](t, rec)
	assert.False(t, body.Success)
	assert.Len(t, body.Report.Failures, 2)
	assert.Equal(t, "T1", body.Report.Failures[0].TenantID)
}

func TestPostSyncAll_Errors(t *testing.T) {
	t.Run("in progress", func(t *testing.T) {
		h := newHarness(t, stubSyncer{all: func(context.Context) (groupsync.Report, error) {
			return groupsync.Report{}, groupsync.ErrSyncInProgress
		}})
		rec := h.do(t, http.MethodPost, "/admin/sync/tenants", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	})
	t.Run("aborted mid run", func(t *testing.T) {
		h := newHarness(t, stubSyncer{all: func(context.Context) (groupsync.Report, error) {
			rep := groupsync.Report{Total: 3, Synced: 1, Aborted: true, Results: make([]groupsync.Result, 2)}
			return rep, fmt.Errorf("tenant store unavailable: %w", tenants.ErrUnavailable)
		}})
		rec := h.do(t, http.MethodPost, "/admin/sync/tenants", nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decode[syncAllResponse](t, rec)
		assert.False(t, body.Success)
		assert.Equal(t, "run aborted after 2 of 3 tenants", body.Message)
		assert.True(t, body.Report.Aborted)
	})
	t.Run("store down before start", func(t *testing.T) {
		h := newHarness(t, stubSyncer{all: func(context.Context) (groupsync.Report, error) {
			return groupsync.Report{}, fmt.Errorf("list unsynced tenants: %w", tenants.ErrUnavailable)
		}})
		rec := h.do(t, http.MethodPost, "/admin/sync/tenants", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	})
}

func TestPostSyncAll_RunOutlivesClientDisconnect(t *testing.T) {
	reqCtx, disconnect := context.WithCancel(context.Background())
	defer disconnect()
	var runErr error
	var hasDeadline bool
	h := newHarness(t, stubSyncer{all: func(ctx context.Context) (groupsync.Report, error) {
		disconnect()
		runErr = ctx.Err()
		_, hasDeadline = ctx.Deadline()
		return groupsync.Report{Total: 1, Synced: 1}, nil
	}})

	req := httptest.NewRequest(http.MethodPost, "/admin/sync/tenants", nil).WithContext(reqCtx)
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NoError(t, runErr)
	assert.True(t, hasDeadline)
}

func TestPostSyncOne(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/admin/sync/tenants/T1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[syncOneResponse](t, rec)
	assert.Equal(t, groupsync.OutcomeSynced, body.Result.Outcome)
	assert.Equal(t, "zs_T1", body.Result.Group)

	rec = h.do(t, http.MethodPost, "/admin/sync/tenants/T2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[syncOneResponse](t, rec)
	assert.Equal(t, groupsync.OutcomeAlreadySynced, body.Result.Outcome)
	assert.Equal(t, []string{"T1"}, h.eng.creates)

	rec = h.do(t, http.MethodPost, "/admin/sync/tenants/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostSyncOne_EngineFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.eng.err = errors.New("engine returned 500")

	rec := h.do(t, http.MethodPost, "/admin/sync/tenants/T3", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "engine returned 500")

	got, err := h.store.Get(context.Background(), "T3")
	require.NoError(t, err)
	assert.False(t, got.Synced())
}

func TestGetSyncStatus(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/admin/sync/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[syncStatusResponse](t, rec)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.Synced)
	assert.Equal(t, 2, st.Pending)
	assert.Equal(t, 33, st.Percentage)
	require.Len(t, st.RecentPending, 2)
	assert.Equal(t, "T3", st.RecentPending[0].ID)
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0, percentage(0, 0))
	assert.Equal(t, 67, percentage(2, 3))
	assert.Equal(t, 100, percentage(5, 5))
}

func TestGetEngineGroups(t *testing.T) {
	h := newHarness(t, nil)
	h.eng.groups = []engine.Group{{Name: "default", Count: 4}, {Name: "zs_T2", Count: 1}}

	rec := h.do(t, http.MethodGet, "/admin/engine/groups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 1, body["tenant_groups"])

	h.eng.err = &engine.ServiceError{Method: "GET", Endpoint: "/groups", Attempts: 3, Last: errors.New("timeout")}
	rec = h.do(t, http.MethodGet, "/admin/engine/groups", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGetTenantAgents(t *testing.T) {
	h := newHarness(t, nil)
	h.eng.agents["zs_T2"] = []engine.Agent{{ID: "001", Status: "active"}, {ID: "002", Status: "disconnected"}}
	viewer := map[string]string{"X-Admin-Subject": "carol", "X-Admin-Role": "tenant_admin"}

	rec := h.do(t, http.MethodGet, "/admin/engine/agents/T2", viewer)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "zs_T2", body["group"])
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 1, body["active"])

	assert.Equal(t, http.StatusConflict, h.do(t, http.MethodGet, "/admin/engine/agents/T1", viewer).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/admin/engine/agents/nope", viewer).Code)
}

func TestPostClearCache(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/admin/engine/cache/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, h.eng.cleared)
}

func TestAdminRoutesEnforcePolicy(t *testing.T) {
	h := newHarness(t, nil)
	viewer := map[string]string{"X-Admin-Subject": "carol", "X-Admin-Role": "tenant_admin"}

	rec := h.do(t, http.MethodPost, "/admin/sync/tenants", viewer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, h.eng.creates)

	rec = h.do(t, http.MethodPost, "/admin/engine/cache/clear", viewer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, h.eng.cleared)
}

func TestGetEngineHealth(t *testing.T) {
	h := newHarness(t, nil)
	h.eng.health = engine.Health{Status: "healthy", Version: "4.7.2"}
	rec := h.do(t, http.MethodGet, "/engine/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4.7.2", decode[engine.Health](t, rec).Version)

	h.eng.health = engine.Health{Status: "unhealthy", Error: "dial tcp: refused"}
	rec = h.do(t, http.MethodGet, "/engine/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPublicEndpoints(t *testing.T) {
	h := newHarness(t, nil)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/metrics", nil).Code)

	rec := h.do(t, http.MethodGet, "/.well-known/openapi.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "/admin/sync/tenants"))
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodOptions, "/admin/sync/tenants", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = h.do(t, http.MethodOptions, "/admin/sync/tenants", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
