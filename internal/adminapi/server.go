package adminapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zienshield/pkg/middleware"
	"zienshield/pkg/openapi"
)

// Handler builds the HTTP handler with routes and middleware.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID(), chimw.RealIP, middleware.Recover(a.Log), middleware.Tracing(a.cfg.Tracing, "admin-api"))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true}, http.StatusOK)
	})
	r.Get("/metrics", promhttp.HandlerFor(a.Gatherer, promhttp.HandlerOpts{}).ServeHTTP)
	r.Get("/.well-known/openapi.json", a.docs.ServeHandler("zienshield-admin", a.cfg.Version))
	r.Get("/engine/health", a.getEngineHealth)

	auth := middleware.AdminAuth(middleware.AuthConfig{Env: a.cfg.Env, Issuer: a.cfg.Issuer, Audience: a.cfg.Audience}, a.Keys, a.Authz, a.Log)
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(cors(a.cfg.CORSOrigins))
		ar.Use(auth)
		ar.Post("/sync/tenants", a.postSyncAll)
		ar.Post("/sync/tenants/{tenantId}", a.postSyncOne)
		ar.Get("/sync/status", a.getSyncStatus)
		ar.Get("/engine/groups", a.getEngineGroups)
		ar.Get("/engine/agents/{tenantId}", a.getTenantAgents)
		ar.Post("/engine/cache/clear", a.postClearCache)
	})

	return r
}

func (a *App) registerDocs() {
	admin := []string{"super_admin"}
	for _, op := range []openapi.Operation{
		{Method: "POST", Path: "/admin/sync/tenants", Summary: "Create engine groups for every unsynced tenant", Tags: []string{"sync"}, Roles: admin},
		{Method: "POST", Path: "/admin/sync/tenants/{tenantId}", Summary: "Create the engine group for one tenant", Tags: []string{"sync"}, Roles: admin},
		{Method: "GET", Path: "/admin/sync/status", Summary: "Sync coverage and recent pending tenants", Tags: []string{"sync"}, Roles: admin},
		{Method: "GET", Path: "/admin/engine/groups", Summary: "Groups defined on the security engine", Tags: []string{"engine"}, Roles: admin},
		{Method: "GET", Path: "/admin/engine/agents/{tenantId}", Summary: "Agents enrolled in a tenant's group", Tags: []string{"engine"}},
		{Method: "POST", Path: "/admin/engine/cache/clear", Summary: "Drop the cached engine credential", Tags: []string{"engine"}, Roles: admin},
		{Method: "GET", Path: "/engine/health", Summary: "Security engine reachability", Tags: []string{"engine"}, Public: true},
	} {
		a.docs.Register(op)
	}
}
