package adminapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"zienshield/internal/engine"
	"zienshield/pkg/middleware"
	"zienshield/pkg/problems"
)

func (a *App) getEngineGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := a.Engine.ListGroups(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	owned := 0
	for _, g := range groups {
		if strings.HasPrefix(g.Name, engine.GroupPrefix) {
			owned++
		}
	}
	writeJSON(w, map[string]any{"groups": groups, "total": len(groups), "tenant_groups": owned}, http.StatusOK)
}

func (a *App) getTenantAgents(w http.ResponseWriter, r *http.Request) {
	t, err := a.Store.Get(r.Context(), chi.URLParam(r, "tenantId"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !t.Synced() {
		problems.Write(w, http.StatusConflict, "tenant-not-synced", "Tenant has no engine group", "run a sync for "+t.ID+" first")
		return
	}
	agents, err := a.Engine.GroupAgents(r.Context(), t.Group)
	if err != nil {
		writeError(w, err)
		return
	}
	active := 0
	for _, ag := range agents {
		if ag.Status == "active" {
			active++
		}
	}
	writeJSON(w, map[string]any{
		"tenant_id": t.ID,
		"group":     t.Group,
		"total":     len(agents),
		"active":    active,
		"agents":    agents,
	}, http.StatusOK)
}

func (a *App) postClearCache(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	a.Log.Infow("audit: clear engine token cache", "sub", p.Subject, "role", p.Role)
	a.Engine.ClearTokenCache()
	writeJSON(w, map[string]any{"success": true, "message": "engine token cache cleared"}, http.StatusOK)
}

func (a *App) getEngineHealth(w http.ResponseWriter, r *http.Request) {
	h := a.Engine.Health(r.Context())
	status := http.StatusOK
	if !h.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, h, status)
}
