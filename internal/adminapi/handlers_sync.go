package adminapi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"zienshield/internal/groupsync"
	"zienshield/pkg/middleware"
	"zienshield/pkg/problems"
	"zienshield/pkg/tenants"
)

// recentPendingLimit caps the pending tenants listed by the status route.
const recentPendingLimit = 10

// syncRunTimeout bounds an admin-triggered run. The run is detached from the
// request so a disconnecting client cannot stop it halfway through a tenant.
const syncRunTimeout = 30 * time.Minute

func detachedRun(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), syncRunTimeout)
}

type syncAllResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Error   string           `json:"error,omitempty"`
	Report  groupsync.Report `json:"report"`
}

type syncOneResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Result  groupsync.Result `json:"result"`
}

type syncStatusResponse struct {
	Total         int              `json:"total"`
	Synced        int              `json:"synced"`
	Pending       int              `json:"pending"`
	Percentage    int              `json:"percentage"`
	RecentPending []tenants.Tenant `json:"recent_pending"`
}

func (a *App) postSyncAll(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	a.Log.Infow("audit: sync all tenants", "sub", p.Subject, "role", p.Role, "request_id", middleware.RequestIDFrom(r.Context()))

	ctx, cancel := detachedRun(r)
	defer cancel()
	rep, err := a.Sync.SyncAll(ctx)
	if err != nil {
		if errors.Is(err, groupsync.ErrSyncInProgress) || !rep.Aborted {
			writeError(w, err)
			return
		}
		writeJSON(w, syncAllResponse{
			Message: fmt.Sprintf("run aborted after %d of %d tenants", len(rep.Results), rep.Total),
			Error:   err.Error(),
			Report:  rep,
		}, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, syncAllResponse{
		Success: rep.Failed == 0,
		Message: fmt.Sprintf("synced %d of %d tenants", rep.Synced, rep.Total),
		Report:  rep,
	}, http.StatusOK)
}

func (a *App) postSyncOne(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tenantId")
	p, _ := middleware.PrincipalFrom(r.Context())
	a.Log.Infow("audit: sync tenant", "tenant", id, "sub", p.Subject, "role", p.Role, "request_id", middleware.RequestIDFrom(r.Context()))

	ctx, cancel := detachedRun(r)
	defer cancel()
	res, err := a.Sync.SyncOne(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	switch res.Outcome {
	case groupsync.OutcomeAlreadySynced:
		writeJSON(w, syncOneResponse{Success: true, Message: "tenant already synced", Result: res}, http.StatusOK)
	case groupsync.OutcomeFailed:
		problems.Write(w, http.StatusBadGateway, "sync-failed", "Tenant sync failed", res.Error)
	default:
		msg := "engine group created"
		if res.Existed {
			msg = "engine group already existed, recorded locally"
		}
		writeJSON(w, syncOneResponse{Success: true, Message: msg, Result: res}, http.StatusOK)
	}
}

func (a *App) getSyncStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.Store.Stats(r.Context(), recentPendingLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, syncStatusResponse{
		Total:         st.Total,
		Synced:        st.Synced,
		Pending:       st.Pending,
		Percentage:    percentage(st.Synced, st.Total),
		RecentPending: st.Recent,
	}, http.StatusOK)
}

func percentage(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}
