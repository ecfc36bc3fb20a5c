package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"zienshield/internal/engine"
	"zienshield/internal/groupsync"
	"zienshield/pkg/problems"
	"zienshield/pkg/tenants"
)

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto problem documents.
func writeError(w http.ResponseWriter, err error) {
	var (
		svcErr  *engine.ServiceError
		authErr *engine.AuthError
	)
	switch {
	case errors.Is(err, tenants.ErrNotFound):
		problems.Write(w, http.StatusNotFound, "tenant-not-found", "Tenant not found", err.Error())
	case errors.Is(err, groupsync.ErrSyncInProgress):
		problems.Write(w, http.StatusConflict, "sync-in-progress", "Sync already running", err.Error())
	case errors.Is(err, tenants.ErrUnavailable):
		problems.Write(w, http.StatusServiceUnavailable, "store-unavailable", "Tenant store unavailable", err.Error())
	case errors.As(err, &authErr):
		problems.Write(w, http.StatusBadGateway, "engine-auth-failed", "Security engine rejected credentials", err.Error())
	case errors.As(err, &svcErr):
		problems.Write(w, http.StatusBadGateway, "engine-unavailable", "Security engine call failed", err.Error())
	default:
		problems.Write(w, http.StatusInternalServerError, "internal", "Internal error", err.Error())
	}
}
