package openapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	r := NewRegistry()
	r.Register(Operation{Method: "POST", Path: "/admin/sync/tenants", Summary: "Sync all", Roles: []string{"super_admin"}})
	r.Register(Operation{Method: "GET", Path: "/engine/health", Summary: "Engine health", Public: true})

	doc := r.Build("zienshield-admin", "1.0.0")

	paths := doc["paths"].(map[string]any)
	post := paths["/admin/sync/tenants"].(map[string]any)["post"].(map[string]any)
	assert.Equal(t, []string{"super_admin"}, post["x-required-roles"])
	assert.NotContains(t, post, "security")
	assert.Contains(t, post["responses"], "200")

	get := paths["/engine/health"].(map[string]any)["get"].(map[string]any)
	require.Contains(t, get, "security")
	assert.Empty(t, get["security"])
}
