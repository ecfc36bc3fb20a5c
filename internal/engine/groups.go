package engine

import (
	"context"
	"net/http"
	"time"
)

// GroupPrefix namespaces tenant groups on the engine.
const GroupPrefix = "zs_"

const (
	groupsCacheKey = "engine:groups"
	groupsCacheTTL = 5 * time.Minute
)

// GroupName is the engine group owned by tenantID.
func GroupName(tenantID string) string { return GroupPrefix + tenantID }

type GroupResult struct {
	Name    string `json:"group"`
	Existed bool   `json:"existed"`
}

type Group struct {
	Name      string `json:"name"`
	Count     int    `json:"count"`
	MergedSum string `json:"mergedSum,omitempty"`
	ConfigSum string `json:"configSum,omitempty"`
}

// CreateGroup creates the tenant's group. A group that is already present on the
// engine counts as success with Existed set.
func (c *Client) CreateGroup(ctx context.Context, tenantID string) (GroupResult, error) {
	name := GroupName(tenantID)
	_, err := c.Call(ctx, http.MethodPost, "/groups", map[string]string{"group_id": name})
	if err != nil && !IsGroupExists(err) {
		return GroupResult{}, err
	}
	c.cache.Delete(ctx, groupsCacheKey)
	if err != nil {
		c.log.Infow("engine group already exists", "tenant", tenantID, "group", name)
		return GroupResult{Name: name, Existed: true}, nil
	}
	c.log.Infow("engine group created", "tenant", tenantID, "group", name)
	return GroupResult{Name: name}, nil
}

// ListGroups returns every group on the engine.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	return cached(ctx, c.cache, groupsCacheKey, groupsCacheTTL, func() ([]Group, error) {
		doc, err := c.Call(ctx, http.MethodGet, "/groups", nil)
		if err != nil {
			return nil, err
		}
		return affectedItems[Group](doc)
	})
}
