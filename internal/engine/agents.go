package engine

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"
)

// AgentListLimit bounds the single page of agents fetched per listing.
const AgentListLimit = 1000

const agentsCacheTTL = 2 * time.Minute

type AgentOS struct {
	Name     string `json:"name,omitempty"`
	Platform string `json:"platform,omitempty"`
	Version  string `json:"version,omitempty"`
}

type Agent struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	IP            string   `json:"ip,omitempty"`
	Status        string   `json:"status"`
	Version       string   `json:"version,omitempty"`
	Groups        []string `json:"group,omitempty"`
	LastKeepAlive string   `json:"lastKeepAlive,omitempty"`
	OS            *AgentOS `json:"os,omitempty"`
}

// InGroup reports whether the agent is assigned to group.
func (a Agent) InGroup(group string) bool { return slices.Contains(a.Groups, group) }

// ListAgents returns up to limit agents.
func (c *Client) ListAgents(ctx context.Context, limit int) ([]Agent, error) {
	if limit <= 0 {
		limit = AgentListLimit
	}
	key := fmt.Sprintf("engine:agents:%d", limit)
	return cached(ctx, c.cache, key, agentsCacheTTL, func() ([]Agent, error) {
		doc, err := c.Call(ctx, http.MethodGet, fmt.Sprintf("/agents?limit=%d", limit), nil)
		if err != nil {
			return nil, err
		}
		return affectedItems[Agent](doc)
	})
}

// GroupAgents returns the agents assigned to group.
func (c *Client) GroupAgents(ctx context.Context, group string) ([]Agent, error) {
	all, err := c.ListAgents(ctx, AgentListLimit)
	if err != nil {
		return nil, err
	}
	out := []Agent{}
	for _, a := range all {
		if a.InGroup(group) {
			out = append(out, a)
		}
	}
	return out, nil
}
