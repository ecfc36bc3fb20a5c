package tenants

import "time"

// Tenant is a customer organization ("company") eligible for a security engine group.
type Tenant struct {
	ID        string    `json:"tenant_id" yaml:"tenant_id"` // stable, unique; the group name derives from it
	Name      string    `json:"name" yaml:"name"`
	Group     string    `json:"wazuh_group,omitempty" yaml:"wazuh_group,omitempty"` // empty until synced
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// Synced reports whether the tenant already has a remote group recorded.
func (t Tenant) Synced() bool { return t.Group != "" }

// Stats summarizes sync coverage across all tenants.
type Stats struct {
	Total   int      `json:"total"`
	Synced  int      `json:"synced"`
	Pending int      `json:"pending"`
	Recent  []Tenant `json:"recent_pending"` // newest first
}
