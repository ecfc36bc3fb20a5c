package tenants

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadSeed reads bootstrap tenants from TENANT_SEED_JSON or a YAML file.
// jsonSeed format: [{"tenant_id":"acme-001","name":"Acme"}]
// YAML file format:
//
//	tenants:
//	  - tenant_id: acme-001
//	    name: Acme
//
// Both sources are merged, JSON entries first.
func LoadSeed(jsonSeed, yamlPath string) ([]Tenant, error) {
	var out []Tenant
	if jsonSeed != "" {
		var entries []Tenant
		if err := json.Unmarshal([]byte(jsonSeed), &entries); err != nil {
			return nil, fmt.Errorf("parse TENANT_SEED_JSON: %w", err)
		}
		out = append(out, entries...)
	}
	if yamlPath != "" {
		raw, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("read tenant seed file: %w", err)
		}
		var doc struct {
			Tenants []Tenant `yaml:"tenants"`
		}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse tenant seed file %s: %w", yamlPath, err)
		}
		out = append(out, doc.Tenants...)
	}
	for i, t := range out {
		if t.ID == "" {
			return nil, fmt.Errorf("seed entry %d: missing tenant_id", i)
		}
	}
	return out, nil
}
