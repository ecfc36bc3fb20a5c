package openapi

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Operation represents a single HTTP operation to surface in OpenAPI.
type Operation struct {
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Public      bool           `json:"-"` // no bearer required
	Roles       []string       `json:"x-required-roles,omitempty"`
	Responses   map[string]any `json:"responses"`
}

// Registry holds the operations a service documents.
type Registry struct {
	Ops []Operation
}

func NewRegistry() *Registry { return &Registry{Ops: []Operation{}} }

func (r *Registry) Register(op Operation) {
	if op.Method != "" {
		op.Method = strings.ToLower(op.Method)
	}
	if op.Responses == nil {
		op.Responses = map[string]any{"200": map[string]any{"description": "OK"}}
	}
	r.Ops = append(r.Ops, op)
}

// Build produces an OpenAPI 3.1 document for the registered operations.
// Admin operations require a bearer JWT; public ones override security with [].
func (r *Registry) Build(serviceName, version string) map[string]any {
	paths := map[string]any{}
	for _, op := range r.Ops {
		if _, ok := paths[op.Path]; !ok {
			paths[op.Path] = map[string]any{}
		}
		m := map[string]any{
			"summary":   op.Summary,
			"tags":      op.Tags,
			"responses": op.Responses,
		}
		if op.Description != "" {
			m["description"] = op.Description
		}
		if len(op.Roles) > 0 {
			m["x-required-roles"] = op.Roles
		}
		if op.Public {
			m["security"] = []map[string]any{}
		}
		paths[op.Path].(map[string]any)[op.Method] = m
	}
	return map[string]any{
		"openapi": "3.1.0",
		"info":    map[string]any{"title": serviceName, "version": version},
		"paths":   paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"adminBearer": map[string]any{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
				},
			},
		},
		"security": []map[string]any{{"adminBearer": []string{}}},
	}
}

// ServeHandler returns an HTTP handler that serves the built OpenAPI JSON.
func (r *Registry) ServeHandler(serviceName, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.Build(serviceName, version))
	}
}
