// Package policy decides which admin principals may call which routes.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// DefaultModule grants super admins every admin route and lets any
// authenticated role read the agents of a tenant.
const DefaultModule = `package admin

default allow = false

allow {
	input.role == "super_admin"
}

allow {
	input.role != ""
	input.method == "GET"
	startswith(input.path, "/admin/engine/agents/")
}
`

// Authorizer evaluates data.admin.allow against the request principal.
type Authorizer struct {
	query rego.PreparedEvalQuery
}

// New compiles module, which must define data.admin.allow.
func New(ctx context.Context, module string) (*Authorizer, error) {
	q, err := rego.New(
		rego.Query("data.admin.allow"),
		rego.Module("admin.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile admin policy: %w", err)
	}
	return &Authorizer{query: q}, nil
}

// Load reads the policy from path, or uses DefaultModule when path is empty.
func Load(ctx context.Context, path string) (*Authorizer, error) {
	if path == "" {
		return New(ctx, DefaultModule)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read admin policy: %w", err)
	}
	return New(ctx, string(b))
}

func (a *Authorizer) Allow(ctx context.Context, subject, role, method, path string) (bool, error) {
	rs, err := a.query.Eval(ctx, rego.EvalInput(map[string]any{
		"subject": subject,
		"role":    role,
		"method":  method,
		"path":    path,
	}))
	if err != nil {
		return false, err
	}
	return rs.Allowed(), nil
}
