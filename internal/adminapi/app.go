package adminapi

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"zienshield/internal/engine"
	"zienshield/internal/groupsync"
	"zienshield/pkg/middleware"
	"zienshield/pkg/openapi"
	"zienshield/pkg/tenants"
)

// Config holds admin-api specific configuration.
type Config struct {
	Env         string
	Issuer      string
	Audience    string
	CORSOrigins []string
	Tracing     bool
	Version     string
}

// Syncer is the group sync surface the admin routes drive.
type Syncer interface {
	SyncAll(ctx context.Context) (groupsync.Report, error)
	SyncOne(ctx context.Context, tenantID string) (groupsync.Result, error)
}

// Engine is the read/maintenance surface of the security engine client.
type Engine interface {
	ListGroups(ctx context.Context) ([]engine.Group, error)
	GroupAgents(ctx context.Context, group string) ([]engine.Agent, error)
	Health(ctx context.Context) engine.Health
	ClearTokenCache()
}

// Deps are the collaborators App needs. Keys may be nil outside prod.
type Deps struct {
	Log      *zap.SugaredLogger
	Store    tenants.Store
	Sync     Syncer
	Engine   Engine
	Authz    middleware.Authorizer
	Keys     middleware.KeySet
	Gatherer prometheus.Gatherer
}

// App is the admin-api application container.
// Handlers and middleware have methods on this type.
//
// Keep it lean: shared deps and config only.
// Request-scoped work should use context.
type App struct {
	Deps
	cfg  Config
	docs *openapi.Registry
}

func New(d Deps, cfg Config) *App {
	if d.Log == nil {
		d.Log = zap.NewNop().Sugar()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	a := &App{Deps: d, cfg: cfg, docs: openapi.NewRegistry()}
	a.registerDocs()
	return a
}
