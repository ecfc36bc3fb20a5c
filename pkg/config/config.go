// pkg/config/config.go
package config

import (
	"errors"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string // admin-api-service

	// Redis & Postgres (both optional in dev)
	RedisURL    string
	DatabaseURL string

	// Admin bearer validation + authorization policy
	AdminIssuer     string
	AdminAudience   string
	AdminJWKSURL    string
	AdminPolicyFile string
	CORSOrigins     []string

	// Tenant seed for dev/bootstrap (JSON env or YAML file)
	TenantSeedJSON string
	TenantSeedFile string

	Engine EngineConfig
	Sync   SyncConfig
}

// EngineConfig is the security engine (Wazuh API) connection block.
type EngineConfig struct {
	APIURL        string
	Username      string
	Password      string
	SSLVerify     bool
	Timeout       time.Duration
	RetryAttempts int
}

type SyncConfig struct {
	Pause    time.Duration // fixed pause between tenants
	Workers  int           // 1 = sequential
	LockTTL  time.Duration
	Interval time.Duration // 0 = run once (sync-service)
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:             env("ZS_ENV", "dev"),
		HTTPAddr:        env("ADMIN_HTTP_ADDR", ":8082"),
		RedisURL:        env("REDIS_URL", ""),
		DatabaseURL:     env("DATABASE_URL", ""),
		AdminIssuer:     env("ADMIN_OIDC_ISSUER", ""),
		AdminAudience:   env("ADMIN_OIDC_AUDIENCE", "zienshield-admin"),
		AdminJWKSURL:    env("ADMIN_JWKS_URL", ""),
		AdminPolicyFile: env("ADMIN_POLICY_FILE", ""),
		CORSOrigins:     envList("ADMIN_CORS_ORIGINS", []string{"http://localhost:3000"}),
		TenantSeedJSON:  env("TENANT_SEED_JSON", ""),
		TenantSeedFile:  env("TENANT_SEED_FILE", ""),
		Engine: EngineConfig{
			APIURL:        strings.TrimRight(env("WAZUH_API_URL", "https://localhost:55000"), "/"),
			Username:      env("WAZUH_USERNAME", "wazuh"),
			Password:      env("WAZUH_PASSWORD", "wazuh"),
			SSLVerify:     envBool("WAZUH_SSL_VERIFY", false),
			Timeout:       envDur("WAZUH_TIMEOUT", 30000) * time.Millisecond,
			RetryAttempts: envInt("WAZUH_RETRY_ATTEMPTS", 3),
		},
		Sync: SyncConfig{
			Pause:    envDur("SYNC_PAUSE_MS", 1000) * time.Millisecond,
			Workers:  envInt("SYNC_WORKERS", 1),
			LockTTL:  envDur("SYNC_LOCK_TTL_SEC", 600) * time.Second,
			Interval: envDur("SYNC_INTERVAL_SEC", 0) * time.Second,
		},
	}
	if cfg.Engine.RetryAttempts < 1 {
		cfg.Engine.RetryAttempts = 1
	}
	if cfg.Sync.Workers < 1 {
		cfg.Sync.Workers = 1
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set; using in-memory tenant store for dev")
	}
	return cfg
}

// Validate enforces production requirements on the engine connection.
func (c Config) Validate() error {
	if c.Env != "prod" {
		return nil
	}
	var missing []string
	for k, v := range map[string]string{
		"WAZUH_API_URL":  os.Getenv("WAZUH_API_URL"),
		"WAZUH_USERNAME": os.Getenv("WAZUH_USERNAME"),
		"WAZUH_PASSWORD": os.Getenv("WAZUH_PASSWORD"),
	} {
		if v == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.New("missing required engine settings: " + strings.Join(missing, ", "))
	}
	if !c.Engine.SSLVerify {
		return errors.New("WAZUH_SSL_VERIFY must be enabled in prod")
	}
	return nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return def
		}
		return i
	}
	return def
}
func envDur(k string, def int) time.Duration {
	return time.Duration(envInt(k, def))
}
func envList(k string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	out := []string{}
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
