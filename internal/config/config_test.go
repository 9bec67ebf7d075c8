package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/R3E-Network/lottery_engine/internal/settlement"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const baseYAML = `
server:
  addr: ":9090"
  read_timeout: 5s
engine:
  boundary_policy: strict
  default_commission_rate: 7
oracle:
  driver: hmac
  hmac_secret: "0123456789abcdef"
auth:
  mode: jwt
  jwt_secret: "file-secret"
`

func TestLoadFromYAML(t *testing.T) {
	path := writeFile(t, "lotteryd.yaml", baseYAML)

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 30*time.Second {
		t.Errorf("WriteTimeout = %v, want default 30s", cfg.Server.WriteTimeout)
	}
	if cfg.Boundary() != settlement.BoundaryStrict {
		t.Errorf("Boundary = %v, want strict", cfg.Boundary())
	}
	if cfg.Engine.DefaultCommissionRate != 7 {
		t.Errorf("DefaultCommissionRate = %d, want 7", cfg.Engine.DefaultCommissionRate)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Storage.Driver = %q, want memory", cfg.Storage.Driver)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "lotteryd.yaml", baseYAML)
	t.Setenv("LOTTERY_SERVER_ADDR", ":7070")
	t.Setenv("LOTTERY_ENGINE_DEFAULT_COMMISSION_RATE", "3")
	t.Setenv("LOTTERY_RATELIMIT_RPS", "2.5")

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("Server.Addr = %q, want :7070", cfg.Server.Addr)
	}
	if cfg.Engine.DefaultCommissionRate != 3 {
		t.Errorf("DefaultCommissionRate = %d, want 3", cfg.Engine.DefaultCommissionRate)
	}
	if cfg.RateLimit.RequestsPerSecond != 2.5 {
		t.Errorf("RequestsPerSecond = %v, want 2.5", cfg.RateLimit.RequestsPerSecond)
	}
}

func TestDotEnvFile(t *testing.T) {
	path := writeFile(t, "lotteryd.yaml", baseYAML)
	envFile := writeFile(t, ".env", "LOTTERY_AUTH_JWT_SECRET=dotenv-secret\n")
	// godotenv does not override variables that are already set.
	t.Setenv("LOTTERY_AUTH_JWT_SECRET", "")
	os.Unsetenv("LOTTERY_AUTH_JWT_SECRET")

	cfg, err := Load(path, envFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.JWTSecret != "dotenv-secret" {
		t.Errorf("JWTSecret = %q, want dotenv-secret", cfg.Auth.JWTSecret)
	}
}

func TestMissingEnvFileIgnored(t *testing.T) {
	path := writeFile(t, "lotteryd.yaml", baseYAML)
	if _, err := Load(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), ""); err == nil || !strings.Contains(err.Error(), "failed to read config") {
		t.Errorf("missing file error = %v", err)
	}

	bad := writeFile(t, "bad.yaml", "server: [unclosed")
	if _, err := Load(bad, ""); err == nil || !strings.Contains(err.Error(), "failed to parse config") {
		t.Errorf("parse error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Defaults()
		cfg.Oracle.HMACSecret = "0123456789abcdef"
		cfg.Auth.JWTSecret = "secret"
		return cfg
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"boundary", func(c *Config) { c.Engine.BoundaryPolicy = "sideways" }, "boundary_policy"},
		{"rate", func(c *Config) { c.Engine.DefaultCommissionRate = 101 }, "default_commission_rate"},
		{"storage driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"postgres dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "postgres_dsn"},
		{"redis addr", func(c *Config) { c.Storage.Driver = "redis" }, "redis_addr"},
		{"lock without redis", func(c *Config) { c.Storage.DistributedLock = true }, "distributed lock"},
		{"short secret", func(c *Config) { c.Oracle.HMACSecret = "short" }, "hmac_secret"},
		{"http oracle url", func(c *Config) { c.Oracle.Driver = "http" }, "oracle.url"},
		{"oracle driver", func(c *Config) { c.Oracle.Driver = "dice" }, "oracle.driver"},
		{"auth mode", func(c *Config) { c.Auth.Mode = "magic" }, "auth.mode"},
		{"jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }, "jwt_secret"},
		{"price scale", func(c *Config) { c.Engine.PriceScale = 30 }, "price_scale"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
