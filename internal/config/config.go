// Package config loads lotteryd configuration. Values are layered: built-in
// defaults, then a YAML file, then a .env file, then LOTTERY_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/lottery_engine/internal/settlement"
	"github.com/R3E-Network/lottery_engine/pkg/logger"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig         `yaml:"server"`
	Log       logger.LoggingConfig `yaml:"log"`
	Engine    EngineConfig         `yaml:"engine"`
	Storage   StorageConfig        `yaml:"storage"`
	Oracle    OracleConfig         `yaml:"oracle"`
	Auth      AuthConfig           `yaml:"auth"`
	RateLimit RateLimitConfig      `yaml:"ratelimit"`
	Custody   CustodyConfig        `yaml:"custody"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"LOTTERY_SERVER_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"LOTTERY_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"LOTTERY_SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"LOTTERY_SERVER_SHUTDOWN_TIMEOUT"`
}

type EngineConfig struct {
	RandomnessOracleID    string `yaml:"randomness_oracle_id" env:"LOTTERY_ENGINE_RANDOMNESS_ORACLE_ID"`
	BoundaryPolicy        string `yaml:"boundary_policy" env:"LOTTERY_ENGINE_BOUNDARY_POLICY"`
	DefaultCommissionRate uint64 `yaml:"default_commission_rate" env:"LOTTERY_ENGINE_DEFAULT_COMMISSION_RATE"`
	// PriceScale is the number of decimal places a price string may carry.
	PriceScale int32 `yaml:"price_scale" env:"LOTTERY_ENGINE_PRICE_SCALE"`
	// NeoAddresses requires administrator and payee identities to be Neo N3 addresses.
	NeoAddresses bool `yaml:"neo_addresses" env:"LOTTERY_ENGINE_NEO_ADDRESSES"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver" env:"LOTTERY_STORAGE_DRIVER"`
	PostgresDSN   string `yaml:"postgres_dsn" env:"LOTTERY_STORAGE_POSTGRES_DSN"`
	RunMigrations bool   `yaml:"run_migrations" env:"LOTTERY_STORAGE_RUN_MIGRATIONS"`
	RedisAddr     string `yaml:"redis_addr" env:"LOTTERY_STORAGE_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"LOTTERY_STORAGE_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"LOTTERY_STORAGE_REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix" env:"LOTTERY_STORAGE_REDIS_PREFIX"`
	// DistributedLock serializes operations through Redis even when the
	// records live elsewhere.
	DistributedLock bool `yaml:"distributed_lock" env:"LOTTERY_STORAGE_DISTRIBUTED_LOCK"`
}

type OracleConfig struct {
	Driver     string        `yaml:"driver" env:"LOTTERY_ORACLE_DRIVER"`
	HMACSecret string        `yaml:"hmac_secret" env:"LOTTERY_ORACLE_HMAC_SECRET"`
	URL        string        `yaml:"url" env:"LOTTERY_ORACLE_URL"`
	APIKey     string        `yaml:"api_key" env:"LOTTERY_ORACLE_API_KEY"`
	Timeout    time.Duration `yaml:"timeout" env:"LOTTERY_ORACLE_TIMEOUT"`
}

type AuthConfig struct {
	Mode            string        `yaml:"mode" env:"LOTTERY_AUTH_MODE"`
	JWTSecret       string        `yaml:"jwt_secret" env:"LOTTERY_AUTH_JWT_SECRET"`
	JWTIssuer       string        `yaml:"jwt_issuer" env:"LOTTERY_AUTH_JWT_ISSUER"`
	SignatureWindow time.Duration `yaml:"signature_window" env:"LOTTERY_AUTH_SIGNATURE_WINDOW"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"rps" env:"LOTTERY_RATELIMIT_RPS"`
	Burst             int     `yaml:"burst" env:"LOTTERY_RATELIMIT_BURST"`
}

type CustodyConfig struct {
	DevFaucet  bool `yaml:"dev_faucet" env:"LOTTERY_CUSTODY_DEV_FAUCET"`
	MaxHistory int  `yaml:"max_history" env:"LOTTERY_CUSTODY_MAX_HISTORY"`
}

// Defaults returns a configuration that runs entirely in memory.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: logger.LoggingConfig{Level: "info", Format: "text", Output: "stderr"},
		Engine: EngineConfig{
			RandomnessOracleID:    "lottery-hmac-oracle",
			BoundaryPolicy:        settlement.BoundaryInclusive.String(),
			DefaultCommissionRate: settlement.DefaultCommissionRate,
			PriceScale:            8,
		},
		Storage:   StorageConfig{Driver: "memory", RedisPrefix: "lottery:"},
		Oracle:    OracleConfig{Driver: "hmac", Timeout: 10 * time.Second},
		Auth:      AuthConfig{Mode: "jwt", JWTIssuer: "lotteryd", SignatureWindow: 5 * time.Minute},
		RateLimit: RateLimitConfig{RequestsPerSecond: 20, Burst: 40},
		Custody:   CustodyConfig{MaxHistory: 1000},
	}
}

// Load builds the configuration from path and envFile. Either may be empty;
// a missing .env file is not an error.
func Load(path, envFile string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := LoadFromPath(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load env file: %w", err)
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath overlays the YAML file at path onto cfg.
func LoadFromPath(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// ApplyEnv overlays LOTTERY_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	err := envdecode.Decode(cfg)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to decode environment: %w", err)
	}
	return nil
}

// Validate rejects unknown drivers and out-of-range values.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.Addr == "" {
		add("server.addr is required")
	}
	if _, err := settlement.ParseBoundaryPolicy(c.Engine.BoundaryPolicy); err != nil {
		add("engine.boundary_policy: %v", err)
	}
	if c.Engine.DefaultCommissionRate > settlement.MaxCommissionRate {
		add("engine.default_commission_rate must be <= %d", settlement.MaxCommissionRate)
	}
	if c.Engine.PriceScale < 0 || c.Engine.PriceScale > 18 {
		add("engine.price_scale must be between 0 and 18")
	}

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			add("storage.postgres_dsn is required for the postgres driver")
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			add("storage.redis_addr is required for the redis driver")
		}
	default:
		add("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.DistributedLock && c.Storage.RedisAddr == "" {
		add("storage.redis_addr is required for the distributed lock")
	}

	switch c.Oracle.Driver {
	case "hmac":
		if len(c.Oracle.HMACSecret) < 16 {
			add("oracle.hmac_secret must be at least 16 bytes")
		}
	case "http":
		if c.Oracle.URL == "" {
			add("oracle.url is required for the http driver")
		}
	default:
		add("unknown oracle.driver %q", c.Oracle.Driver)
	}
	if c.Engine.RandomnessOracleID == "" {
		add("engine.randomness_oracle_id is required")
	}

	switch c.Auth.Mode {
	case "jwt":
		if c.Auth.JWTSecret == "" {
			add("auth.jwt_secret is required for jwt mode")
		}
	case "neo", "none":
	default:
		add("unknown auth.mode %q", c.Auth.Mode)
	}

	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		add("ratelimit values must not be negative")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Boundary returns the parsed boundary policy. It assumes Validate passed.
func (c Config) Boundary() settlement.BoundaryPolicy {
	p, _ := settlement.ParseBoundaryPolicy(c.Engine.BoundaryPolicy)
	return p
}
