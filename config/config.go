// Package config loads server configuration from defaults, an optional YAML
// file and PAYONCE_* environment variables, in that order of precedence
// (env wins over file, file over defaults).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/payonce/payonce"
)

const (
	defaultListen         = ":8000"
	defaultLogLevel       = "info"
	defaultSimulatedDelay = payonce.DefaultSimulatedDelay
	defaultDedupBackend   = BackendMemory
)

// Dedup backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Env var names.
const (
	envListen         = "PAYONCE_LISTEN"
	envVariant        = "PAYONCE_VARIANT"
	envSimulatedDelay = "PAYONCE_SIMULATED_DELAY"
	envLogLevel       = "PAYONCE_LOG_LEVEL"
	envDedupBackend   = "PAYONCE_DEDUP_BACKEND"
	envRedisURL       = "PAYONCE_REDIS_URL"
	envDedupTTL       = "PAYONCE_DEDUP_TTL"
)

// SeedAccount is an account created at startup.
type SeedAccount struct {
	ID                uuid.UUID `yaml:"id"`
	BalanceMinorUnits int64     `yaml:"balanceMinorUnits"`
}

// Config captures the runtime configuration of one payment server process.
type Config struct {
	// Listen is the HTTP listen address, e.g. ":8000" or "127.0.0.1:8001".
	Listen string
	// Variant selects the server flavor: payonce.VariantIdempotent or
	// payonce.VariantNonIdempotent.
	Variant string
	// SimulatedDelay is the blocking wait injected on every other applied
	// payment. Zero disables pacing.
	SimulatedDelay time.Duration
	// LogLevel is a logrus level name.
	LogLevel string
	// DedupBackend selects the idempotency store: "memory" or "redis".
	// Only consulted by the idempotent variant.
	DedupBackend string
	// RedisURL is the Redis connection URL, required when DedupBackend is
	// "redis".
	RedisURL string
	// DedupTTL bounds how long processed tokens are retained. Zero keeps
	// them for the lifetime of the store.
	DedupTTL time.Duration
	// SeedAccounts are created before the server starts listening.
	SeedAccounts []SeedAccount
}

// fileConfig is the YAML file shape. Zero values mean "not set" so the file
// only overrides what it names.
type fileConfig struct {
	Listen         string        `yaml:"listen"`
	Variant        string        `yaml:"variant"`
	SimulatedDelay time.Duration `yaml:"simulatedDelay"`
	LogLevel       string        `yaml:"logLevel"`
	Dedup          struct {
		Backend  string        `yaml:"backend"`
		RedisURL string        `yaml:"redisUrl"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"dedup"`
	SeedAccounts []SeedAccount `yaml:"seedAccounts"`
}

// Default returns the demo configuration: unprotected variant on :8000 with
// the two demo accounts seeded.
func Default() Config {
	return Config{
		Listen:         defaultListen,
		Variant:        payonce.VariantNonIdempotent,
		SimulatedDelay: defaultSimulatedDelay,
		LogLevel:       defaultLogLevel,
		DedupBackend:   defaultDedupBackend,
		SeedAccounts:   DefaultSeedAccounts(),
	}
}

// DefaultSeedAccounts returns the accounts the original demo ships with.
func DefaultSeedAccounts() []SeedAccount {
	return []SeedAccount{
		{ID: uuid.MustParse("b4d8ada9-74a1-4c64-9ba3-a1af8c8307eb"), BalanceMinorUnits: 10000},
		{ID: uuid.MustParse("1a57e024-09db-4402-801b-4f75b1a05a8d"), BalanceMinorUnits: 20000},
	}
}

// Load builds the configuration. When path is empty the default candidate
// locations are probed; a missing file is not an error, a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if path != "" {
		candidates = append(candidates, path)
	} else {
		candidates = append(candidates,
			"payonce.yaml",
			"configs/payonce.yaml",
		)
	}

	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if err != nil {
			if path != "" {
				return Config{}, fmt.Errorf("failed to read config file %s: %w", candidate, err)
			}
			continue
		}

		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", candidate, err)
		}
		merge(&cfg, parsed)
		break
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// merge copies every value the file actually sets onto cfg.
func merge(cfg *Config, src fileConfig) {
	if src.Listen != "" {
		cfg.Listen = src.Listen
	}
	if src.Variant != "" {
		cfg.Variant = src.Variant
	}
	if src.SimulatedDelay != 0 {
		cfg.SimulatedDelay = src.SimulatedDelay
	}
	if src.LogLevel != "" {
		cfg.LogLevel = src.LogLevel
	}
	if src.Dedup.Backend != "" {
		cfg.DedupBackend = src.Dedup.Backend
	}
	if src.Dedup.RedisURL != "" {
		cfg.RedisURL = src.Dedup.RedisURL
	}
	if src.Dedup.TTL != 0 {
		cfg.DedupTTL = src.Dedup.TTL
	}
	if src.SeedAccounts != nil {
		cfg.SeedAccounts = src.SeedAccounts
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(envListen); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv(envVariant); v != "" {
		cfg.Variant = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(envDedupBackend); v != "" {
		cfg.DedupBackend = v
	}
	if v := os.Getenv(envRedisURL); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv(envSimulatedDelay); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envSimulatedDelay, err)
		}
		cfg.SimulatedDelay = d
	}
	if v := os.Getenv(envDedupTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envDedupTTL, err)
		}
		cfg.DedupTTL = d
	}
	return nil
}

// Validate normalizes the variant spelling and rejects inconsistent values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("listen address must not be empty")
	}

	variant, err := normalizeVariant(c.Variant)
	if err != nil {
		return err
	}
	c.Variant = variant

	if c.SimulatedDelay < 0 {
		return fmt.Errorf("simulated delay must not be negative, got %s", c.SimulatedDelay)
	}
	if c.DedupTTL < 0 {
		return fmt.Errorf("dedup TTL must not be negative, got %s", c.DedupTTL)
	}

	switch c.DedupBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis dedup backend requires %s", envRedisURL)
		}
	default:
		return fmt.Errorf("unknown dedup backend %q (expected %s or %s)", c.DedupBackend, BackendMemory, BackendRedis)
	}

	seen := make(map[uuid.UUID]bool, len(c.SeedAccounts))
	for _, acc := range c.SeedAccounts {
		if acc.ID == uuid.Nil {
			return fmt.Errorf("seed account id must be a non-nil UUID")
		}
		if acc.BalanceMinorUnits < 0 {
			return fmt.Errorf("seed account %s balance must be non-negative, got %d", acc.ID, acc.BalanceMinorUnits)
		}
		if seen[acc.ID] {
			return fmt.Errorf("seed account %s listed twice", acc.ID)
		}
		seen[acc.ID] = true
	}

	return nil
}

// Address returns the listen address with a leading colon when only a port
// was given.
func (c Config) Address() string {
	if strings.Contains(c.Listen, ":") {
		return c.Listen
	}
	return ":" + c.Listen
}

// Idempotent reports whether the protected variant is configured.
func (c Config) Idempotent() bool {
	return c.Variant == payonce.VariantIdempotent
}

func normalizeVariant(v string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case payonce.VariantIdempotent:
		return payonce.VariantIdempotent, nil
	case payonce.VariantNonIdempotent, "nonidempotent":
		return payonce.VariantNonIdempotent, nil
	default:
		return "", fmt.Errorf("unknown variant %q (expected %s or %s)", v, payonce.VariantIdempotent, payonce.VariantNonIdempotent)
	}
}
