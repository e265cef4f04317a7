package config

import "time"

// Config is the complete hookgate configuration.
type Config struct {
	Service     ServiceConfig   `yaml:"service"`
	Listen      string          `yaml:"listen"`
	MaxBodySize string          `yaml:"max_body_size,omitempty"`
	Signature   SignatureConfig `yaml:"signature"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Auth        AuthConfig      `yaml:"auth,omitempty"`
	State       StateConfig     `yaml:"state,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// SignatureConfig defines webhook signature verification settings.
type SignatureConfig struct {
	// Mode is "enforced" or "open". Open mode admits unsigned requests and
	// must be chosen explicitly; there is no implicit fallback.
	Mode   string `yaml:"mode"`
	Secret string `yaml:"secret,omitempty"`
}

// RateLimitConfig defines rate limiting settings.
type RateLimitConfig struct {
	// Mode is "enabled" or "disabled".
	Mode string `yaml:"mode"`
	// Store is "memory", "redis", or "sqlite".
	Store   string                  `yaml:"store,omitempty"`
	Redis   RedisConfig             `yaml:"redis,omitempty"`
	Budgets map[string]BudgetConfig `yaml:"budgets,omitempty"`
}

// RedisConfig defines the Redis counter store connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// BudgetConfig is one role's requests-per-window allowance.
type BudgetConfig struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// AuthConfig defines API key to role mappings.
type AuthConfig struct {
	Keys []KeyConfig `yaml:"keys,omitempty"`
}

// KeyConfig is one API key entry. Prefer KeyHash (blake3-256 hex, see
// `hookgate hash-key`); Key accepts plaintext for dev setups and is hashed
// at load so the plaintext never outlives config parsing.
type KeyConfig struct {
	Key     string `yaml:"key,omitempty"`
	KeyHash string `yaml:"key_hash,omitempty"`
	Role    string `yaml:"role"`
}

// StateConfig defines the SQLite database location, used by the sqlite
// counter store and the audit sink.
type StateConfig struct {
	Path string `yaml:"path"`
}

// Defaults
const (
	DefaultListen      = "127.0.0.1:8080"
	DefaultMaxBodySize = 1048576 // 1 MB
	DefaultStore       = "memory"
)

// DefaultBudgets is applied for roles left out of the budgets map when rate
// limiting is enabled. Anonymous must still be present in config; these only
// fill the named roles.
var DefaultBudgets = map[string]BudgetConfig{
	"viewer":   {Max: 60, Window: time.Minute},
	"operator": {Max: 20, Window: time.Minute},
	"admin":    {Max: 600, Window: time.Minute},
}
