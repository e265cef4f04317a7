// Package config loads and validates the hookgate YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, env-expands, parses, and validates configuration from a file.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", absPath, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", absPath, err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", absPath, err)
	}
	return cfg, nil
}

// expandEnvVars substitutes ${VAR} references. Referencing an unset variable
// is an error; a missing secret must fail startup, not produce an empty one.
func expandEnvVars(content string) (string, error) {
	var missing []string
	expanded := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		value, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return match
		}
		return value
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("undefined environment variables: %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = "INFO"
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = "json"
	}
	if cfg.RateLimit.Store == "" {
		cfg.RateLimit.Store = DefaultStore
	}
	if cfg.RateLimit.Mode == "enabled" {
		if cfg.RateLimit.Budgets == nil {
			cfg.RateLimit.Budgets = make(map[string]BudgetConfig)
		}
		for role, budget := range DefaultBudgets {
			if _, ok := cfg.RateLimit.Budgets[role]; !ok {
				cfg.RateLimit.Budgets[role] = budget
			}
		}
	}
}

// BodySizeBytes parses MaxBodySize ("1MB", "512KB", "2048576") into bytes.
func (c *Config) BodySizeBytes() (int64, error) {
	return parseByteSize(c.MaxBodySize)
}

// parseByteSize parses size strings with optional KB/MB/GB suffixes.
// Returns DefaultMaxBodySize if empty.
func parseByteSize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(size)
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		size = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		size = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		size = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(size), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result < 0 { // overflow
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}
