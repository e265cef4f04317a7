package config

import (
	"fmt"
)

// Validate checks the configuration for startup-blocking problems. Every
// implicit fallback the gateway refuses to make at runtime is rejected here
// instead: open signature mode must be stated, disabled rate limiting must
// be stated, secrets must resolve.
func (c *Config) Validate() error {
	switch c.Signature.Mode {
	case "enforced":
		if c.Signature.Secret == "" {
			return fmt.Errorf("signature.mode is enforced but signature.secret is empty")
		}
	case "open":
		// Explicitly chosen; logged loudly at startup.
	case "":
		return fmt.Errorf("signature.mode is required (enforced or open)")
	default:
		return fmt.Errorf("signature.mode %q is not one of: enforced, open", c.Signature.Mode)
	}

	switch c.RateLimit.Mode {
	case "enabled":
		if err := c.validateRateLimit(); err != nil {
			return err
		}
	case "disabled":
	case "":
		return fmt.Errorf("rate_limit.mode is required (enabled or disabled)")
	default:
		return fmt.Errorf("rate_limit.mode %q is not one of: enabled, disabled", c.RateLimit.Mode)
	}

	for i, k := range c.Auth.Keys {
		if k.Role == "" {
			return fmt.Errorf("auth.keys[%d]: role is required", i)
		}
		if k.Key == "" && k.KeyHash == "" {
			return fmt.Errorf("auth.keys[%d]: key or key_hash is required", i)
		}
		if k.Key != "" && k.KeyHash != "" {
			return fmt.Errorf("auth.keys[%d]: key and key_hash are mutually exclusive", i)
		}
	}

	if _, err := c.BodySizeBytes(); err != nil {
		return fmt.Errorf("max_body_size: %w", err)
	}

	return nil
}

func (c *Config) validateRateLimit() error {
	switch c.RateLimit.Store {
	case "memory":
	case "redis":
		if c.RateLimit.Redis.Addr == "" {
			return fmt.Errorf("rate_limit.store is redis but rate_limit.redis.addr is empty")
		}
	case "sqlite":
		if c.State.Path == "" {
			return fmt.Errorf("rate_limit.store is sqlite but state.path is empty")
		}
	default:
		return fmt.Errorf("rate_limit.store %q is not one of: memory, redis, sqlite", c.RateLimit.Store)
	}

	anon, ok := c.RateLimit.Budgets["anonymous"]
	if !ok {
		return fmt.Errorf("rate_limit.budgets must include an anonymous entry")
	}
	if anon.Max <= 0 || anon.Window <= 0 {
		return fmt.Errorf("rate_limit.budgets.anonymous must have positive max and window")
	}
	for role, b := range c.RateLimit.Budgets {
		if b.Max <= 0 || b.Window <= 0 {
			return fmt.Errorf("rate_limit.budgets.%s must have positive max and window", role)
		}
	}
	return nil
}
