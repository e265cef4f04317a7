package ratelimit

import "fmt"

var errMissingAnonymous = fmt.Errorf("rate limit budgets must include %q", "anonymous")

func errBadBudget(role any) error {
	return fmt.Errorf("budget for role %v must have positive max and window", role)
}
