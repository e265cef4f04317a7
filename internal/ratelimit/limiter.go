// Package ratelimit enforces per-(identifier, role) fixed-window budgets.
//
// The window counter lives behind the CounterStore interface so deployments
// can pick a single-process sharded map, Redis, or SQLite without touching
// the limiter. The store's increment must be atomic per identifier; a lost
// update here over-admits during bursts, which is the failure mode this
// package exists to prevent.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/mattjoyce/hookgate/internal/auth"
)

// Budget is the request allowance for one role within one window.
type Budget struct {
	Max    int
	Window time.Duration
}

// Budgets maps each role to its budget. The anonymous entry is mandatory;
// a check for a role with no entry is charged against it.
type Budgets map[auth.Role]Budget

// Validate checks that budgets are usable at startup.
func (b Budgets) Validate() error {
	anon, ok := b[auth.RoleAnonymous]
	if !ok {
		return errMissingAnonymous
	}
	if anon.Max <= 0 || anon.Window <= 0 {
		return errBadBudget(auth.RoleAnonymous)
	}
	for role, budget := range b {
		if _, err := auth.ParseRole(string(role)); err != nil {
			return err
		}
		if budget.Max <= 0 || budget.Window <= 0 {
			return errBadBudget(role)
		}
	}
	return nil
}

// budgetFor resolves the effective budget for a role.
func (b Budgets) budgetFor(role auth.Role) Budget {
	if budget, ok := b[role]; ok {
		return budget
	}
	return b[auth.RoleAnonymous]
}

// Decision is the outcome of one rate check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// CounterStore is the atomic windowed counter contract. Incr increments the
// counter for (identifier, windowStart) and returns the post-increment count.
// Observing a windowStart later than the stored one resets the counter first.
// Reclaiming expired windows is the store's own concern (TTL, sweep, upsert);
// the limiter never deletes counters.
type CounterStore interface {
	Incr(ctx context.Context, identifier string, windowStart time.Time, window time.Duration) (int64, error)
}

// Limiter applies fixed-window rate limiting.
type Limiter struct {
	store   CounterStore
	budgets Budgets
	logger  *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a limiter. Budgets must already be validated.
func New(store CounterStore, budgets Budgets, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:   store,
		budgets: budgets,
		logger:  logger,
		now:     time.Now,
	}
}

// Check charges one request against the identifier's budget for role.
//
// The increment happens before the comparison, so the request that exceeds
// the limit is itself counted. That is deliberate policy: every arrival pays
// its window cost exactly once, rejected or not.
//
// If the counter store fails, Check fails open: the request is admitted and
// the failure is logged. Webhook ingestion availability wins over strict
// enforcement; callers here are configured automation partners, not the open
// internet.
func (l *Limiter) Check(ctx context.Context, identifier string, role auth.Role) (Decision, error) {
	budget := l.budgets.budgetFor(role)
	windowStart := l.now().Truncate(budget.Window)
	resetAt := windowStart.Add(budget.Window)

	count, err := l.store.Incr(ctx, identifier, windowStart, budget.Window)
	if err != nil {
		l.logger.Warn("counter store unavailable, failing open",
			"identifier", identifier,
			"role", string(role),
			"error", err,
		)
		return Decision{Allowed: true, Limit: budget.Max, Remaining: budget.Max, ResetAt: resetAt}, nil
	}

	remaining := budget.Max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= int64(budget.Max),
		Limit:     budget.Max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Checker is what the gateway consumes; Limiter and Noop both satisfy it.
type Checker interface {
	Check(ctx context.Context, identifier string, role auth.Role) (Decision, error)
}

// Noop is the explicit rate-limiting-disabled state, selected by
// configuration at startup rather than discovered per request.
type Noop struct{}

func (Noop) Check(context.Context, string, auth.Role) (Decision, error) {
	return Decision{Allowed: true}, nil
}
