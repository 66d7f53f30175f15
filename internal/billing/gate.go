// Package billing implements the admission gate consulted before any
// handler runs, and the consumption ledger written after successful runs.
package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TierUnlimited marks users billed outside the per-invocation ledger.
const TierUnlimited = "UNLIMITED"

const (
	SubscriptionActive = "ACTIVE"
)

type Gate struct {
	db *sql.DB
}

func NewGate(db *sql.DB) *Gate {
	return &Gate{db: db}
}

// CheckEligibility reports whether userID may run a function costing cost.
// An ineligible user is a false result, never an error; errors are reserved
// for storage failures.
func (g *Gate) CheckEligibility(ctx context.Context, userID string, cost int) (bool, error) {
	if userID == "" {
		return false, nil
	}

	var (
		tier     string
		isActive int
	)
	err := g.db.QueryRowContext(ctx,
		"SELECT tier, is_active FROM users WHERE user_id = ?;", userID,
	).Scan(&tier, &isActive)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load user for billing check: %w", err)
	}
	if isActive == 0 {
		return false, nil
	}
	if tier == TierUnlimited {
		return true, nil
	}

	var n int
	err = g.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM subscriptions WHERE user_id = ? AND status = ?;",
		userID, SubscriptionActive,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("load subscriptions for billing check: %w", err)
	}
	return n > 0, nil
}

// Settle records consumption after a successful execution. The kernel calls
// this at most once per invocation.
func (g *Gate) Settle(ctx context.Context, userID, functionCode string, cost int) error {
	if userID == "" {
		return fmt.Errorf("user id is empty")
	}
	if functionCode == "" {
		return fmt.Errorf("function code is empty")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := g.db.ExecContext(ctx, `
INSERT INTO billing_ledger(user_id, function_code, amount, created_at)
VALUES(?, ?, ?, ?);
`, userID, functionCode, cost, now)
	if err != nil {
		return fmt.Errorf("record billing settlement: %w", err)
	}
	return nil
}

// SeedUser registers a user for admission checks. Used by operator tooling
// and tests; production identity management lives outside this daemon.
func (g *Gate) SeedUser(ctx context.Context, userID, username, tier string) error {
	if userID == "" {
		return fmt.Errorf("user id is empty")
	}
	if tier == "" {
		tier = "STARTER"
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := g.db.ExecContext(ctx, `
INSERT INTO users(user_id, username, tier, is_active, created_at)
VALUES(?, ?, ?, 1, ?)
ON CONFLICT(user_id) DO UPDATE SET username = excluded.username, tier = excluded.tier;
`, userID, username, tier, now)
	if err != nil {
		return fmt.Errorf("seed user: %w", err)
	}
	return nil
}

// SeedSubscription attaches a subscription to a user.
func (g *Gate) SeedSubscription(ctx context.Context, userID, plan, status string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is empty")
	}
	subID := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := g.db.ExecContext(ctx, `
INSERT INTO subscriptions(sub_id, user_id, plan, status, created_at)
VALUES(?, ?, ?, ?, ?);
`, subID, userID, plan, status, now)
	if err != nil {
		return "", fmt.Errorf("seed subscription: %w", err)
	}
	return subID, nil
}

// LedgerTotal sums settled amounts for a user. Read path for reporting.
func (g *Gate) LedgerTotal(ctx context.Context, userID string) (int, error) {
	var total sql.NullInt64
	err := g.db.QueryRowContext(ctx,
		"SELECT SUM(amount) FROM billing_ledger WHERE user_id = ?;", userID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum billing ledger: %w", err)
	}
	return int(total.Int64), nil
}
