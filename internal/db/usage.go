package db

import (
	"context"
	"database/sql"
	"fmt"
)

// UsageLimit is the per-user daily message counter. daily_reset_at holds the
// date (YYYY-MM-DD) the counter was last reset for.
type UsageLimit struct {
	UserID            string
	DailyMessageUsed  int
	DailyMessageLimit int
	DailyResetAt      string
	UpdatedAt         string
}

// EnsureUsageLimit creates the user's usage row with the given limit if it
// does not exist yet, then returns the current row.
func (d *DB) EnsureUsageLimit(userID string, dailyLimit int) (*UsageLimit, error) {
	now := nowRFC3339()
	_, err := d.conn.Exec(
		`INSERT INTO usage_limits (user_id, daily_message_used, daily_message_limit, daily_reset_at, updated_at)
		 VALUES (?, 0, ?, ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		userID, dailyLimit, Today(), now,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure usage limit: %w", err)
	}
	return d.GetUsageLimit(userID)
}

// GetUsageLimit returns the user's usage row, or nil if none exists.
func (d *DB) GetUsageLimit(userID string) (*UsageLimit, error) {
	u := &UsageLimit{}
	row := d.conn.QueryRow(
		`SELECT user_id, daily_message_used, daily_message_limit, daily_reset_at, updated_at
		 FROM usage_limits WHERE user_id = ?`, userID,
	)
	err := row.Scan(&u.UserID, &u.DailyMessageUsed, &u.DailyMessageLimit, &u.DailyResetAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get usage limit %s: %w", userID, err)
	}
	return u, nil
}

// CheckAndIncrementUsage runs the whole quota policy in one transaction:
// reset the counter when the stored reset date is in the past, refuse without
// incrementing when the user is at the limit, otherwise increment. Remaining
// is reported after the increment.
func (d *DB) CheckAndIncrementUsage(ctx context.Context, userID string, defaultLimit int) (allowed bool, remaining int, err error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin quota check: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := nowRFC3339()
	day := Today()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO usage_limits (user_id, daily_message_used, daily_message_limit, daily_reset_at, updated_at)
		 VALUES (?, 0, ?, ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		userID, defaultLimit, day, now,
	); err != nil {
		return false, 0, fmt.Errorf("ensure usage row: %w", err)
	}

	var used, limit int
	var resetAt string
	if err = tx.QueryRowContext(ctx,
		`SELECT daily_message_used, daily_message_limit, daily_reset_at FROM usage_limits WHERE user_id = ?`, userID,
	).Scan(&used, &limit, &resetAt); err != nil {
		return false, 0, fmt.Errorf("read usage row: %w", err)
	}

	// Lexicographic comparison is correct for YYYY-MM-DD.
	if resetAt < day {
		used = 0
		if _, err = tx.ExecContext(ctx,
			`UPDATE usage_limits SET daily_message_used = 0, daily_reset_at = ?, updated_at = ? WHERE user_id = ?`,
			day, now, userID,
		); err != nil {
			return false, 0, fmt.Errorf("reset usage row: %w", err)
		}
	}

	if used >= limit {
		if err = tx.Commit(); err != nil {
			return false, 0, fmt.Errorf("commit quota check: %w", err)
		}
		return false, 0, nil
	}

	used++
	if _, err = tx.ExecContext(ctx,
		`UPDATE usage_limits SET daily_message_used = ?, updated_at = ? WHERE user_id = ?`,
		used, now, userID,
	); err != nil {
		return false, 0, fmt.Errorf("increment usage row: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit quota increment: %w", err)
	}
	return true, limit - used, nil
}
