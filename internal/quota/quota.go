// Package quota enforces the per-user daily message allowance.
package quota

import (
	"context"

	"github.com/dgaifullin/psybot/internal/db"
)

// Store is the slice of the database the tracker needs.
type Store interface {
	CheckAndIncrementUsage(ctx context.Context, userID string, defaultLimit int) (bool, int, error)
	GetUsageLimit(userID string) (*db.UsageLimit, error)
	EnsureUsageLimit(userID string, defaultLimit int) (*db.UsageLimit, error)
}

// Tracker checks and consumes quota in one step, before any provider
// call, so a refused message never costs tokens.
type Tracker struct {
	store        Store
	defaultLimit int
}

func NewTracker(store Store, defaultLimit int) *Tracker {
	return &Tracker{store: store, defaultLimit: defaultLimit}
}

// Allow consumes one message from the user's daily allowance. It returns
// whether the message may proceed and how many messages remain today.
func (t *Tracker) Allow(ctx context.Context, userID string) (bool, int, error) {
	return t.store.CheckAndIncrementUsage(ctx, userID, t.defaultLimit)
}

// Status reports used and total without consuming anything.
func (t *Tracker) Status(userID string) (used, limit int, err error) {
	u, err := t.store.EnsureUsageLimit(userID, t.defaultLimit)
	if err != nil {
		return 0, 0, err
	}
	// A row carried over from yesterday reads as fully reset.
	if u.DailyResetAt < db.Today() {
		return 0, u.DailyMessageLimit, nil
	}
	return u.DailyMessageUsed, u.DailyMessageLimit, nil
}
