package db

import (
	"context"
	"sync"
	"testing"
)

func TestCheckAndIncrementUsageAtLimit(t *testing.T) {
	d := openTestDB(t)
	u := createTestUser(t, d)

	if _, err := d.EnsureUsageLimit(u.ID, 20); err != nil {
		t.Fatalf("EnsureUsageLimit: %v", err)
	}
	if _, err := d.Conn().Exec(`UPDATE usage_limits SET daily_message_used = 20 WHERE user_id = ?`, u.ID); err != nil {
		t.Fatalf("seed used counter: %v", err)
	}

	allowed, remaining, err := d.CheckAndIncrementUsage(context.Background(), u.ID, 20)
	if err != nil {
		t.Fatalf("CheckAndIncrementUsage: %v", err)
	}
	if allowed {
		t.Fatal("expected not allowed at the limit")
	}
	if remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", remaining)
	}

	// Refusal must not increment.
	usage, err := d.GetUsageLimit(u.ID)
	if err != nil {
		t.Fatalf("GetUsageLimit: %v", err)
	}
	if usage.DailyMessageUsed != 20 {
		t.Fatalf("refused check incremented the counter: %d", usage.DailyMessageUsed)
	}
}

func TestCheckAndIncrementUsageResetsNextDay(t *testing.T) {
	d := openTestDB(t)
	u := createTestUser(t, d)

	if _, err := d.EnsureUsageLimit(u.ID, 20); err != nil {
		t.Fatalf("EnsureUsageLimit: %v", err)
	}
	// Simulate the next calendar day: counter full, reset date in the past.
	if _, err := d.Conn().Exec(
		`UPDATE usage_limits SET daily_message_used = 20, daily_reset_at = '2000-01-01' WHERE user_id = ?`, u.ID,
	); err != nil {
		t.Fatalf("backdate reset: %v", err)
	}

	allowed, remaining, err := d.CheckAndIncrementUsage(context.Background(), u.ID, 20)
	if err != nil {
		t.Fatalf("CheckAndIncrementUsage: %v", err)
	}
	if !allowed {
		t.Fatal("expected allowed after day rollover")
	}
	if remaining != 19 {
		t.Fatalf("expected remaining 19 after reset+increment, got %d", remaining)
	}

	usage, err := d.GetUsageLimit(u.ID)
	if err != nil {
		t.Fatalf("GetUsageLimit: %v", err)
	}
	if usage.DailyMessageUsed != 1 {
		t.Fatalf("expected used=1 after reset, got %d", usage.DailyMessageUsed)
	}
	if usage.DailyResetAt == "2000-01-01" {
		t.Fatal("reset date was not advanced")
	}
}

func TestUsedNeverExceedsLimitUnderConcurrency(t *testing.T) {
	d := openTestDB(t)
	u := createTestUser(t, d)

	const limit = 5
	const callers = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, _, err := d.CheckAndIncrementUsage(context.Background(), u.ID, limit)
			if err != nil {
				t.Errorf("CheckAndIncrementUsage: %v", err)
				return
			}
			if allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowedCount != limit {
		t.Fatalf("expected exactly %d allowed messages, got %d", limit, allowedCount)
	}

	usage, err := d.GetUsageLimit(u.ID)
	if err != nil {
		t.Fatalf("GetUsageLimit: %v", err)
	}
	if usage.DailyMessageUsed > limit {
		t.Fatalf("used %d exceeds limit %d", usage.DailyMessageUsed, limit)
	}
}

func TestEnsureUsageLimitIsIdempotent(t *testing.T) {
	d := openTestDB(t)
	u := createTestUser(t, d)

	first, err := d.EnsureUsageLimit(u.ID, 20)
	if err != nil {
		t.Fatalf("EnsureUsageLimit: %v", err)
	}
	if _, _, err := d.CheckAndIncrementUsage(context.Background(), u.ID, 20); err != nil {
		t.Fatalf("CheckAndIncrementUsage: %v", err)
	}

	second, err := d.EnsureUsageLimit(u.ID, 50)
	if err != nil {
		t.Fatalf("EnsureUsageLimit again: %v", err)
	}
	if second.DailyMessageLimit != first.DailyMessageLimit {
		t.Fatalf("ensure must not change an existing limit: %d", second.DailyMessageLimit)
	}
	if second.DailyMessageUsed != 1 {
		t.Fatalf("expected used=1 preserved, got %d", second.DailyMessageUsed)
	}
}
