package db

import (
	"database/sql"
	"fmt"
)

// MemorySummary is an append-only distillation of part of a session.
// List-valued fields are stored as JSON arrays.
type MemorySummary struct {
	ID                    int64
	UserID                string
	SessionID             string
	Summary               string
	MainTopics            string
	UserEmotions          string
	KeyThoughts           string
	Triggers              string
	HelpfulStrategiesUsed string
	NextSessionGoal       string
	CreatedAt             string
}

// MemoryFacts is the single long-term merged profile record per user.
// It is overwritten, never appended.
type MemoryFacts struct {
	UserID                string
	Profile               string // JSON object
	StableIssues          string // JSON arrays from here down
	ValuesAndGoals        string
	CommonTriggers        string
	CognitivePatterns     string
	PreferredSupportStyle string
	HardLimits            string
	UpdatedAt             string
}

// InsertSummary appends a memory summary and returns its ID.
func (d *DB) InsertSummary(s *MemorySummary) (int64, error) {
	if s.CreatedAt == "" {
		s.CreatedAt = nowRFC3339()
	}
	res, err := d.conn.Exec(
		`INSERT INTO memory_summaries (user_id, session_id, summary, main_topics, user_emotions, key_thoughts, triggers, helpful_strategies_used, next_session_goal, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.UserID, s.SessionID, s.Summary, jsonOr(s.MainTopics, "[]"), jsonOr(s.UserEmotions, "[]"), jsonOr(s.KeyThoughts, "[]"), jsonOr(s.Triggers, "[]"), jsonOr(s.HelpfulStrategiesUsed, "[]"), s.NextSessionGoal, s.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert summary: %w", err)
	}
	return res.LastInsertId()
}

// RecentSummaries returns the user's newest summaries, most recent first.
func (d *DB) RecentSummaries(userID string, limit int) ([]MemorySummary, error) {
	rows, err := d.conn.Query(
		`SELECT id, user_id, session_id, summary, main_topics, user_emotions, key_thoughts, triggers, helpful_strategies_used, next_session_goal, created_at
		 FROM memory_summaries WHERE user_id = ?
		 ORDER BY id DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent summaries: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var summaries []MemorySummary
	for rows.Next() {
		var s MemorySummary
		if err := rows.Scan(&s.ID, &s.UserID, &s.SessionID, &s.Summary, &s.MainTopics, &s.UserEmotions, &s.KeyThoughts, &s.Triggers, &s.HelpfulStrategiesUsed, &s.NextSessionGoal, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// LastSummaryAt returns the creation time of the newest summary for a
// session, or "" when the session has never been summarized.
func (d *DB) LastSummaryAt(sessionID string) (string, error) {
	var createdAt string
	err := d.conn.QueryRow(
		`SELECT created_at FROM memory_summaries WHERE session_id = ? ORDER BY id DESC LIMIT 1`, sessionID,
	).Scan(&createdAt)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last summary at: %w", err)
	}
	return createdAt, nil
}

// GetFacts returns the user's long-term facts row, or nil if none exists yet.
func (d *DB) GetFacts(userID string) (*MemoryFacts, error) {
	f := &MemoryFacts{}
	row := d.conn.QueryRow(
		`SELECT user_id, profile, stable_issues, values_and_goals, common_triggers, cognitive_patterns, preferred_support_style, hard_limits, updated_at
		 FROM memory_facts WHERE user_id = ?`, userID,
	)
	err := row.Scan(&f.UserID, &f.Profile, &f.StableIssues, &f.ValuesAndGoals, &f.CommonTriggers, &f.CognitivePatterns, &f.PreferredSupportStyle, &f.HardLimits, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get facts %s: %w", userID, err)
	}
	return f, nil
}

// UpsertFacts overwrites the single per-user facts row.
func (d *DB) UpsertFacts(f *MemoryFacts) error {
	now := nowRFC3339()
	_, err := d.conn.Exec(
		`INSERT INTO memory_facts (user_id, profile, stable_issues, values_and_goals, common_triggers, cognitive_patterns, preferred_support_style, hard_limits, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			profile = excluded.profile,
			stable_issues = excluded.stable_issues,
			values_and_goals = excluded.values_and_goals,
			common_triggers = excluded.common_triggers,
			cognitive_patterns = excluded.cognitive_patterns,
			preferred_support_style = excluded.preferred_support_style,
			hard_limits = excluded.hard_limits,
			updated_at = excluded.updated_at`,
		f.UserID, jsonOr(f.Profile, "{}"), jsonOr(f.StableIssues, "[]"), jsonOr(f.ValuesAndGoals, "[]"), jsonOr(f.CommonTriggers, "[]"), jsonOr(f.CognitivePatterns, "[]"), jsonOr(f.PreferredSupportStyle, "[]"), jsonOr(f.HardLimits, "[]"), now,
	)
	if err != nil {
		return fmt.Errorf("upsert facts %s: %w", f.UserID, err)
	}
	return nil
}

func jsonOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
