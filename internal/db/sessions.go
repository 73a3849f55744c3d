package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session statuses. A user has at most one active session at any time.
const (
	SessionActive   = "active"
	SessionArchived = "archived"
)

// Session is one bounded conversation window between timeouts or explicit
// resets.
type Session struct {
	ID            string
	UserID        string
	Status        string
	StartedAt     string
	EndedAt       *string
	LastMessageAt string
}

const sessionColumns = `id, user_id, status, started_at, ended_at, last_message_at`

func scanSession(scanner interface{ Scan(...any) error }, s *Session) error {
	return scanner.Scan(&s.ID, &s.UserID, &s.Status, &s.StartedAt, &s.EndedAt, &s.LastMessageAt)
}

// ActiveSession returns the user's active session, or nil if none exists.
func (d *DB) ActiveSession(userID string) (*Session, error) {
	s := &Session{}
	row := d.conn.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = ? AND status = ?
		 ORDER BY started_at DESC LIMIT 1`, userID, SessionActive,
	)
	if err := scanSession(row, s); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("active session for %s: %w", userID, err)
	}
	return s, nil
}

// CreateSession starts a fresh active session for the user.
func (d *DB) CreateSession(userID string) (*Session, error) {
	now := nowRFC3339()
	s := &Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		Status:        SessionActive,
		StartedAt:     now,
		LastMessageAt: now,
	}
	_, err := d.conn.Exec(
		`INSERT INTO sessions (id, user_id, status, started_at, last_message_at) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Status, s.StartedAt, s.LastMessageAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// ArchiveSession closes a session.
func (d *DB) ArchiveSession(id string) error {
	_, err := d.conn.Exec(
		`UPDATE sessions SET status = ?, ended_at = ? WHERE id = ?`,
		SessionArchived, nowRFC3339(), id,
	)
	if err != nil {
		return fmt.Errorf("archive session %s: %w", id, err)
	}
	return nil
}

// TouchSession updates the session's last-activity timestamp.
func (d *DB) TouchSession(id string) error {
	_, err := d.conn.Exec(`UPDATE sessions SET last_message_at = ? WHERE id = ?`, nowRFC3339(), id)
	if err != nil {
		return fmt.Errorf("touch session %s: %w", id, err)
	}
	return nil
}

// FindOrCreateActiveSession resolves the user's current session inside one
// transaction, so racing messages cannot create two active sessions. When the
// active session's last activity is older than timeout it is archived and a
// fresh session returned; the archived session is reported so the caller can
// summarize it.
func (d *DB) FindOrCreateActiveSession(ctx context.Context, userID string, timeout time.Duration) (current *Session, archived *Session, err error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin find-or-create session: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing := &Session{}
	row := tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = ? AND status = ?
		 ORDER BY started_at DESC LIMIT 1`, userID, SessionActive,
	)
	scanErr := scanSession(row, existing)
	if scanErr != nil && scanErr != sql.ErrNoRows {
		return nil, nil, fmt.Errorf("find active session: %w", scanErr)
	}

	now := time.Now().UTC()
	if scanErr == nil {
		last, parseErr := time.Parse(time.RFC3339, existing.LastMessageAt)
		if parseErr == nil && now.Sub(last) <= timeout {
			if err = tx.Commit(); err != nil {
				return nil, nil, fmt.Errorf("commit find session: %w", err)
			}
			return existing, nil, nil
		}

		// Timed out: archive in the same transaction.
		endedAt := now.Format(time.RFC3339)
		if _, err = tx.ExecContext(ctx,
			`UPDATE sessions SET status = ?, ended_at = ? WHERE id = ?`,
			SessionArchived, endedAt, existing.ID,
		); err != nil {
			return nil, nil, fmt.Errorf("archive stale session %s: %w", existing.ID, err)
		}
		existing.Status = SessionArchived
		existing.EndedAt = &endedAt
		archived = existing
	}

	fresh := &Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		Status:        SessionActive,
		StartedAt:     now.Format(time.RFC3339),
		LastMessageAt: now.Format(time.RFC3339),
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, status, started_at, last_message_at) VALUES (?, ?, ?, ?, ?)`,
		fresh.ID, fresh.UserID, fresh.Status, fresh.StartedAt, fresh.LastMessageAt,
	); err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit find-or-create session: %w", err)
	}
	return fresh, archived, nil
}

// CountActiveSessions reports how many active sessions a user has. Used by
// tests to assert the single-active-session invariant.
func (d *DB) CountActiveSessions(userID string) (int, error) {
	var n int
	err := d.conn.QueryRow(
		`SELECT COUNT(*) FROM sessions WHERE user_id = ? AND status = ?`, userID, SessionActive,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return n, nil
}
