package db

import (
	"fmt"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleDeveloper = "developer"
)

// Message is one immutable turn inside a session.
type Message struct {
	ID        string
	SessionID string
	UserID    string
	Role      string
	Content   string
	Meta      string // JSON blob
	CreatedAt string
}

// InsertMessage appends a message to the session log and returns it with its
// generated ID and timestamp filled in.
func (d *DB) InsertMessage(sessionID, userID, role, content, meta string) (*Message, error) {
	if meta == "" {
		meta = "{}"
	}
	m := &Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		Meta:      meta,
		CreatedAt: nowRFC3339(),
	}
	_, err := d.conn.Exec(
		`INSERT INTO messages (id, session_id, user_id, role, content, meta, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.UserID, m.Role, m.Content, m.Meta, m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// SessionMessages returns up to limit messages of a session in creation order.
func (d *DB) SessionMessages(sessionID string, limit int) ([]Message, error) {
	rows, err := d.conn.Query(
		`SELECT id, session_id, user_id, role, content, meta, created_at
		 FROM messages WHERE session_id = ?
		 ORDER BY created_at ASC, rowid ASC LIMIT ?`, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("session messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Role, &m.Content, &m.Meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// RecentSessionMessages returns the newest limit messages of a session in
// chronological order. This is the conversation window sent to the model.
func (d *DB) RecentSessionMessages(sessionID string, limit int) ([]Message, error) {
	rows, err := d.conn.Query(
		`SELECT id, session_id, user_id, role, content, meta, created_at FROM (
			SELECT id, session_id, user_id, role, content, meta, created_at, rowid AS rid
			FROM messages WHERE session_id = ?
			ORDER BY created_at DESC, rowid DESC LIMIT ?
		 ) ORDER BY created_at ASC, rid ASC`, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent session messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Role, &m.Content, &m.Meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountSessionMessages counts all messages in a session.
func (d *DB) CountSessionMessages(sessionID string) (int, error) {
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count session messages: %w", err)
	}
	return n, nil
}

// CountSessionMessagesSince counts messages created strictly after the given
// RFC3339 timestamp. An empty since counts everything.
func (d *DB) CountSessionMessagesSince(sessionID, since string) (int, error) {
	if since == "" {
		return d.CountSessionMessages(sessionID)
	}
	var n int
	err := d.conn.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE session_id = ? AND created_at > ?`, sessionID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count session messages since: %w", err)
	}
	return n, nil
}
