package db

import "fmt"

// Risk levels, lowest to highest.
const (
	RiskNone   = "none"
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// RiskEvent is a single classifier verdict attached to one message. Failed
// classifications are recorded too, with category "classifier_error", so the
// audit trail never conflates "no risk" with "unknown risk".
type RiskEvent struct {
	ID                int64
	UserID            string
	SessionID         *string
	MessageID         *string
	Risk              string
	Category          string
	Reasons           string // JSON array
	RawDetectorOutput string // JSON blob
	CreatedAt         string
}

// InsertRiskEvent stores one classifier verdict and returns its ID.
func (d *DB) InsertRiskEvent(e *RiskEvent) (int64, error) {
	if e.Reasons == "" {
		e.Reasons = "[]"
	}
	if e.RawDetectorOutput == "" {
		e.RawDetectorOutput = "{}"
	}
	if e.CreatedAt == "" {
		e.CreatedAt = nowRFC3339()
	}
	res, err := d.conn.Exec(
		`INSERT INTO risk_events (user_id, session_id, message_id, risk, category, reasons, raw_detector_output, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.SessionID, e.MessageID, e.Risk, e.Category, e.Reasons, e.RawDetectorOutput, e.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert risk event: %w", err)
	}
	return res.LastInsertId()
}

// RecentSessionRiskEvents returns the newest risk events of a session,
// most recent first. The crisis gate inspects these.
func (d *DB) RecentSessionRiskEvents(sessionID string, limit int) ([]RiskEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, user_id, session_id, message_id, risk, category, reasons, raw_detector_output, created_at
		 FROM risk_events WHERE session_id = ?
		 ORDER BY id DESC LIMIT ?`, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent session risk events: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var events []RiskEvent
	for rows.Next() {
		var e RiskEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.SessionID, &e.MessageID, &e.Risk, &e.Category, &e.Reasons, &e.RawDetectorOutput, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan risk event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecentHighRisk returns the user's recent medium/high risk events.
func (d *DB) RecentHighRisk(userID string, limit int) ([]RiskEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, user_id, session_id, message_id, risk, category, reasons, raw_detector_output, created_at
		 FROM risk_events WHERE user_id = ? AND risk IN (?, ?)
		 ORDER BY id DESC LIMIT ?`, userID, RiskMedium, RiskHigh, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent high risk: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var events []RiskEvent
	for rows.Next() {
		var e RiskEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.SessionID, &e.MessageID, &e.Risk, &e.Category, &e.Reasons, &e.RawDetectorOutput, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan risk event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
