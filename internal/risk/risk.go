// Package risk runs the per-message safety classifier and decides when
// the conversation switches into crisis mode.
package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgaifullin/psybot/internal/db"
	"github.com/dgaifullin/psybot/internal/llm"
	"github.com/dgaifullin/psybot/internal/prompts"
)

// CategoryClassifierError marks risk events recorded when the classifier
// itself failed, so the audit trail never reads a failure as "no risk".
const CategoryClassifierError = "classifier_error"

// crisisWindow is how many recent verdicts keep crisis mode latched.
const crisisWindow = 3

// Assessment is one classifier verdict.
type Assessment struct {
	Risk           string   `json:"risk"`
	Category       string   `json:"category"`
	Reasons        []string `json:"reasons"`
	NeedCrisisMode bool     `json:"need_crisis_mode"`

	// Failed is set when the classifier errored and the verdict is the
	// safe default rather than a real assessment.
	Failed bool `json:"-"`
}

// Store is the slice of the database the detector needs.
type Store interface {
	InsertRiskEvent(e *db.RiskEvent) (int64, error)
	RecentSessionRiskEvents(sessionID string, limit int) ([]db.RiskEvent, error)
}

// Detector classifies user messages. It fails open: a broken classifier
// never blocks the conversation, it only degrades the verdict to the safe
// default and records the failure.
type Detector struct {
	client llm.Client
	set    *prompts.Set
	store  Store
	model  string
	logger *slog.Logger
}

func NewDetector(client llm.Client, set *prompts.Set, store Store, model string, logger *slog.Logger) *Detector {
	return &Detector{client: client, set: set, store: store, model: model, logger: logger}
}

func safeDefault() Assessment {
	return Assessment{Risk: db.RiskNone, Category: "none", Reasons: []string{}, Failed: true}
}

var validRisks = map[string]bool{
	db.RiskNone:   true,
	db.RiskLow:    true,
	db.RiskMedium: true,
	db.RiskHigh:   true,
}

// Assess classifies one user message and records the verdict as a risk
// event. It never returns an error for classifier failures; the returned
// assessment carries Failed instead.
func (d *Detector) Assess(ctx context.Context, userID, sessionID, messageID, text string) Assessment {
	a, raw, err := d.classify(ctx, text)
	if err != nil {
		d.logger.Warn("risk classifier failed", "error", err, "user_id", userID)
		a = safeDefault()
	}

	event := &db.RiskEvent{
		UserID:    userID,
		Risk:      a.Risk,
		Category:  a.Category,
		SessionID: &sessionID,
		MessageID: &messageID,
	}
	if a.Failed {
		event.Category = CategoryClassifierError
	}
	if reasons, err := json.Marshal(a.Reasons); err == nil {
		event.Reasons = string(reasons)
	}
	if raw != "" {
		if out, err := json.Marshal(map[string]string{"output": raw}); err == nil {
			event.RawDetectorOutput = string(out)
		}
	}
	if _, err := d.store.InsertRiskEvent(event); err != nil {
		d.logger.Error("record risk event", "error", err, "user_id", userID)
	}
	return a
}

func (d *Detector) classify(ctx context.Context, text string) (Assessment, string, error) {
	res, err := d.client.Chat(ctx, llm.Request{
		Model: d.model,
		Messages: []llm.Message{
			{Role: "system", Content: d.set.Detector},
			{Role: "user", Content: text},
		},
		MaxTokens: 300,
		ForceJSON: true,
	})
	if err != nil {
		return Assessment{}, "", err
	}

	var a Assessment
	if err := json.Unmarshal([]byte(extractJSON(res.Text)), &a); err != nil {
		return Assessment{}, res.Text, fmt.Errorf("parse detector output: %w", err)
	}
	if !validRisks[a.Risk] {
		return Assessment{}, res.Text, fmt.Errorf("unknown risk level %q", a.Risk)
	}
	if a.Category == "" {
		a.Category = "none"
	}
	if a.Reasons == nil {
		a.Reasons = []string{}
	}
	return a, res.Text, nil
}

// extractJSON tolerates models that wrap the object in a code fence or
// stray prose.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

// Escalates reports whether the verdict demands crisis mode on its own.
func (a Assessment) Escalates() bool {
	return a.NeedCrisisMode || a.Risk == db.RiskMedium || a.Risk == db.RiskHigh
}

// CrisisActive reports whether the session is currently in crisis mode.
// The mode latches: it stays on while any of the last few verdicts in the
// session escalated, and releases only after that window passes clean.
func (d *Detector) CrisisActive(sessionID string) (bool, error) {
	events, err := d.store.RecentSessionRiskEvents(sessionID, crisisWindow)
	if err != nil {
		return false, err
	}
	for _, e := range events {
		if e.Risk == db.RiskMedium || e.Risk == db.RiskHigh {
			return true, nil
		}
	}
	return false, nil
}
