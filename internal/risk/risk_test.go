package risk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dgaifullin/psybot/internal/db"
	"github.com/dgaifullin/psybot/internal/llm"
	"github.com/dgaifullin/psybot/internal/prompts"
)

type scriptedClient struct {
	text string
	err  error
}

func (s *scriptedClient) Name() string { return "scripted" }

func (s *scriptedClient) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	if s.err != nil {
		return llm.Result{}, s.err
	}
	return llm.Result{Text: s.text}, nil
}

type memStore struct {
	events []db.RiskEvent
}

func (m *memStore) InsertRiskEvent(e *db.RiskEvent) (int64, error) {
	m.events = append(m.events, *e)
	return int64(len(m.events)), nil
}

func (m *memStore) RecentSessionRiskEvents(sessionID string, limit int) ([]db.RiskEvent, error) {
	var out []db.RiskEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].SessionID != nil && *m.events[i].SessionID == sessionID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func newTestDetector(t *testing.T, client llm.Client, store Store) *Detector {
	t.Helper()
	set, err := prompts.Load()
	if err != nil {
		t.Fatalf("load prompts: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDetector(client, set, store, "gpt-4o-mini", logger)
}

func TestAssessHighRisk(t *testing.T) {
	client := &scriptedClient{text: `{"risk":"high","category":"self_harm","reasons":["explicit intent"],"need_crisis_mode":true}`}
	store := &memStore{}
	d := newTestDetector(t, client, store)

	a := d.Assess(context.Background(), "u1", "s1", "m1", "I want to end it")
	if a.Failed {
		t.Fatal("unexpected failure")
	}
	if a.Risk != db.RiskHigh || a.Category != "self_harm" || !a.NeedCrisisMode {
		t.Fatalf("unexpected assessment %+v", a)
	}
	if !a.Escalates() {
		t.Fatal("high risk must escalate")
	}

	if len(store.events) != 1 {
		t.Fatalf("expected 1 recorded event, got %d", len(store.events))
	}
	if store.events[0].Risk != db.RiskHigh {
		t.Fatalf("recorded risk %q", store.events[0].Risk)
	}
}

func TestAssessFailsOpenOnProviderError(t *testing.T) {
	client := &scriptedClient{err: errors.New("provider down")}
	store := &memStore{}
	d := newTestDetector(t, client, store)

	a := d.Assess(context.Background(), "u1", "s1", "m1", "hello")
	if !a.Failed {
		t.Fatal("expected failed verdict")
	}
	if a.Risk != db.RiskNone {
		t.Fatalf("safe default risk should be none, got %q", a.Risk)
	}
	if a.Escalates() {
		t.Fatal("safe default must not escalate")
	}

	// The failure still leaves an audit record, flagged as such.
	if len(store.events) != 1 {
		t.Fatalf("expected 1 recorded event, got %d", len(store.events))
	}
	if store.events[0].Category != CategoryClassifierError {
		t.Fatalf("recorded category %q", store.events[0].Category)
	}
}

func TestAssessFailsOpenOnGarbageOutput(t *testing.T) {
	client := &scriptedClient{text: "I feel this message is fine!"}
	store := &memStore{}
	d := newTestDetector(t, client, store)

	a := d.Assess(context.Background(), "u1", "s1", "m1", "hello")
	if !a.Failed || a.Risk != db.RiskNone {
		t.Fatalf("unexpected assessment %+v", a)
	}
}

func TestAssessToleratesCodeFence(t *testing.T) {
	client := &scriptedClient{text: "```json\n{\"risk\":\"low\",\"category\":\"other\",\"reasons\":[],\"need_crisis_mode\":false}\n```"}
	store := &memStore{}
	d := newTestDetector(t, client, store)

	a := d.Assess(context.Background(), "u1", "s1", "m1", "hello")
	if a.Failed {
		t.Fatal("unexpected failure")
	}
	if a.Risk != db.RiskLow {
		t.Fatalf("unexpected risk %q", a.Risk)
	}
}

func TestAssessRejectsUnknownRiskLevel(t *testing.T) {
	client := &scriptedClient{text: `{"risk":"catastrophic","category":"other","reasons":[],"need_crisis_mode":false}`}
	store := &memStore{}
	d := newTestDetector(t, client, store)

	a := d.Assess(context.Background(), "u1", "s1", "m1", "hello")
	if !a.Failed {
		t.Fatal("unknown level must fall back to the safe default")
	}
}

func TestCrisisModeLatchesAcrossWindow(t *testing.T) {
	store := &memStore{}
	d := newTestDetector(t, &scriptedClient{}, store)

	sid := "s1"
	push := func(risk string) {
		store.InsertRiskEvent(&db.RiskEvent{UserID: "u1", SessionID: &sid, Risk: risk, Category: "none"})
	}

	push(db.RiskHigh)
	active, err := d.CrisisActive(sid)
	if err != nil {
		t.Fatalf("CrisisActive: %v", err)
	}
	if !active {
		t.Fatal("crisis mode should be on right after a high verdict")
	}

	// Two calm messages later the high verdict is still inside the window.
	push(db.RiskNone)
	push(db.RiskNone)
	active, _ = d.CrisisActive(sid)
	if !active {
		t.Fatal("crisis mode released too early")
	}

	// A third calm message pushes it out.
	push(db.RiskNone)
	active, _ = d.CrisisActive(sid)
	if active {
		t.Fatal("crisis mode should release after a clean window")
	}
}
