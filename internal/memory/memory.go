// Package memory turns finished stretches of conversation into session
// summaries and a single long-term facts profile per user.
package memory

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

const (
	// summaryMessageCap bounds how much conversation one summary reads.
	summaryMessageCap = 100
	// minSummaryMessages skips summarizing conversations too short to
	// say anything about.
	minSummaryMessages = 3
	// minFactMessages is the same bar for fact extraction.
	minFactMessages = 5
	// contextSummaries is how many recent summaries feed the system prompt.
	contextSummaries = 2
)

// Store is the slice of the database the manager needs.
type Store interface {
	SessionMessages(sessionID string, limit int) ([]db.Message, error)
	CountSessionMessages(sessionID string) (int, error)
	CountSessionMessagesSince(sessionID, since string) (int, error)
	LastSummaryAt(sessionID string) (string, error)
	InsertSummary(s *db.MemorySummary) (int64, error)
	RecentSummaries(userID string, limit int) ([]db.MemorySummary, error)
	GetFacts(userID string) (*db.MemoryFacts, error)
	UpsertFacts(f *db.MemoryFacts) error
}

// Manager creates summaries and maintains the facts profile.
type Manager struct {
	store  Store
	client llm.Client
	set    *prompts.Set
	model  string
	everyN int
	logger *slog.Logger
}

func NewManager(store Store, client llm.Client, set *prompts.Set, model string, everyN int, logger *slog.Logger) *Manager {
	if everyN < 1 {
		everyN = 10
	}
	return &Manager{store: store, client: client, set: set, model: model, everyN: everyN, logger: logger}
}

// ShouldSummarize reports whether enough new messages accumulated since
// the session's last summary. Summarizing resets the count, so a session
// summarizes at message N exactly once, not again at N+1.
func (m *Manager) ShouldSummarize(sessionID string) (bool, error) {
	last, err := m.store.LastSummaryAt(sessionID)
	if err != nil {
		return false, err
	}
	var n int
	if last == "" {
		n, err = m.store.CountSessionMessages(sessionID)
	} else {
		n, err = m.store.CountSessionMessagesSince(sessionID, last)
	}
	if err != nil {
		return false, err
	}
	return n >= m.everyN, nil
}

type summaryPayload struct {
	Summary               string   `json:"summary"`
	MainTopics            []string `json:"main_topics"`
	UserEmotions          []string `json:"user_emotions"`
	KeyThoughts           []string `json:"key_thoughts"`
	Triggers              []string `json:"triggers"`
	HelpfulStrategiesUsed []string `json:"helpful_strategies_used"`
	NextSessionGoal       string   `json:"next_session_goal"`
}

// Summarize distills the session's recent messages into one summary row.
// Sessions too short to summarize are skipped without error.
func (m *Manager) Summarize(ctx context.Context, userID, sessionID string) error {
	messages, err := m.store.SessionMessages(sessionID, summaryMessageCap)
	if err != nil {
		return fmt.Errorf("load session messages: %w", err)
	}
	if len(messages) < minSummaryMessages {
		m.logger.Debug("session too short to summarize", "session_id", sessionID, "messages", len(messages))
		return nil
	}

	callCtx := llm.WithMeta(ctx, llm.CallMeta{UserID: userID, SessionID: sessionID})
	res, err := m.client.Chat(callCtx, llm.Request{
		Model: m.model,
		Messages: []llm.Message{
			{Role: "system", Content: m.set.Summary},
			{Role: "user", Content: formatConversation(messages)},
		},
		Temperature: 0.5,
		ForceJSON:   true,
	})
	if err != nil {
		return fmt.Errorf("summarize session: %w", err)
	}

	var p summaryPayload
	if err := json.Unmarshal([]byte(extractJSON(res.Text)), &p); err != nil {
		return fmt.Errorf("parse summary output: %w", err)
	}

	row := &db.MemorySummary{
		UserID:                userID,
		SessionID:             sessionID,
		Summary:               p.Summary,
		MainTopics:            marshalList(p.MainTopics),
		UserEmotions:          marshalList(p.UserEmotions),
		KeyThoughts:           marshalList(p.KeyThoughts),
		Triggers:              marshalList(p.Triggers),
		HelpfulStrategiesUsed: marshalList(p.HelpfulStrategiesUsed),
		NextSessionGoal:       p.NextSessionGoal,
	}
	if _, err := m.store.InsertSummary(row); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	m.logger.Info("session summarized", "session_id", sessionID, "user_id", userID)
	return nil
}

// Facts is the decoded long-term profile.
type Facts struct {
	Profile               map[string]any `json:"profile"`
	StableIssues          []string       `json:"stable_issues"`
	ValuesAndGoals        []string       `json:"values_and_goals"`
	CommonTriggers        []string       `json:"common_triggers"`
	CognitivePatterns     []string       `json:"cognitive_patterns"`
	PreferredSupportStyle []string       `json:"preferred_support_style"`
	HardLimits            []string       `json:"hard_limits"`
}

// ExtractFacts asks the model for updated facts from the session and
// merges them into the stored profile. Existing facts are never lost:
// list fields union, profile keys take the latest value.
func (m *Manager) ExtractFacts(ctx context.Context, userID, sessionID string) error {
	messages, err := m.store.SessionMessages(sessionID, summaryMessageCap)
	if err != nil {
		return fmt.Errorf("load session messages: %w", err)
	}
	if len(messages) < minFactMessages {
		return nil
	}

	existing, err := m.loadFacts(userID)
	if err != nil {
		return err
	}

	var prompt strings.Builder
	prompt.WriteString("PREVIOUS FACTS:\n")
	if existing == nil {
		prompt.WriteString("No data.\n")
	} else {
		b, err := json.MarshalIndent(existing, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal existing facts: %w", err)
		}
		prompt.Write(b)
		prompt.WriteString("\n")
	}
	prompt.WriteString("\nNEW DIALOGUE:\n")
	prompt.WriteString(formatConversation(messages))
	prompt.WriteString("\n\nUpdate the facts based on the new dialogue. Keep old facts, add new ones.")

	callCtx := llm.WithMeta(ctx, llm.CallMeta{UserID: userID, SessionID: sessionID})
	res, err := m.client.Chat(callCtx, llm.Request{
		Model: m.model,
		Messages: []llm.Message{
			{Role: "system", Content: m.set.Facts},
			{Role: "user", Content: prompt.String()},
		},
		Temperature: 0.5,
		ForceJSON:   true,
	})
	if err != nil {
		return fmt.Errorf("extract facts: %w", err)
	}

	var fresh Facts
	if err := json.Unmarshal([]byte(extractJSON(res.Text)), &fresh); err != nil {
		return fmt.Errorf("parse fact output: %w", err)
	}

	merged := MergeFacts(existing, &fresh)
	row, err := encodeFacts(userID, merged)
	if err != nil {
		return err
	}
	if err := m.store.UpsertFacts(row); err != nil {
		return fmt.Errorf("store facts: %w", err)
	}
	m.logger.Info("memory facts updated", "user_id", userID)
	return nil
}

// Context returns the memory injected into the system prompt: recent
// summaries joined as text, and the facts profile as JSON. Both are empty
// strings when nothing is stored yet.
func (m *Manager) Context(userID string) (summary string, factsJSON string, err error) {
	summaries, err := m.store.RecentSummaries(userID, contextSummaries)
	if err != nil {
		return "", "", fmt.Errorf("load summaries: %w", err)
	}
	var parts []string
	for _, s := range summaries {
		if s.Summary != "" {
			parts = append(parts, s.Summary)
		}
	}
	summary = strings.Join(parts, "\n\n")

	facts, err := m.loadFacts(userID)
	if err != nil {
		return "", "", err
	}
	if facts != nil {
		b, err := json.Marshal(facts)
		if err != nil {
			return "", "", fmt.Errorf("marshal facts: %w", err)
		}
		factsJSON = string(b)
	}
	return summary, factsJSON, nil
}

// MergeFacts folds fresh facts into existing ones. List fields become the
// union with existing entries first, duplicates dropped. Profile keys take
// the fresh value when both sides have one.
func MergeFacts(existing, fresh *Facts) *Facts {
	if existing == nil {
		existing = &Facts{}
	}
	if fresh == nil {
		fresh = &Facts{}
	}

	profile := map[string]any{}
	for k, v := range existing.Profile {
		profile[k] = v
	}
	for k, v := range fresh.Profile {
		profile[k] = v
	}

	return &Facts{
		Profile:               profile,
		StableIssues:          unionLists(existing.StableIssues, fresh.StableIssues),
		ValuesAndGoals:        unionLists(existing.ValuesAndGoals, fresh.ValuesAndGoals),
		CommonTriggers:        unionLists(existing.CommonTriggers, fresh.CommonTriggers),
		CognitivePatterns:     unionLists(existing.CognitivePatterns, fresh.CognitivePatterns),
		PreferredSupportStyle: unionLists(existing.PreferredSupportStyle, fresh.PreferredSupportStyle),
		HardLimits:            unionLists(existing.HardLimits, fresh.HardLimits),
	}
}

func unionLists(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			key := strings.ToLower(strings.TrimSpace(v))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, v)
		}
	}
	return out
}

func (m *Manager) loadFacts(userID string) (*Facts, error) {
	row, err := m.store.GetFacts(userID)
	if err != nil {
		return nil, fmt.Errorf("load facts: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return decodeFacts(row)
}

func decodeFacts(row *db.MemoryFacts) (*Facts, error) {
	f := &Facts{}
	for _, field := range []struct {
		raw  string
		dest any
	}{
		{row.Profile, &f.Profile},
		{row.StableIssues, &f.StableIssues},
		{row.ValuesAndGoals, &f.ValuesAndGoals},
		{row.CommonTriggers, &f.CommonTriggers},
		{row.CognitivePatterns, &f.CognitivePatterns},
		{row.PreferredSupportStyle, &f.PreferredSupportStyle},
		{row.HardLimits, &f.HardLimits},
	} {
		if field.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(field.raw), field.dest); err != nil {
			return nil, fmt.Errorf("decode facts column: %w", err)
		}
	}
	return f, nil
}

func encodeFacts(userID string, f *Facts) (*db.MemoryFacts, error) {
	profile, err := json.Marshal(f.Profile)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	return &db.MemoryFacts{
		UserID:                userID,
		Profile:               string(profile),
		StableIssues:          marshalList(f.StableIssues),
		ValuesAndGoals:        marshalList(f.ValuesAndGoals),
		CommonTriggers:        marshalList(f.CommonTriggers),
		CognitivePatterns:     marshalList(f.CognitivePatterns),
		PreferredSupportStyle: marshalList(f.PreferredSupportStyle),
		HardLimits:            marshalList(f.HardLimits),
	}, nil
}

func marshalList(list []string) string {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func formatConversation(messages []db.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case db.RoleUser:
			b.WriteString("User: ")
		case db.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
