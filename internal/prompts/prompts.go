// Package prompts holds the embedded prompt templates and assembles the
// system prompt sent with every provider call.
package prompts

import (
	"embed"
	"fmt"
	"strings"

	"github.com/dgaifullin/psybot/internal/db"
)

//go:embed templates/*.md
var templateFS embed.FS

// Set is the loaded collection of prompt templates.
type Set struct {
	System       string
	Crisis       string
	Detector     string
	Summary      string
	Facts        string
	MemoryInsert string
}

// Load reads every embedded template. It fails only if the binary was
// built without one of them.
func Load() (*Set, error) {
	read := func(name string) (string, error) {
		b, err := templateFS.ReadFile("templates/" + name)
		if err != nil {
			return "", fmt.Errorf("read prompt template %s: %w", name, err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	var s Set
	var err error
	if s.System, err = read("system.md"); err != nil {
		return nil, err
	}
	if s.Crisis, err = read("crisis.md"); err != nil {
		return nil, err
	}
	if s.Detector, err = read("detector.md"); err != nil {
		return nil, err
	}
	if s.Summary, err = read("summary.md"); err != nil {
		return nil, err
	}
	if s.Facts, err = read("facts.md"); err != nil {
		return nil, err
	}
	if s.MemoryInsert, err = read("memory_insert.md"); err != nil {
		return nil, err
	}
	return &s, nil
}

var languageNames = map[string]string{
	"ru": "Russian",
	"kz": "Kazakh",
	"en": "English",
}

// BuildSystemPrompt assembles the per-message system prompt. Crisis mode
// swaps the base prompt and drops preferences and memory so nothing
// distracts from safety. Memory context is injected only when the user
// allows it.
func (s *Set) BuildSystemPrompt(user *db.User, crisisMode bool, memorySummary, factsJSON string) string {
	var b strings.Builder

	if crisisMode {
		b.WriteString(s.Crisis)
	} else {
		b.WriteString(s.System)

		b.WriteString("\n\nUser preferences:\n")
		fmt.Fprintf(&b, "- Style: %s\n", user.PreferredStyle)
		fmt.Fprintf(&b, "- Response length: %s\n", user.ResponseLength)

		if user.AllowMemory && (memorySummary != "" || factsJSON != "") {
			b.WriteString("\n")
			b.WriteString(s.memoryContext(memorySummary, factsJSON))
		}
	}

	if name, ok := languageNames[user.Language]; ok {
		fmt.Fprintf(&b, "\n\nAlways respond in %s.", name)
	}
	return b.String()
}

func (s *Set) memoryContext(summary, factsJSON string) string {
	if summary == "" {
		summary = "No previous sessions."
	}
	if factsJSON == "" {
		factsJSON = "{}"
	}
	out := strings.ReplaceAll(s.MemoryInsert, "{{summary}}", summary)
	return strings.ReplaceAll(out, "{{facts_json}}", factsJSON)
}
