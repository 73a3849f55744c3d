package prompts

import (
	"strings"
	"testing"

	"github.com/dgaifullin/psybot/internal/db"
)

func testUser() *db.User {
	return &db.User{
		PreferredStyle: "cbt",
		ResponseLength: "medium",
		AllowMemory:    true,
		Language:       "ru",
	}
}

func TestLoadAllTemplates(t *testing.T) {
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for name, tmpl := range map[string]string{
		"system":        s.System,
		"crisis":        s.Crisis,
		"detector":      s.Detector,
		"summary":       s.Summary,
		"facts":         s.Facts,
		"memory_insert": s.MemoryInsert,
	} {
		if tmpl == "" {
			t.Errorf("template %s is empty", name)
		}
	}
}

func TestBuildSystemPromptNormal(t *testing.T) {
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := s.BuildSystemPrompt(testUser(), false, "user worked on anxiety", `{"profile":{}}`)

	if !strings.Contains(got, "Style: cbt") {
		t.Error("missing preferred style")
	}
	if !strings.Contains(got, "Response length: medium") {
		t.Error("missing response length")
	}
	if !strings.Contains(got, "user worked on anxiety") {
		t.Error("missing memory summary")
	}
	if !strings.Contains(got, "Always respond in Russian.") {
		t.Error("missing language instruction")
	}
}

func TestBuildSystemPromptCrisisDropsExtras(t *testing.T) {
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := s.BuildSystemPrompt(testUser(), true, "user worked on anxiety", `{"profile":{}}`)

	if strings.Contains(got, "Style: cbt") {
		t.Error("crisis prompt must not carry preferences")
	}
	if strings.Contains(got, "user worked on anxiety") {
		t.Error("crisis prompt must not carry memory context")
	}
	if !strings.Contains(got, "crisis") {
		t.Error("expected the crisis base prompt")
	}
}

func TestBuildSystemPromptRespectsMemoryOptOut(t *testing.T) {
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	u := testUser()
	u.AllowMemory = false
	got := s.BuildSystemPrompt(u, false, "user worked on anxiety", "")

	if strings.Contains(got, "user worked on anxiety") {
		t.Error("memory injected despite opt-out")
	}
}
