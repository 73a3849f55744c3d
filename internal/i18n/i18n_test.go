package i18n

import (
	"strings"
	"testing"
)

func TestTranslations(t *testing.T) {
	if got := T("en", "language_prompt"); got != "Choose a language:" {
		t.Errorf("en language_prompt = %q", got)
	}
	if got := T("kz", "language_prompt"); got != "Тілді таңда:" {
		t.Errorf("kz language_prompt = %q", got)
	}
}

func TestFallbackToRussian(t *testing.T) {
	// Unknown language falls back to the default catalog.
	if got := T("de", "language_prompt"); got != T("ru", "language_prompt") {
		t.Errorf("unknown language did not fall back: %q", got)
	}
}

func TestMissingKeyReturnsKey(t *testing.T) {
	if got := T("ru", "no_such_key"); got != "no_such_key" {
		t.Errorf("missing key should surface itself, got %q", got)
	}
}

func TestTfFormats(t *testing.T) {
	got := Tf("en", "quota_exceeded", 20)
	if !strings.Contains(got, "(20)") {
		t.Errorf("quota message not formatted: %q", got)
	}
}

func TestAllLanguagesCoverAllKeys(t *testing.T) {
	base := catalog[DefaultLanguage]
	for _, lang := range Languages() {
		if !Supported(lang) {
			t.Fatalf("declared language %q has no catalog", lang)
		}
		for key := range base {
			if _, ok := catalog[lang][key]; !ok {
				t.Errorf("language %q missing key %q", lang, key)
			}
		}
	}
}
