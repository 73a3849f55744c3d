package openai

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgaifullin/psybot/internal/llm"
)

func completionBody(content string, prompt, completion int) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
		"usage": map[string]any{
			"prompt_tokens":     prompt,
			"completion_tokens": completion,
			"total_tokens":      prompt + completion,
		},
	}
}

func TestChatSuccess(t *testing.T) {
	var gotPath string
	var gotAuth string
	var gotBody chatCompletionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(completionBody("hi there", 1000, 500))
	}))
	defer srv.Close()

	c := New(srv.URL, "sk-test", 0)
	res, err := c.Chat(context.Background(), llm.Request{
		Model:     "gpt-4o-mini",
		Messages:  []llm.Message{{Role: "user", Content: "hi"}},
		ForceJSON: true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if gotPath != "/v1/chat/completions" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody.ResponseFormat == nil {
		t.Fatal("expected response_format in request")
	}
	if res.Text != "hi there" {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if res.Usage.TotalTokens != 1500 {
		t.Fatalf("unexpected total tokens %d", res.Usage.TotalTokens)
	}

	// 1000 prompt tokens at $0.150/1M plus 500 completion at $0.600/1M.
	want := 0.00015 + 0.0003
	if math.Abs(res.Usage.CostUSD-want) > 1e-12 {
		t.Fatalf("cost %v, want %v", res.Usage.CostUSD, want)
	}
}

func TestChatRetriesWithoutResponseFormat(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var body chatCompletionRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.ResponseFormat != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{
					"message": "'response_format' is not supported with this model",
					"type":    "invalid_request_error",
				},
			})
			return
		}
		json.NewEncoder(w).Encode(completionBody(`{"ok":true}`, 10, 5))
	}))
	defer srv.Close()

	c := New(srv.URL, "sk-test", 0)
	res, err := c.Chat(context.Background(), llm.Request{Model: "gpt-4o-mini", ForceJSON: true})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected fallback retry, got %d calls", calls)
	}
	if res.Text != `{"ok":true}` {
		t.Fatalf("unexpected text %q", res.Text)
	}
}

func TestChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limit reached", "type": "rate_limit_error"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "sk-test", 0)
	_, err := c.Chat(context.Background(), llm.Request{Model: "gpt-4o-mini"})
	if err == nil {
		t.Fatal("expected error")
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %T", err)
	}
	if reqErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected status %d", reqErr.StatusCode)
	}
	if !reqErr.Retryable() {
		t.Fatal("429 should be retryable")
	}
	if reqErr.Code() != "http_429" {
		t.Fatalf("unexpected code %q", reqErr.Code())
	}
}

func TestCostUnknownModel(t *testing.T) {
	if got := Cost("mystery-model", 1000, 1000); got != 0 {
		t.Fatalf("unknown model should cost 0, got %v", got)
	}
}
