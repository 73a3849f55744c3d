package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL, "123:token"), srv
}

func ok(w http.ResponseWriter, result any) {
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func TestGetMe(t *testing.T) {
	var gotPath string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		ok(w, User{ID: 42, Username: "psybot", IsBot: true})
	})

	u, err := c.GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe: %v", err)
	}
	if gotPath != "/bot123:token/getMe" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if u.ID != 42 || u.Username != "psybot" {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestGetUpdatesAdvancesOffset(t *testing.T) {
	var gotReq getUpdatesRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		ok(w, []Update{
			{UpdateID: 10, Message: &Message{Text: "hi", Chat: &Chat{ID: 1}}},
			{UpdateID: 11, Message: &Message{Text: "again", Chat: &Chat{ID: 1}}},
		})
	})

	updates, next, err := c.GetUpdates(context.Background(), 5, time.Second)
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if gotReq.Offset != 5 {
		t.Fatalf("offset sent %d", gotReq.Offset)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d updates", len(updates))
	}
	if next != 12 {
		t.Fatalf("next offset %d, want 12", next)
	}
}

func TestGetUpdatesKeepsOffsetOnError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, next, err := c.GetUpdates(context.Background(), 7, time.Second)
	if err == nil {
		t.Fatal("expected error")
	}
	if next != 7 {
		t.Fatalf("offset moved to %d on failure", next)
	}
}

func TestSendMessageFallsBackToPlainText(t *testing.T) {
	var bodies []sendMessageRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		json.NewDecoder(r.Body).Decode(&req)
		bodies = append(bodies, req)
		if req.ParseMode == ParseModeHTML {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"ok": false, "error_code": 400,
				"description": "Bad Request: can't parse entities",
			})
			return
		}
		ok(w, Message{MessageID: 1})
	})

	if err := c.SendMessage(context.Background(), 1, "<b>broken<i>", nil); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(bodies) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(bodies))
	}
	if bodies[0].ParseMode != ParseModeHTML {
		t.Fatal("first attempt should be HTML")
	}
	if bodies[1].ParseMode != "" {
		t.Fatal("second attempt should be plain text")
	}
	if strings.Contains(bodies[1].Text, "<") {
		t.Fatalf("plain fallback still carries tags: %q", bodies[1].Text)
	}
}

func TestSendMessageChunksLongText(t *testing.T) {
	var texts []string
	var markups []bool
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		json.NewDecoder(r.Body).Decode(&req)
		texts = append(texts, req.Text)
		markups = append(markups, req.ReplyMarkup != nil)
		ok(w, Message{MessageID: 1})
	})

	long := strings.Repeat("line of therapy advice\n", 400)
	kb := &ReplyKeyboardMarkup{Keyboard: [][]KeyboardButton{{{Text: "help"}}}, ResizeKeyboard: true}
	if err := c.SendMessage(context.Background(), 1, long, kb); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(texts) < 2 {
		t.Fatalf("expected chunking, got %d messages", len(texts))
	}
	for i, txt := range texts {
		if len(txt) > maxMessageLen {
			t.Fatalf("chunk %d exceeds limit: %d bytes", i, len(txt))
		}
	}
	// Only the final chunk carries the keyboard.
	for i, has := range markups {
		want := i == len(markups)-1
		if has != want {
			t.Fatalf("chunk %d keyboard = %v, want %v", i, has, want)
		}
	}
}

func TestAnswerCallbackQuery(t *testing.T) {
	var gotPath string
	var gotReq answerCallbackQueryRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		ok(w, true)
	})

	if err := c.AnswerCallbackQuery(context.Background(), "cb1", ""); err != nil {
		t.Fatalf("AnswerCallbackQuery: %v", err)
	}
	if !strings.HasSuffix(gotPath, "/answerCallbackQuery") {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotReq.CallbackQueryID != "cb1" {
		t.Fatalf("unexpected id %q", gotReq.CallbackQueryID)
	}
}

func TestRequestErrorDescription(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{
			"ok": false, "error_code": 403,
			"description": "Forbidden: bot was blocked by the user",
		})
	})

	err := c.SendChatAction(context.Background(), 1, "typing")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "blocked by the user") {
		t.Fatalf("error lost description: %v", err)
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		user *User
		want string
	}{
		{&User{FirstName: "Aidar", LastName: "K"}, "Aidar K"},
		{&User{FirstName: "Aidar"}, "Aidar"},
		{&User{Username: "aidar"}, "@aidar"},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := DisplayName(tc.user); got != tc.want {
			t.Errorf("DisplayName(%+v) = %q, want %q", tc.user, got, tc.want)
		}
	}
}
