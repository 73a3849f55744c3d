package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dgaifullin/psybot/internal/db"
)

type fakeClient struct {
	res Result
	err error
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Chat(ctx context.Context, req Request) (Result, error) {
	return f.res, f.err
}

type captureRecorder struct {
	records []*db.LLMRequest
	err     error
}

func (c *captureRecorder) InsertLLMRequest(r *db.LLMRequest) (int64, error) {
	c.records = append(c.records, r)
	return int64(len(c.records)), c.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInstrumentedRecordsSuccess(t *testing.T) {
	client := &fakeClient{res: Result{
		Text: "hello",
		Usage: Usage{
			PromptTokens:     100,
			CompletionTokens: 40,
			TotalTokens:      140,
			CostUSD:          0.000039,
		},
		Duration: 250 * time.Millisecond,
	}}
	rec := &captureRecorder{}
	wrapped := NewInstrumented(client, rec, discardLogger())

	ctx := WithMeta(context.Background(), CallMeta{UserID: "u1", SessionID: "s1", MessageID: "m1"})
	res, err := wrapped.Chat(ctx, Request{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if res.Text != "hello" {
		t.Fatalf("unexpected text %q", res.Text)
	}

	if len(rec.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(rec.records))
	}
	r := rec.records[0]
	if r.Status != db.LLMStatusSuccess {
		t.Fatalf("unexpected status %q", r.Status)
	}
	if r.UserID == nil || *r.UserID != "u1" {
		t.Fatal("user attribution missing")
	}
	if r.SessionID == nil || *r.SessionID != "s1" {
		t.Fatal("session attribution missing")
	}
	if r.PromptTokens == nil || *r.PromptTokens != 100 {
		t.Fatal("prompt tokens not recorded")
	}
	if r.LatencyMs == nil || *r.LatencyMs != 250 {
		t.Fatal("latency not recorded")
	}
	if r.CostUSD == nil || *r.CostUSD != 0.000039 {
		t.Fatal("cost not recorded")
	}
}

func TestInstrumentedRecordsFailure(t *testing.T) {
	client := &fakeClient{err: errors.New("upstream exploded")}
	rec := &captureRecorder{}
	wrapped := NewInstrumented(client, rec, discardLogger())

	_, err := wrapped.Chat(context.Background(), Request{Model: "gpt-4o-mini"})
	if err == nil {
		t.Fatal("expected error to propagate")
	}

	if len(rec.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(rec.records))
	}
	r := rec.records[0]
	if r.Status != db.LLMStatusError {
		t.Fatalf("unexpected status %q", r.Status)
	}
	if r.ErrorCode == nil || *r.ErrorCode != "provider_error" {
		t.Fatal("error code not recorded")
	}
	if r.ErrorMessage == nil || *r.ErrorMessage != "upstream exploded" {
		t.Fatal("error message not recorded")
	}
	if r.UserID != nil {
		t.Fatal("unexpected user attribution without meta")
	}
}

func TestInstrumentedRecorderFailureDoesNotFailCall(t *testing.T) {
	client := &fakeClient{res: Result{Text: "ok"}}
	rec := &captureRecorder{err: errors.New("disk full")}
	wrapped := NewInstrumented(client, rec, discardLogger())

	res, err := wrapped.Chat(context.Background(), Request{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("Chat must not fail on recorder error: %v", err)
	}
	if res.Text != "ok" {
		t.Fatalf("unexpected text %q", res.Text)
	}
}
