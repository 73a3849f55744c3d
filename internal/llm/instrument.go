package llm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dgaifullin/psybot/internal/db"
)

// Recorder persists one provider call record. *db.DB satisfies it.
type Recorder interface {
	InsertLLMRequest(r *db.LLMRequest) (int64, error)
}

// CallMeta ties a provider call to the user, session, and message that
// triggered it. Any field may be empty.
type CallMeta struct {
	UserID    string
	SessionID string
	MessageID string
}

type metaKey struct{}

// WithMeta attaches call attribution to ctx for downstream logging.
func WithMeta(ctx context.Context, meta CallMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

func metaFrom(ctx context.Context) CallMeta {
	meta, _ := ctx.Value(metaKey{}).(CallMeta)
	return meta
}

// Instrumented wraps a Client and writes an llm_requests row for every
// call, success or failure. Logging failures never fail the call itself.
type Instrumented struct {
	client   Client
	recorder Recorder
	logger   *slog.Logger
}

func NewInstrumented(client Client, recorder Recorder, logger *slog.Logger) *Instrumented {
	return &Instrumented{client: client, recorder: recorder, logger: logger}
}

func (i *Instrumented) Name() string { return i.client.Name() }

func (i *Instrumented) Chat(ctx context.Context, req Request) (Result, error) {
	res, err := i.client.Chat(ctx, req)

	meta := metaFrom(ctx)
	rec := &db.LLMRequest{
		Provider: i.client.Name(),
		Model:    req.Model,
	}
	if meta.UserID != "" {
		rec.UserID = &meta.UserID
	}
	if meta.SessionID != "" {
		rec.SessionID = &meta.SessionID
	}
	if meta.MessageID != "" {
		rec.MessageID = &meta.MessageID
	}

	if err != nil {
		rec.Status = db.LLMStatusError
		code := errorCode(err)
		msg := err.Error()
		rec.ErrorCode = &code
		rec.ErrorMessage = &msg
	} else {
		rec.Status = db.LLMStatusSuccess
		prompt := res.Usage.PromptTokens
		completion := res.Usage.CompletionTokens
		total := res.Usage.TotalTokens
		latency := res.Duration.Milliseconds()
		cost := res.Usage.CostUSD
		rec.PromptTokens = &prompt
		rec.CompletionTokens = &completion
		rec.TotalTokens = &total
		rec.LatencyMs = &latency
		rec.CostUSD = &cost
	}

	if _, recErr := i.recorder.InsertLLMRequest(rec); recErr != nil {
		i.logger.Error("record llm request", "error", recErr, "provider", rec.Provider)
	}
	return res, err
}

func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return "provider_error"
}
