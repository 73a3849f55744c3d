package llm

import (
	"context"
	"time"
)

// Message is a single chat turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption and the computed price of one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostUSD          float64
}

// Result is a completed provider call.
type Result struct {
	Text     string
	Usage    Usage
	Duration time.Duration
}

// Request describes one chat completion. ForceJSON asks the provider to
// constrain output to a single JSON object; providers that cannot honor
// it fall back to plain text.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	ForceJSON   bool
}

// Client is the provider-neutral surface the rest of the bot talks to.
type Client interface {
	Chat(ctx context.Context, req Request) (Result, error)
	Name() string
}
