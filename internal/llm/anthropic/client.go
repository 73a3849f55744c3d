package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dgaifullin/psybot/internal/llm"
)

// pricing is USD per one million tokens, input and output.
var pricing = map[string][2]float64{
	"claude-3-5-haiku-latest": {0.80, 4.00},
	"claude-sonnet-4-0":       {3.00, 15.00},
}

// Client speaks the Anthropic Messages API. The API has no JSON response
// mode, so ForceJSON relies on the prompt demanding a bare JSON object.
type Client struct {
	client sdk.Client
}

func New(apiKey, baseURL string, timeout time.Duration) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &Client{client: sdk.NewClient(opts...)}
}

func (c *Client) Name() string { return "anthropic" }

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	start := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(req.Model),
		MaxTokens:   int64(maxTokens),
		Temperature: sdk.Float(req.Temperature),
	}

	// Messages split into the system block and alternating turns.
	for _, m := range req.Messages {
		switch m.Role {
		case "system", "developer":
			params.System = append(params.System, sdk.TextBlockParam{Text: m.Content})
		case "assistant":
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.Result{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return llm.Result{}, fmt.Errorf("anthropic: no text block in response")
	}

	input := int(msg.Usage.InputTokens)
	output := int(msg.Usage.OutputTokens)
	return llm.Result{
		Text: text.String(),
		Usage: llm.Usage{
			PromptTokens:     input,
			CompletionTokens: output,
			TotalTokens:      input + output,
			CostUSD:          Cost(req.Model, input, output),
		},
		Duration: time.Since(start),
	}, nil
}

// Cost prices a call in USD. Unknown models cost zero.
func Cost(model string, inputTokens, outputTokens int) float64 {
	rates, ok := pricing[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1_000_000*rates[0] + float64(outputTokens)/1_000_000*rates[1]
}
