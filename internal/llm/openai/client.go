package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dgaifullin/psybot/internal/llm"
)

const defaultBaseURL = "https://api.openai.com"

// pricing is USD per one million tokens, prompt and completion.
var pricing = map[string][2]float64{
	"gpt-4o-mini": {0.150, 0.600},
	"gpt-4o":      {2.50, 10.00},
}

// Client speaks the OpenAI chat completions API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return "openai" }

// RequestError is a non-2xx answer from the API.
type RequestError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Message)
}

func (e *RequestError) Code() string {
	return fmt.Sprintf("http_%d", e.StatusCode)
}

// Retryable reports whether a repeat attempt could reasonably succeed.
func (e *RequestError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type chatCompletionRequest struct {
	Model          string        `json:"model"`
	Messages       []llm.Message `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat any           `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	start := time.Now()

	res, reqErr, err := c.do(ctx, req, req.ForceJSON, start)
	if err != nil {
		return llm.Result{}, err
	}
	if reqErr != nil {
		// Older models reject response_format. Retry the same request
		// without it and parse the text as JSON downstream.
		if req.ForceJSON && strings.Contains(strings.ToLower(reqErr.Message), "response_format") {
			res, reqErr, err = c.do(ctx, req, false, start)
			if err != nil {
				return llm.Result{}, err
			}
		}
	}
	if reqErr != nil {
		return llm.Result{}, reqErr
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, req llm.Request, forceJSON bool, start time.Time) (llm.Result, *RequestError, error) {
	body := chatCompletionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if forceJSON {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return llm.Result{}, nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/chat/completions", bytes.NewReader(b))
	if err != nil {
		return llm.Result{}, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return llm.Result{}, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.Result{}, nil, err
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return llm.Result{}, &RequestError{StatusCode: resp.StatusCode, Message: string(raw)}, nil
		}
		return llm.Result{}, nil, fmt.Errorf("decode chat response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reqErr := &RequestError{StatusCode: resp.StatusCode, Message: string(raw)}
		if out.Error != nil {
			reqErr.Type = out.Error.Type
			reqErr.Message = out.Error.Message
		}
		return llm.Result{}, reqErr, nil
	}

	if len(out.Choices) == 0 {
		return llm.Result{}, nil, fmt.Errorf("openai: empty choices")
	}

	usage := llm.Usage{
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		TotalTokens:      out.Usage.TotalTokens,
		CostUSD:          Cost(req.Model, out.Usage.PromptTokens, out.Usage.CompletionTokens),
	}
	return llm.Result{
		Text:     out.Choices[0].Message.Content,
		Usage:    usage,
		Duration: time.Since(start),
	}, nil, nil
}

// Cost prices a call in USD. Unknown models cost zero rather than
// guessing a rate.
func Cost(model string, promptTokens, completionTokens int) float64 {
	rates, ok := pricing[model]
	if !ok {
		return 0
	}
	return float64(promptTokens)/1_000_000*rates[0] + float64(completionTokens)/1_000_000*rates[1]
}
