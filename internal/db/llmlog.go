package db

import "fmt"

// LLM request statuses.
const (
	LLMStatusSuccess = "success"
	LLMStatusError   = "error"
)

// LLMRequest records the metadata of one provider call: tokens, latency,
// cost, and the error when the call failed.
type LLMRequest struct {
	ID               int64
	UserID           *string
	SessionID        *string
	MessageID        *string
	Provider         string
	Model            string
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
	LatencyMs        *int64
	CostUSD          *float64
	Status           string
	ErrorCode        *string
	ErrorMessage     *string
	CreatedAt        string
}

// InsertLLMRequest stores one request log row and returns its ID.
func (d *DB) InsertLLMRequest(r *LLMRequest) (int64, error) {
	if r.Status == "" {
		r.Status = LLMStatusSuccess
	}
	if r.CreatedAt == "" {
		r.CreatedAt = nowRFC3339()
	}
	res, err := d.conn.Exec(
		`INSERT INTO llm_requests (user_id, session_id, message_id, provider, model, prompt_tokens, completion_tokens, total_tokens, latency_ms, cost_usd, status, error_code, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.SessionID, r.MessageID, r.Provider, r.Model, r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.LatencyMs, r.CostUSD, r.Status, r.ErrorCode, r.ErrorMessage, r.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert llm request: %w", err)
	}
	return res.LastInsertId()
}
