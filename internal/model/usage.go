package model

import "time"

// UsageEntry is one append-only accounting record per completed proxied
// request. TokenID is nullable: portal sessions carry none, and entries
// outlive their token's soft-deletion. Entries are written even when the
// proxied call fails partway, with whatever counts are known.
type UsageEntry struct {
	ID               string    `json:"id" db:"id"`
	TokenID          *string   `json:"token_id,omitempty" db:"token_id"`
	UserID           string    `json:"user_id" db:"user_id"`
	ModelID          string    `json:"model_id" db:"model_id"`
	CategoryID       *string   `json:"category_id,omitempty" db:"category_id"`
	PromptTokens     int       `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens" db:"completion_tokens"`
	LatencyMs        int64     `json:"latency_ms" db:"latency_ms"`
	QueueMs          int64     `json:"queue_ms" db:"queue_ms"`
	Succeeded        bool      `json:"succeeded" db:"succeeded"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
