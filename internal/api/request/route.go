package request

// ResolveRoute asks the gateway which backend should serve a request. The
// caller names either a model or a category; the credential's scope may
// override both.
type ResolveRoute struct {
	ModelID    string `json:"model_id,omitempty"`
	CategoryID string `json:"category_id,omitempty"`
}

// CompleteRoute closes out a routed request: it releases the in-flight slot
// and records the usage entry.
type CompleteRoute struct {
	ModelID          string  `json:"model_id" validate:"required"`
	CategoryID       *string `json:"category_id,omitempty"`
	PromptTokens     int     `json:"prompt_tokens" validate:"min=0"`
	CompletionTokens int     `json:"completion_tokens" validate:"min=0"`
	LatencyMs        int64   `json:"latency_ms" validate:"min=0"`
	QueueMs          int64   `json:"queue_ms" validate:"min=0"`
	Succeeded        bool    `json:"succeeded"`
}
