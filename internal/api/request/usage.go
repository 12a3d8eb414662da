package request

import (
	"net/http"
	"time"

	"github.com/edvin/llmgate/internal/core"
)

// ParseUsageFilter extracts usage history filters from query parameters.
// Malformed timestamps are ignored rather than rejected.
func ParseUsageFilter(r *http.Request) core.UsageFilter {
	q := r.URL.Query()
	f := core.UsageFilter{
		TokenID: q.Get("token_id"),
		UserID:  q.Get("user_id"),
		ModelID: q.Get("model_id"),
	}
	if from, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		f.From = from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		f.To = to
	}
	return f
}
