package core

import (
	"context"
	"fmt"
	"time"

	"github.com/edvin/llmgate/internal/model"
	"github.com/edvin/llmgate/internal/platform"
)

// UsageService records per-request accounting entries and serves filtered
// history queries. The log is append-only; nothing updates or deletes rows.
type UsageService struct {
	db DB
}

func NewUsageService(db DB) *UsageService {
	return &UsageService{db: db}
}

// RecordInput carries everything known about one completed proxied request.
// TokenID is nil for session-authenticated calls.
type RecordInput struct {
	TokenID          *string
	UserID           string
	ModelID          string
	CategoryID       *string
	PromptTokens     int
	CompletionTokens int
	LatencyMs        int64
	QueueMs          int64
	Succeeded        bool
}

// Record appends one usage entry. Failed proxied calls are recorded too,
// with whatever counts were extracted before the failure.
func (s *UsageService) Record(ctx context.Context, in RecordInput) (*model.UsageEntry, error) {
	e := &model.UsageEntry{
		ID:               platform.NewID(),
		TokenID:          in.TokenID,
		UserID:           in.UserID,
		ModelID:          in.ModelID,
		CategoryID:       in.CategoryID,
		PromptTokens:     in.PromptTokens,
		CompletionTokens: in.CompletionTokens,
		LatencyMs:        in.LatencyMs,
		QueueMs:          in.QueueMs,
		Succeeded:        in.Succeeded,
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO usage_log (id, token_id, user_id, model_id, category_id, prompt_tokens, completion_tokens, latency_ms, queue_ms, succeeded, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		 RETURNING created_at`,
		e.ID, e.TokenID, e.UserID, e.ModelID, e.CategoryID,
		e.PromptTokens, e.CompletionTokens, e.LatencyMs, e.QueueMs, e.Succeeded,
	).Scan(&e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert usage entry: %w", err)
	}
	return e, nil
}

// UsageFilter narrows a history query. Zero values mean no constraint on
// that dimension.
type UsageFilter struct {
	TokenID string
	UserID  string
	ModelID string
	From    time.Time
	To      time.Time
}

const usageColumns = `id, token_id, user_id, model_id, category_id, prompt_tokens, completion_tokens, latency_ms, queue_ms, succeeded, created_at`

func scanUsageEntry(row interface{ Scan(dest ...any) error }) (model.UsageEntry, error) {
	var e model.UsageEntry
	err := row.Scan(&e.ID, &e.TokenID, &e.UserID, &e.ModelID, &e.CategoryID,
		&e.PromptTokens, &e.CompletionTokens, &e.LatencyMs, &e.QueueMs, &e.Succeeded, &e.CreatedAt)
	return e, err
}

// List retrieves usage entries, filtered and cursor-paginated. Rows are
// ordered by id so the id cursor forms a stable keyset.
func (s *UsageService) List(ctx context.Context, filter UsageFilter, limit int, cursor string) ([]model.UsageEntry, bool, error) {
	query := `SELECT ` + usageColumns + ` FROM usage_log WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.TokenID != "" {
		query += fmt.Sprintf(` AND token_id = $%d`, argIdx)
		args = append(args, filter.TokenID)
		argIdx++
	}
	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.ModelID != "" {
		query += fmt.Sprintf(` AND model_id = $%d`, argIdx)
		args = append(args, filter.ModelID)
		argIdx++
	}
	if !filter.From.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.From)
		argIdx++
	}
	if !filter.To.IsZero() {
		query += fmt.Sprintf(` AND created_at < $%d`, argIdx)
		args = append(args, filter.To)
		argIdx++
	}
	if cursor != "" {
		query += fmt.Sprintf(` AND id > $%d`, argIdx)
		args = append(args, cursor)
		argIdx++
	}

	query += fmt.Sprintf(` ORDER BY id LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list usage entries: %w", err)
	}
	defer rows.Close()

	var entries []model.UsageEntry
	for rows.Next() {
		e, err := scanUsageEntry(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan usage entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate usage entries: %w", err)
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}
	return entries, hasMore, nil
}

// Totals aggregates token counts and request outcomes over a filter window.
type UsageTotals struct {
	Requests         int64 `json:"requests"`
	Failures         int64 `json:"failures"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

func (s *UsageService) Totals(ctx context.Context, filter UsageFilter) (*UsageTotals, error) {
	query := `SELECT count(*), count(*) FILTER (WHERE NOT succeeded),
	                 COALESCE(sum(prompt_tokens), 0), COALESCE(sum(completion_tokens), 0)
	          FROM usage_log WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.TokenID != "" {
		query += fmt.Sprintf(` AND token_id = $%d`, argIdx)
		args = append(args, filter.TokenID)
		argIdx++
	}
	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.ModelID != "" {
		query += fmt.Sprintf(` AND model_id = $%d`, argIdx)
		args = append(args, filter.ModelID)
		argIdx++
	}
	if !filter.From.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.From)
		argIdx++
	}
	if !filter.To.IsZero() {
		query += fmt.Sprintf(` AND created_at < $%d`, argIdx)
		args = append(args, filter.To)
	}

	var t UsageTotals
	err := s.db.QueryRow(ctx, query, args...).Scan(&t.Requests, &t.Failures, &t.PromptTokens, &t.CompletionTokens)
	if err != nil {
		return nil, fmt.Errorf("aggregate usage: %w", err)
	}
	return &t, nil
}
