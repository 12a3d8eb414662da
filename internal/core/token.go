package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/llmgate/internal/crypto"
	"github.com/edvin/llmgate/internal/model"
	"github.com/edvin/llmgate/internal/platform"
)

// TokenService manages bearer token lifecycle. Validation of presented
// tokens lives in AccessService.
type TokenService struct {
	db DB
}

func NewTokenService(db DB) *TokenService {
	return &TokenService{db: db}
}

// Mint generates a new bearer token for a user, stores the hash, and returns
// the model along with the raw token string. The raw token must be shown to
// the user exactly once. A token is scoped to a category, a specific model,
// or neither; never both.
func (s *TokenService) Mint(ctx context.Context, userID, name string, scope model.Scope, expiresAt *time.Time) (*model.Token, string, error) {
	raw := platform.NewSecret("lgt_")

	t := &model.Token{
		ID:        platform.NewID(),
		UserID:    userID,
		Name:      name,
		KeyHash:   crypto.GenericHash(raw),
		KeyPrefix: raw[:12],
		ExpiresAt: expiresAt,
	}

	switch scope.Kind {
	case model.ScopeCategory:
		t.CategoryID = &scope.CategoryID
	case model.ScopeModel:
		t.ModelID = &scope.ModelID
	case model.ScopeUnrestricted:
	default:
		return nil, "", fmt.Errorf("invalid token scope kind %d", scope.Kind)
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO tokens (id, user_id, name, key_hash, key_prefix, category_id, model_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 RETURNING created_at`,
		t.ID, t.UserID, t.Name, t.KeyHash, t.KeyPrefix, t.CategoryID, t.ModelID, t.ExpiresAt,
	).Scan(&t.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("insert token: %w", err)
	}

	return t, raw, nil
}

const tokenColumns = `id, user_id, name, key_prefix, category_id, model_id, expires_at, revoked_at, deleted_at, last_used_at, created_at`

func scanToken(row interface{ Scan(dest ...any) error }) (model.Token, error) {
	var t model.Token
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.KeyPrefix, &t.CategoryID, &t.ModelID,
		&t.ExpiresAt, &t.RevokedAt, &t.DeletedAt, &t.LastUsedAt, &t.CreatedAt)
	return t, err
}

func (s *TokenService) GetByID(ctx context.Context, id string) (*model.Token, error) {
	row := s.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1 AND deleted_at IS NULL`, id)
	t, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token %s: %w", id, err)
	}
	return &t, nil
}

// ListByUser retrieves a user's tokens, newest first, excluding soft-deleted.
func (s *TokenService) ListByUser(ctx context.Context, userID string) ([]model.Token, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []model.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return tokens, nil
}

// Revoke marks a token revoked. Idempotence is not offered: revoking an
// already-revoked or unknown token reports not found.
func (s *TokenService) Revoke(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tokens SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL AND deleted_at IS NULL`, id,
	)
	if err != nil {
		return fmt.Errorf("revoke token %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete hides a token from listings while keeping the row for usage
// history. The hash stays unique across live and soft-deleted tokens, and a
// soft-deleted token never validates.
func (s *TokenService) SoftDelete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE tokens SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id,
	)
	if err != nil {
		return fmt.Errorf("soft-delete token %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
