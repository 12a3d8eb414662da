package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/llmgate/internal/model"
	"github.com/edvin/llmgate/internal/platform"
)

type UserService struct {
	db DB
}

func NewUserService(db DB) *UserService {
	return &UserService{db: db}
}

// Upsert creates or refreshes a user by (provider, subject). Called on every
// successful login so email and display name track the provider's claims.
func (s *UserService) Upsert(ctx context.Context, providerID, subject, email, displayName string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(ctx,
		`INSERT INTO users (id, provider_id, subject, email, display_name, admin, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, false, now(), now())
		 ON CONFLICT (provider_id, subject) DO UPDATE
		 SET email = $4, display_name = $5, updated_at = now()
		 RETURNING id, provider_id, subject, email, display_name, admin, created_at, updated_at`,
		platform.NewID(), providerID, subject, email, displayName,
	).Scan(&u.ID, &u.ProviderID, &u.Subject, &u.Email, &u.DisplayName, &u.Admin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &u, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(ctx,
		`SELECT id, provider_id, subject, email, display_name, admin, created_at, updated_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.ProviderID, &u.Subject, &u.Email, &u.DisplayName, &u.Admin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &u, nil
}

// SetAdmin grants or removes the admin flag.
func (s *UserService) SetAdmin(ctx context.Context, id string, admin bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET admin = $1, updated_at = now() WHERE id = $2`, admin, id,
	)
	if err != nil {
		return fmt.Errorf("update user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List retrieves users with cursor-based pagination.
func (s *UserService) List(ctx context.Context, limit int, cursor string) ([]model.User, bool, error) {
	query := `SELECT id, provider_id, subject, email, display_name, admin, created_at, updated_at FROM users`
	args := []any{}
	if cursor != "" {
		query += ` WHERE id > $1`
		args = append(args, cursor)
	}
	query += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args)+1)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.ProviderID, &u.Subject, &u.Email, &u.DisplayName, &u.Admin, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, false, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate users: %w", err)
	}

	hasMore := len(users) > limit
	if hasMore {
		users = users[:limit]
	}
	return users, hasMore, nil
}
