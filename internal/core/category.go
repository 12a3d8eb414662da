package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/llmgate/internal/model"
	"github.com/edvin/llmgate/internal/platform"
)

type CategoryService struct {
	db DB
}

func NewCategoryService(db DB) *CategoryService {
	return &CategoryService{db: db}
}

func (s *CategoryService) Create(ctx context.Context, name string) (*model.Category, error) {
	c := &model.Category{
		ID:   platform.NewID(),
		Name: name,
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO categories (id, name, created_at, updated_at)
		 VALUES ($1, $2, now(), now())
		 RETURNING created_at, updated_at`,
		c.ID, c.Name,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

func (s *CategoryService) GetByID(ctx context.Context, id string) (*model.Category, error) {
	var c model.Category
	err := s.db.QueryRow(ctx,
		`SELECT id, name, preferred_model_id, created_at, updated_at FROM categories WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.PreferredModelID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category %s: %w", id, err)
	}
	return &c, nil
}

func (s *CategoryService) List(ctx context.Context) ([]model.Category, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, preferred_model_id, created_at, updated_at FROM categories ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.PreferredModelID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// SetPreferredModel updates which model wins election for the category.
// Pass nil to clear.
func (s *CategoryService) SetPreferredModel(ctx context.Context, id string, modelID *string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE categories SET preferred_model_id = $1, updated_at = now() WHERE id = $2`, modelID, id,
	)
	if err != nil {
		return fmt.Errorf("update category %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *CategoryService) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
