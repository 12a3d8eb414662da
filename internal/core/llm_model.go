package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/llmgate/internal/model"
	"github.com/edvin/llmgate/internal/platform"
)

// ModelService manages the model registry. Loaded state and backend port are
// mutated by the container service, not here.
type ModelService struct {
	db DB
}

func NewModelService(db DB) *ModelService {
	return &ModelService{db: db}
}

func (s *ModelService) Create(ctx context.Context, name string, categoryID *string) (*model.Model, error) {
	m := &model.Model{
		ID:         platform.NewID(),
		Name:       name,
		CategoryID: categoryID,
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO models (id, name, category_id, loaded, created_at, updated_at)
		 VALUES ($1, $2, $3, false, now(), now())
		 RETURNING created_at, updated_at`,
		m.ID, m.Name, m.CategoryID,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert model: %w", err)
	}
	return m, nil
}

const modelColumns = `id, name, category_id, loaded, port, last_used_at, created_at, updated_at`

func scanModel(row interface{ Scan(dest ...any) error }) (model.Model, error) {
	var m model.Model
	err := row.Scan(&m.ID, &m.Name, &m.CategoryID, &m.Loaded, &m.Port, &m.LastUsedAt, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (s *ModelService) GetByID(ctx context.Context, id string) (*model.Model, error) {
	row := s.db.QueryRow(ctx, `SELECT `+modelColumns+` FROM models WHERE id = $1`, id)
	m, err := scanModel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get model %s: %w", id, err)
	}
	return &m, nil
}

func (s *ModelService) List(ctx context.Context) ([]model.Model, error) {
	rows, err := s.db.Query(ctx, `SELECT `+modelColumns+` FROM models ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var models []model.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return models, nil
}

// SetCategory moves a model between routing categories.
func (s *ModelService) SetCategory(ctx context.Context, id string, categoryID *string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE models SET category_id = $1, updated_at = now() WHERE id = $2`, categoryID, id,
	)
	if err != nil {
		return fmt.Errorf("update model %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ModelService) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM models WHERE id = $1 AND loaded = false`, id)
	if err != nil {
		return fmt.Errorf("delete model %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("model %s not found or still loaded", id)
	}
	return nil
}
