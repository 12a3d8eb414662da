package core

import (
	"context"
	"fmt"

	"github.com/edvin/llmgate/internal/model"
	"github.com/edvin/llmgate/internal/platform"
)

// GrantService maps identity provider group claims to model categories.
type GrantService struct {
	db DB
}

func NewGrantService(db DB) *GrantService {
	return &GrantService{db: db}
}

func (s *GrantService) Create(ctx context.Context, providerID, groupClaim, groupValue, categoryID string) (*model.AccessGrant, error) {
	g := &model.AccessGrant{
		ID:         platform.NewID(),
		ProviderID: providerID,
		GroupClaim: groupClaim,
		GroupValue: groupValue,
		CategoryID: categoryID,
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO access_grants (id, provider_id, group_claim, group_value, category_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 RETURNING created_at`,
		g.ID, g.ProviderID, g.GroupClaim, g.GroupValue, g.CategoryID,
	).Scan(&g.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert access grant: %w", err)
	}
	return g, nil
}

func (s *GrantService) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM access_grants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete access grant %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GrantService) ListByProvider(ctx context.Context, providerID string) ([]model.AccessGrant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, provider_id, group_claim, group_value, category_id, created_at
		 FROM access_grants WHERE provider_id = $1 ORDER BY group_claim, group_value`,
		providerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list access grants: %w", err)
	}
	defer rows.Close()

	var grants []model.AccessGrant
	for rows.Next() {
		var g model.AccessGrant
		if err := rows.Scan(&g.ID, &g.ProviderID, &g.GroupClaim, &g.GroupValue, &g.CategoryID, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan access grant: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access grants: %w", err)
	}
	return grants, nil
}

// CategoriesFor derives the category IDs granted to a login whose provider
// claims carry the given group values. Deduplicated, order not significant.
func (s *GrantService) CategoriesFor(ctx context.Context, providerID string, groups map[string][]string) ([]string, error) {
	grants, err := s.ListByProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var categories []string
	for _, g := range grants {
		for _, value := range groups[g.GroupClaim] {
			if value == g.GroupValue && !seen[g.CategoryID] {
				seen[g.CategoryID] = true
				categories = append(categories, g.CategoryID)
			}
		}
	}
	return categories, nil
}
