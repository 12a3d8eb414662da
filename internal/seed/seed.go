package seed

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/edvin/llmgate/internal/core"
)

// Apply reads a manifest and creates any providers, categories, models, grants
// and admin users it names that do not exist yet. Matching is by name, so
// re-applying an unchanged manifest is a no-op.
func Apply(ctx context.Context, services *core.Services, path string, logger zerolog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	categoryIDs, err := applyCategories(ctx, services, f.Categories, logger)
	if err != nil {
		return err
	}

	modelIDs, err := applyModels(ctx, services, f.Models, categoryIDs, logger)
	if err != nil {
		return err
	}

	// Preferred models reference models, so they are set after both passes.
	for _, c := range f.Categories {
		if c.PreferredModel == "" {
			continue
		}
		modelID, ok := modelIDs[c.PreferredModel]
		if !ok {
			return fmt.Errorf("category %q: unknown preferred model %q", c.Name, c.PreferredModel)
		}
		if err := services.Categories.SetPreferredModel(ctx, categoryIDs[c.Name], &modelID); err != nil {
			return fmt.Errorf("set preferred model for category %q: %w", c.Name, err)
		}
	}

	providerIDs, err := applyProviders(ctx, services, f.Providers, categoryIDs, logger)
	if err != nil {
		return err
	}

	for _, a := range f.Admins {
		providerID, ok := providerIDs[a.Provider]
		if !ok {
			return fmt.Errorf("admin %q: unknown provider %q", a.Subject, a.Provider)
		}
		u, err := services.Users.Upsert(ctx, providerID, a.Subject, a.Email, a.DisplayName)
		if err != nil {
			return fmt.Errorf("provision admin %q: %w", a.Subject, err)
		}
		if !u.Admin {
			if err := services.Users.SetAdmin(ctx, u.ID, true); err != nil {
				return fmt.Errorf("promote admin %q: %w", a.Subject, err)
			}
			logger.Info().Str("subject", a.Subject).Msg("seeded admin user")
		}
	}

	return nil
}

func applyCategories(ctx context.Context, services *core.Services, defs []CategoryDef, logger zerolog.Logger) (map[string]string, error) {
	existing, err := services.Categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	ids := make(map[string]string, len(existing))
	for _, c := range existing {
		ids[c.Name] = c.ID
	}

	for _, def := range defs {
		if _, ok := ids[def.Name]; ok {
			continue
		}
		c, err := services.Categories.Create(ctx, def.Name)
		if err != nil {
			return nil, fmt.Errorf("create category %q: %w", def.Name, err)
		}
		ids[def.Name] = c.ID
		logger.Info().Str("category", def.Name).Msg("seeded category")
	}
	return ids, nil
}

func applyModels(ctx context.Context, services *core.Services, defs []ModelDef, categoryIDs map[string]string, logger zerolog.Logger) (map[string]string, error) {
	existing, err := services.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	ids := make(map[string]string, len(existing))
	for _, m := range existing {
		ids[m.Name] = m.ID
	}

	for _, def := range defs {
		if _, ok := ids[def.Name]; ok {
			continue
		}
		var categoryID *string
		if def.Category != "" {
			id, ok := categoryIDs[def.Category]
			if !ok {
				return nil, fmt.Errorf("model %q: unknown category %q", def.Name, def.Category)
			}
			categoryID = &id
		}
		m, err := services.Models.Create(ctx, def.Name, categoryID)
		if err != nil {
			return nil, fmt.Errorf("create model %q: %w", def.Name, err)
		}
		ids[def.Name] = m.ID
		logger.Info().Str("model", def.Name).Msg("seeded model")
	}
	return ids, nil
}

func applyProviders(ctx context.Context, services *core.Services, defs []ProviderDef, categoryIDs map[string]string, logger zerolog.Logger) (map[string]string, error) {
	existing, err := services.Providers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	ids := make(map[string]string, len(existing))
	for _, p := range existing {
		ids[p.Name] = p.ID
	}

	for _, def := range defs {
		providerID, ok := ids[def.Name]
		if !ok {
			pkce := true
			if def.PKCE != nil {
				pkce = *def.PKCE
			}
			p, err := services.Providers.Create(ctx, def.Name, def.Issuer, def.ClientID, def.ClientSecret, def.Scopes, pkce)
			if err != nil {
				return nil, fmt.Errorf("create provider %q: %w", def.Name, err)
			}
			providerID = p.ID
			ids[def.Name] = providerID
			logger.Info().Str("provider", def.Name).Msg("seeded identity provider")
		}

		if err := applyGrants(ctx, services, providerID, def, categoryIDs, logger); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func applyGrants(ctx context.Context, services *core.Services, providerID string, def ProviderDef, categoryIDs map[string]string, logger zerolog.Logger) error {
	existing, err := services.Grants.ListByProvider(ctx, providerID)
	if err != nil {
		return fmt.Errorf("list grants for provider %q: %w", def.Name, err)
	}

	for _, g := range def.Grants {
		categoryID, ok := categoryIDs[g.Category]
		if !ok {
			return fmt.Errorf("grant %s=%s: unknown category %q", g.GroupClaim, g.GroupValue, g.Category)
		}

		present := false
		for _, e := range existing {
			if e.GroupClaim == g.GroupClaim && e.GroupValue == g.GroupValue && e.CategoryID == categoryID {
				present = true
				break
			}
		}
		if present {
			continue
		}

		if _, err := services.Grants.Create(ctx, providerID, g.GroupClaim, g.GroupValue, categoryID); err != nil {
			return fmt.Errorf("create grant %s=%s: %w", g.GroupClaim, g.GroupValue, err)
		}
		logger.Info().
			Str("provider", def.Name).
			Str("claim", g.GroupClaim).
			Str("value", g.GroupValue).
			Msg("seeded access grant")
	}
	return nil
}
