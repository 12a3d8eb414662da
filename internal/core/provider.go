package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/llmgate/internal/crypto"
	"github.com/edvin/llmgate/internal/model"
	"github.com/edvin/llmgate/internal/platform"
)

// ProviderService manages identity provider records. Client secrets are
// encrypted at rest with the gateway secret key.
type ProviderService struct {
	db        DB
	secretKey []byte
}

func NewProviderService(db DB, secretKey []byte) *ProviderService {
	return &ProviderService{db: db, secretKey: secretKey}
}

func (s *ProviderService) Create(ctx context.Context, name, issuer, clientID, clientSecret string, scopes []string, pkce bool) (*model.IdentityProvider, error) {
	enc, err := crypto.Encrypt([]byte(clientSecret), s.secretKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt client secret: %w", err)
	}

	if scopes == nil {
		scopes = []string{"openid", "profile", "email"}
	}

	p := &model.IdentityProvider{
		ID:       platform.NewID(),
		Name:     name,
		Issuer:   issuer,
		ClientID: clientID,
		Scopes:   scopes,
		PKCE:     pkce,
		Enabled:  true,
	}

	err = s.db.QueryRow(ctx,
		`INSERT INTO identity_providers (id, name, issuer, client_id, client_secret_enc, scopes, pkce, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, true, now(), now())
		 RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Issuer, p.ClientID, enc, p.Scopes, p.PKCE,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert identity provider: %w", err)
	}

	return p, nil
}

const providerColumns = `id, name, issuer, client_id, client_secret_enc, scopes, pkce, enabled, created_at, updated_at`

func scanProvider(row interface{ Scan(dest ...any) error }) (model.IdentityProvider, error) {
	var p model.IdentityProvider
	err := row.Scan(&p.ID, &p.Name, &p.Issuer, &p.ClientID, &p.ClientSecretEnc,
		&p.Scopes, &p.PKCE, &p.Enabled, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *ProviderService) GetByID(ctx context.Context, id string) (*model.IdentityProvider, error) {
	row := s.db.QueryRow(ctx, `SELECT `+providerColumns+` FROM identity_providers WHERE id = $1`, id)
	p, err := scanProvider(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get identity provider %s: %w", id, err)
	}
	return &p, nil
}

func (s *ProviderService) List(ctx context.Context) ([]model.IdentityProvider, error) {
	rows, err := s.db.Query(ctx, `SELECT `+providerColumns+` FROM identity_providers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list identity providers: %w", err)
	}
	defer rows.Close()

	var providers []model.IdentityProvider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity provider: %w", err)
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identity providers: %w", err)
	}
	return providers, nil
}

// SetEnabled toggles whether new logins may use the provider. Disabling
// preserves existing users and history.
func (s *ProviderService) SetEnabled(ctx context.Context, id string, enabled bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE identity_providers SET enabled = $1, updated_at = now() WHERE id = $2`, enabled, id,
	)
	if err != nil {
		return fmt.Errorf("update identity provider %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClientSecret decrypts and returns the provider's client secret for the
// token exchange.
func (s *ProviderService) ClientSecret(p *model.IdentityProvider) (string, error) {
	raw, err := crypto.Decrypt(p.ClientSecretEnc, s.secretKey)
	if err != nil {
		return "", fmt.Errorf("decrypt client secret for provider %s: %w", p.ID, err)
	}
	return string(raw), nil
}
