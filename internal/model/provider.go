package model

import "time"

// IdentityProvider is an external OIDC provider the gateway delegates browser
// logins to. ClientSecretEnc is encrypted at rest. Once a user references a
// provider it is disabled rather than deleted so login history stays intact.
type IdentityProvider struct {
	ID              string    `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	Issuer          string    `json:"issuer" db:"issuer"`
	ClientID        string    `json:"client_id" db:"client_id"`
	ClientSecretEnc string    `json:"-" db:"client_secret_enc"`
	Scopes          []string  `json:"scopes" db:"scopes"`
	PKCE            bool      `json:"pkce" db:"pkce"`
	Enabled         bool      `json:"enabled" db:"enabled"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}
