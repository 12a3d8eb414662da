package model

import "time"

// Session is a browser session issued on login completion. TokenHash is the
// sha256 of the raw session token; the raw value is returned exactly once.
// Categories is the set of category IDs granted via the user's identity
// provider group claims, snapshotted at login time so per-request
// authorization never calls back to the provider.
type Session struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	TokenHash   string    `json:"-" db:"token_hash"`
	TokenPrefix string    `json:"token_prefix" db:"token_prefix"`
	Categories  []string  `json:"categories" db:"categories"`
	ExpiresAt   time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// LoginState is the ephemeral OIDC handshake record created by BeginLogin and
// consumed exactly once by CompleteLogin. Keyed by the CSRF token that is
// round-tripped through the provider redirect as the `state` parameter.
type LoginState struct {
	CSRFToken    string    `json:"csrf_token" db:"csrf_token"`
	ProviderID   string    `json:"provider_id" db:"provider_id"`
	Nonce        string    `json:"nonce" db:"nonce"`
	PKCEVerifier *string   `json:"-" db:"pkce_verifier"`
	RedirectURI  string    `json:"redirect_uri" db:"redirect_uri"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
