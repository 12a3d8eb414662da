package request

// CreateProvider registers an OIDC identity provider.
type CreateProvider struct {
	Name         string   `json:"name" validate:"required"`
	Issuer       string   `json:"issuer" validate:"required,url"`
	ClientID     string   `json:"client_id" validate:"required"`
	ClientSecret string   `json:"client_secret" validate:"required"`
	Scopes       []string `json:"scopes,omitempty"`
	PKCE         *bool    `json:"pkce,omitempty"`
}

type SetProviderEnabled struct {
	Enabled bool `json:"enabled"`
}

// CreateGrant maps a provider group claim value to a category.
type CreateGrant struct {
	GroupClaim string `json:"group_claim" validate:"required"`
	GroupValue string `json:"group_value" validate:"required"`
	CategoryID string `json:"category_id" validate:"required"`
}
