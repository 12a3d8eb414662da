package request

import "time"

// CreateToken mints a bearer token. CategoryID and ModelID narrow the token's
// scope; at most one may be set.
type CreateToken struct {
	Name       string     `json:"name" validate:"required,slug"`
	CategoryID *string    `json:"category_id,omitempty"`
	ModelID    *string    `json:"model_id,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}
