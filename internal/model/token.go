package model

import "time"

// Token is a bearer credential owned by one user. KeyHash is the sha256 of
// the raw token; KeyPrefix is kept for identification in listings. Revocation,
// expiry and soft-deletion are independent disqualifying conditions. Tokens
// are never hard-deleted once usage history references them.
type Token struct {
	ID         string     `json:"id" db:"id"`
	UserID     string     `json:"user_id" db:"user_id"`
	Name       string     `json:"name" db:"name"`
	KeyHash    string     `json:"-" db:"key_hash"`
	KeyPrefix  string     `json:"key_prefix" db:"key_prefix"`
	CategoryID *string    `json:"category_id,omitempty" db:"category_id"`
	ModelID    *string    `json:"model_id,omitempty" db:"model_id"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// ScopeKind discriminates a token's effective scope. Exactly one case is
// active; when a row carries both a model and a category the specific model
// takes precedence.
type ScopeKind int

const (
	ScopeUnrestricted ScopeKind = iota
	ScopeCategory
	ScopeModel
)

// Scope is the tagged effective authorization scope of a credential.
type Scope struct {
	Kind       ScopeKind `json:"kind"`
	CategoryID string    `json:"category_id,omitempty"`
	ModelID    string    `json:"model_id,omitempty"`
}

// Scope derives the effective scope from the token's nullable columns.
func (t *Token) Scope() Scope {
	if t.ModelID != nil && *t.ModelID != "" {
		return Scope{Kind: ScopeModel, ModelID: *t.ModelID}
	}
	if t.CategoryID != nil && *t.CategoryID != "" {
		return Scope{Kind: ScopeCategory, CategoryID: *t.CategoryID}
	}
	return Scope{Kind: ScopeUnrestricted}
}

// AccessGrant maps an identity provider's group claim/value pair to a
// category. Users whose provider claims carry the pair gain the category at
// login, independent of explicit tokens.
type AccessGrant struct {
	ID         string    `json:"id" db:"id"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	GroupClaim string    `json:"group_claim" db:"group_claim"`
	GroupValue string    `json:"group_value" db:"group_value"`
	CategoryID string    `json:"category_id" db:"category_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
