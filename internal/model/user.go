package model

import "time"

// User is provisioned lazily on first successful login and never deleted;
// usage history references it. Uniqueness is (provider_id, subject).
type User struct {
	ID          string    `json:"id" db:"id"`
	ProviderID  string    `json:"provider_id" db:"provider_id"`
	Subject     string    `json:"subject" db:"subject"`
	Email       string    `json:"email" db:"email"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Admin       bool      `json:"admin" db:"admin"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
