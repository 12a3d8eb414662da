package model

import "time"

// Category is a named routing class grouping interchangeable models, e.g.
// "fast" or "coding". PreferredModelID, when set and loaded, wins model
// election for requests that only name the category.
type Category struct {
	ID               string    `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	PreferredModelID *string   `json:"preferred_model_id,omitempty" db:"preferred_model_id"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}
