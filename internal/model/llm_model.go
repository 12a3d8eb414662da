package model

import "time"

// Model is a concrete backend-capable model. Loaded, Port and the associated
// container secret are mutated by container registration; LastUsedAt is
// touched best-effort on successful use and breaks ties during election.
type Model struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	CategoryID *string    `json:"category_id,omitempty" db:"category_id"`
	Loaded     bool       `json:"loaded" db:"loaded"`
	Port       *int       `json:"port,omitempty" db:"port"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// ContainerSecret is the per-restart credential material for a loaded model's
// backend container: the sandbox UID the process runs as, the API key the
// gateway presents to the backend (encrypted at rest), and the backend's
// advertised parallel-slot capacity. One row per model; rows survive gateway
// restarts and are the authoritative view during recovery. Stale marks
// secrets whose backend was unreachable at recovery time.
type ContainerSecret struct {
	ModelID   string    `json:"model_id" db:"model_id"`
	UID       int       `json:"uid" db:"uid"`
	APIKeyEnc string    `json:"-" db:"api_key_enc"`
	Slots     int       `json:"slots" db:"slots"`
	Stale     bool      `json:"stale" db:"stale"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
