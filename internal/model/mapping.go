package model

import "time"

type EntityType string

const (
	EntityUser     EntityType = "user"
	EntityCourse   EntityType = "course"
	EntityCategory EntityType = "category"
)

// Mapping links a local entity id to its SIS-side id.
type Mapping struct {
	ID         int64      `json:"id" db:"id"`
	EntityType EntityType `json:"entity_type" db:"entity_type"`
	LocalID    int64      `json:"local_id" db:"local_id"`
	RemoteID   string     `json:"remote_id" db:"remote_id"`
	RemoteCode *string    `json:"remote_code,omitempty" db:"remote_code"`
	Active     bool       `json:"active" db:"active"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}
