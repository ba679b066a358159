package models

import "time"

// Module is a named sub-application users can be granted access to.
// Name is the external key carried in tokens and URLs.
type Module struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Grant links a user to a module. At most one exists per pair.
type Grant struct {
	UserID       string    `db:"user_id"`
	ModuleID     string    `db:"module_id"`
	RegisteredAt time.Time `db:"registered_at"`
	IsActive     bool      `db:"is_active"`
}
