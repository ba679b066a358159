package models

import "time"

// Role, UserRole and ExternalAuthProvider mirror schema tables that
// currently carry no behavior.

type Role struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

type UserRole struct {
	UserID string `db:"user_id"`
	RoleID int64  `db:"role_id"`
}

type ExternalAuthProvider struct {
	ID             int64     `db:"id"`
	UserID         string    `db:"user_id"`
	Provider       string    `db:"provider"`
	ProviderUserID string    `db:"provider_user_id"`
	CreatedAt      time.Time `db:"created_at"`
}
