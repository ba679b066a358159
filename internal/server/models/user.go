package models

import "time"

type User struct {
	ID              string    `db:"id" json:"id"`
	Email           string    `db:"email" json:"email"`
	PasswordHash    string    `db:"password_hash" json:"-"`
	IsEmailVerified bool      `db:"is_email_verified" json:"is_email_verified"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
