// Package migrations holds the goose migrations for the auth schema.
// The SQL is kept portable between PostgreSQL and SQLite.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
