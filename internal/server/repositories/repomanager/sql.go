// Package repomanager provides a concrete RepositoryManager for SQL storage,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/modauth/internal/dbx"
	"github.com/dmitrijs2005/modauth/internal/server/migrations"
	"github.com/dmitrijs2005/modauth/internal/server/repositories/grants"
	"github.com/dmitrijs2005/modauth/internal/server/repositories/modules"
	"github.com/dmitrijs2005/modauth/internal/server/repositories/users"
	"github.com/pressly/goose/v3"
)

// SQLRepositoryManager vends SQL-backed repository implementations
// and exposes a schema migration hook for its dialect.
type SQLRepositoryManager struct {
	dialect dbx.Dialect
}

// Users returns a users.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewSQLRepository(db)
}

// Modules returns a modules.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Modules(db dbx.DBTX) modules.Repository {
	return modules.NewSQLRepository(db)
}

// Grants returns a grants.Repository bound to the provided DBTX.
func (m *SQLRepositoryManager) Grants(db dbx.DBTX) grants.Repository {
	return grants.NewSQLRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *SQLRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(string(m.dialect)); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewSQLRepositoryManager constructs a RepositoryManager for the given dialect.
func NewSQLRepositoryManager(dialect dbx.Dialect) (RepositoryManager, error) {
	switch dialect {
	case dbx.DialectPostgres, dbx.DialectSQLite:
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	return &SQLRepositoryManager{dialect: dialect}, nil
}
