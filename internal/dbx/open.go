package dbx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-retry"

	// database drivers
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect names the SQL flavour behind a connection. Values match goose
// dialect names.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

const sqlitePrefix = "sqlite:"

// Open picks a driver from the DSN: "sqlite:<path>" opens modernc SQLite,
// anything else goes to pgx. No connection is made yet.
func Open(dsn string) (*sqlx.DB, Dialect, error) {
	if path, ok := strings.CutPrefix(dsn, sqlitePrefix); ok {
		if path == "" {
			return nil, "", fmt.Errorf("empty sqlite path")
		}
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		db, err := sqlx.Open("sqlite", path+sep+"_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
		if err != nil {
			return nil, "", fmt.Errorf("db open error: %w", err)
		}
		// one writer at a time
		db.SetMaxOpenConns(1)
		return db, DialectSQLite, nil
	}

	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, "", fmt.Errorf("db open error: %w", err)
	}
	return db, DialectPostgres, nil
}

// PingWithRetry pings db up to attempts times, waiting delay between tries.
func PingWithRetry(ctx context.Context, db *sqlx.DB, attempts int, delay time.Duration, onRetry func(attempt int, err error)) error {
	if attempts < 1 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(delay))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.PingContext(ctx); err != nil {
			if onRetry != nil && attempt < attempts {
				onRetry(attempt, err)
			}
			return retry.RetryableError(fmt.Errorf("db ping: %w", err))
		}
		return nil
	})
}
