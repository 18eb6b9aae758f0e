// Package sqlitedialect opens the default, embeddable SQL Adapter backend:
// pure-Go WASM SQLite via ncruces/go-sqlite3. Connection string
// construction and the single-writer pragma set are lifted directly from
// internal/storage/convex/sqlite.go's NewSQLitePersistence.
package sqlitedialect

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "sqlite3" driver used by sql.Open below.
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/cenkalti/backoff/v4"
	"github.com/latticedb/lattice/internal/sqladapter"
)

// Open opens a SQLite-backed Adapter at dbPath, applying the same WAL /
// busy-timeout / foreign-key pragmas and single-connection pool sizing the
// teacher's persistence layer uses, since SQLite only supports one writer
// at a time.
func Open(ctx context.Context, dbPath string) (sqladapter.Adapter, error) {
	connStr := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath,
	)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("sqlitedialect: open %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, bo); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitedialect: ping %s: %w", dbPath, err)
	}

	return sqladapter.New(db, sqladapter.DialectSQLite), nil
}
