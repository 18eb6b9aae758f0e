// Package doltdialect opens an embedded-Dolt-backed Adapter using
// dolthub/driver, the versioned/branchable SQL backend suited to
// audit-friendly Lattice deployments that want commit history over the
// metadata and index tables. Retry-on-connect mirrors
// internal/storage/dolt/store.go's newServerRetryBackoff.
package doltdialect

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/dolthub/driver"
	"github.com/latticedb/lattice/internal/sqladapter"
)

// Config describes an embedded Dolt database directory and the logical
// database name within it.
type Config struct {
	DataDir  string
	Database string
}

func (c Config) dsn() string {
	return fmt.Sprintf("file://%s?commitname=lattice&commitemail=lattice@localhost&database=%s", c.DataDir, c.Database)
}

// Open opens a Dolt-backed Adapter, retrying the initial connection since
// dolthub/driver lazily initializes the embedded storage engine on first
// use and that initialization can briefly fail under concurrent startup.
func Open(ctx context.Context, cfg Config) (sqladapter.Adapter, error) {
	db, err := sql.Open("dolt", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("doltdialect: open: %w", err)
	}
	// Dolt's embedded engine is single-process; serialize access the same
	// way the SQLite dialect does.
	db.SetMaxOpenConns(1)

	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, bo); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("doltdialect: ping %s: %w", cfg.DataDir, err)
	}

	return sqladapter.New(db, sqladapter.DialectDolt), nil
}
