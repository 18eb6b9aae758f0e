// Package mysqldialect opens a MySQL-protocol Adapter, used both for real
// MySQL/MariaDB deployments and for an embedded Dolt server speaking the
// MySQL wire protocol. DSN construction and the retry-on-connect loop are
// grounded on the wider pack's internal/storage/connstring.go and
// internal/storage/dolt/store.go's newServerRetryBackoff pattern.
package mysqldialect

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/latticedb/lattice/internal/sqladapter"
)

// Config is the subset of connection parameters needed to build a DSN.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

func (c Config) dsn() string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.MultiStatements = false
	return cfg.FormatDSN()
}

// Open opens a MySQL-protocol Adapter, retrying the initial connection
// with exponential backoff since the backend (particularly an
// in-process Dolt server) may still be starting up.
func Open(ctx context.Context, cfg Config) (sqladapter.Adapter, error) {
	db, err := sql.Open("mysql", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("mysqldialect: open: %w", err)
	}

	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, bo); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysqldialect: ping %s: %w", cfg.Host, err)
	}

	return sqladapter.New(db, sqladapter.DialectMySQL), nil
}
