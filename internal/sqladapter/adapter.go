// Package sqladapter defines the external SQL backend interface Lattice
// runs its metadata repository and index engine against, plus the
// identifier-quoting and DDL-naming conventions each dialect must follow
// so dynamically allocated index tables never interpolate untrusted
// values into SQL text.
//
// Grounded on internal/storage/convex/sqlite.go's use of database/sql
// with prepared statements and transactions; generalized here into an
// interface so the sqlite/mysql/dolt dialects can share one adapter
// surface, the way the wider pack's storage layer abstracts over
// multiple backends behind one interface.
package sqladapter

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
)

// Adapter is the external SQL backend Lattice persists metadata and
// indexes through. Implementations wrap a *sql.DB configured for a
// specific dialect (SQLite, MySQL, or Dolt-over-MySQL-protocol).
type Adapter interface {
	// Execute runs a statement that does not return rows.
	Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

	// Query runs a statement that returns rows.
	Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)

	// ExecuteTransaction runs fn inside a single transaction, committing
	// on a nil return and rolling back otherwise.
	ExecuteTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error

	// Dialect identifies which SQL dialect this adapter speaks, used to
	// select the right DDL/identifier-quoting rules.
	Dialect() Dialect

	// Ping verifies connectivity, used by the health endpoint.
	Ping(ctx context.Context) error

	// Close releases the underlying connection pool.
	Close() error
}

// Dialect names one of the supported SQL backends.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
	DialectDolt   Dialect = "dolt"
)

// identifierPattern restricts any table or column name built dynamically
// (table names allocated by internal/index, collection-scoped prefixes)
// to a safe, fixed charset before it is ever concatenated into SQL text.
// This is the one place string interpolation of an identifier is
// permitted; everything else goes through parameterized queries.
var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// QuoteIdentifier validates name against identifierPattern and wraps it
// in the dialect's identifier-quote character. It panics on an invalid
// name: callers must only pass names produced by internal/ids or a
// fixed, compiled-in column list, never raw user input.
func QuoteIdentifier(d Dialect, name string) string {
	if !identifierPattern.MatchString(name) {
		panic(fmt.Sprintf("sqladapter: refusing to quote unsafe identifier %q", name))
	}
	switch d {
	case DialectMySQL, DialectDolt:
		return "`" + name + "`"
	default:
		return `"` + name + `"`
	}
}

// NowExpr returns the dialect's SQL expression for the current UTC
// timestamp, used when a column default is filled in by the database
// rather than the application.
func NowExpr(d Dialect) string {
	switch d {
	case DialectMySQL, DialectDolt:
		return "UTC_TIMESTAMP(6)"
	default:
		return "strftime('%Y-%m-%dT%H:%M:%fZ','now')"
	}
}

// sqlAdapter is the shared implementation backing every dialect: once a
// *sql.DB is open and configured, the Adapter surface is identical
// regardless of which driver produced it.
type sqlAdapter struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an already-opened *sql.DB as an Adapter for the given
// dialect. Dialect-specific packages (sqlitedialect, mysqldialect,
// doltdialect) are responsible for building the DSN and opening db.
func New(db *sql.DB, dialect Dialect) Adapter {
	return &sqlAdapter{db: db, dialect: dialect}
}

func (a *sqlAdapter) Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqladapter: execute: %w", err)
	}
	return res, nil
}

func (a *sqlAdapter) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqladapter: query: %w", err)
	}
	return rows, nil
}

func (a *sqlAdapter) ExecuteTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqladapter: begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("sqladapter: transaction failed (%v) and rollback failed: %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqladapter: commit transaction: %w", err)
	}
	return nil
}

func (a *sqlAdapter) Dialect() Dialect {
	return a.dialect
}

func (a *sqlAdapter) Ping(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqladapter: ping: %w", err)
	}
	return nil
}

func (a *sqlAdapter) Close() error {
	return a.db.Close()
}
