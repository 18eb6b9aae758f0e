// Package index is the Index Engine: allocates one physical SQL table
// per distinct leaf path (shared by every data type seen at that path),
// inserts/deletes rows into
// those tables as documents are ingested or removed, and supports full
// rebuilds.
//
// Table allocation is grounded on
// internal/storage/sqlite/metadata_index.go's RebuildMetadataIndex
// (truncate-then-rescan shape) and internal/storage/convex/indexes.go's
// IndexGenerator (stateless per-value key derivation, generalized here
// into a table-per-path allocator). Allocation races are resolved with
// cenkalti/backoff/v4, grounded on internal/storage/dolt/store.go's
// retry-on-lock pattern.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/latticedb/lattice/internal/blobstore"
	"github.com/latticedb/lattice/internal/errs"
	"github.com/latticedb/lattice/internal/ids"
	"github.com/latticedb/lattice/internal/jsonflat"
	"github.com/latticedb/lattice/internal/model"
	"github.com/latticedb/lattice/internal/sqladapter"
)

// tableDDLTemplate is instantiated per allocated index table. id is a
// surrogate key; documentid and value carry secondary indexes
// since both are queried independently by the search planner.
const tableDDLTemplate = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	documentid TEXT NOT NULL,
	collectionid TEXT NOT NULL,
	value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_value_idx ON %[1]s(value);
CREATE INDEX IF NOT EXISTS %[1]s_document_idx ON %[1]s(documentid);
`

// Repository is the subset of metadata.Repository the index engine
// depends on, declared narrowly here so this package's tests can fake it
// without standing up a full metadata.Repository.
type Repository interface {
	GetIndexTableMapping(ctx context.Context, path string) (model.IndexTableMapping, error)
	CreateIndexTableMapping(ctx context.Context, m model.IndexTableMapping) error
	ListIndexTableMappings(ctx context.Context) ([]model.IndexTableMapping, error)
	DeleteIndexTableMapping(ctx context.Context, tableName string) error
	NextIndexTableCounter(ctx context.Context) (int64, error)
	ListIndexedFields(ctx context.Context, collectionID string) ([]string, error)
	CountDocuments(ctx context.Context, collectionID string) (int64, error)
}

// DocumentLister is the subset of metadata access needed to rescan every
// document in a collection during a rebuild.
type DocumentLister interface {
	ListDocumentIDsOrderedByCreation(ctx context.Context, collectionID string) ([]string, error)
}

// Engine is the Index Engine.
type Engine struct {
	adapter sqladapter.Adapter
	repo    Repository
	blobs   blobstore.Store

	mu sync.Mutex // serializes table allocation process-wide
}

// New constructs an Engine.
func New(adapter sqladapter.Adapter, repo Repository, blobs blobstore.Store) *Engine {
	return &Engine{adapter: adapter, repo: repo, blobs: blobs}
}

// EnsureTable returns the physical table backing path, allocating and
// creating it if this is the first time the path has been seen. Every
// leaf at path shares this one table regardless of its data type — the
// mapping key is the path alone (spec.md §3 Invariant 3) — so a path
// already seen with one type reuses its existing table for a later,
// differently-typed leaf rather than allocating a second one.
// Allocation is serialized process-wide via mu, and the create step is
// retried with backoff since two processes racing on the same
// brand-new path will both attempt the same CREATE TABLE.
func (e *Engine) EnsureTable(ctx context.Context, path string, dataType model.LeafType) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	mapping, err := e.repo.GetIndexTableMapping(ctx, path)
	if err == nil {
		return mapping.TableName, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return "", fmt.Errorf("index: lookup mapping for %s: %w", path, err)
	}

	var tableName string
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	err = backoff.Retry(func() error {
		counter, err := e.repo.NextIndexTableCounter(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("index: allocate counter: %w", err))
		}
		name := tableNameFor(counter)

		if _, err := e.adapter.Execute(ctx, fmt.Sprintf(tableDDLTemplate, sqladapter.QuoteIdentifier(e.adapter.Dialect(), name))); err != nil {
			// A concurrent allocator may have already created a table
			// under this exact name; retry with a fresh counter value.
			return err
		}

		m := model.IndexTableMapping{ID: ids.New(ids.PrefixIndexTable), Path: path, DataType: dataType, TableName: name}
		if err := e.repo.CreateIndexTableMapping(ctx, m); err != nil {
			// Another allocator registered the mapping for this path
			// first; look it up and stop retrying.
			if existing, getErr := e.repo.GetIndexTableMapping(ctx, path); getErr == nil {
				tableName = existing.TableName
				return nil
			}
			return err
		}
		tableName = name
		return nil
	}, bo)
	if err != nil {
		return "", fmt.Errorf("index: allocate table for %s: %w", path, err)
	}
	return tableName, nil
}

// tableNameFor renders a monotonic counter as "idx_<base32>", matching
// spec's table-naming rule: the physical name never embeds the user's
// JSON path, only an opaque allocation counter.
func tableNameFor(counter int64) string {
	return fmt.Sprintf("%s_%s", ids.PrefixIndexTable, base32Encode(counter))
}

const base32Alphabet = "abcdefghijklmnopqrstuvwxyz234567"

func base32Encode(n int64) string {
	if n == 0 {
		return "a"
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{base32Alphabet[n%32]}, buf...)
		n /= 32
	}
	return string(buf)
}

// shouldIndex reports whether path is indexed under the collection's
// indexing mode and declared field list.
func shouldIndex(mode model.IndexingMode, indexedFields map[string]bool, path string) bool {
	switch mode {
	case model.IndexingAll:
		return true
	case model.IndexingSelective:
		return indexedFields[path]
	default:
		return false
	}
}

// InsertForDocumentTx inserts one row per indexable leaf for a document,
// within an already-open transaction (the same transaction the ingest
// orchestrator uses to write the document and blob metadata).
func (e *Engine) InsertForDocumentTx(ctx context.Context, tx *sql.Tx, collectionID, documentID string, mode model.IndexingMode, indexedFields []string, leaves []jsonflat.Leaf) (int64, error) {
	fieldSet := make(map[string]bool, len(indexedFields))
	for _, f := range indexedFields {
		fieldSet[f] = true
	}

	var inserted int64
	for _, leaf := range leaves {
		if !shouldIndex(mode, fieldSet, leaf.Path) {
			continue
		}
		table, err := e.EnsureTable(ctx, leaf.Path, leaf.DataType)
		if err != nil {
			return inserted, err
		}
		quoted := sqladapter.QuoteIdentifier(e.adapter.Dialect(), table)
		insertSQL := fmt.Sprintf("INSERT INTO %s (documentid, collectionid, value) VALUES (?, ?, ?)", quoted)
		if _, err := tx.ExecContext(ctx, insertSQL, documentID, collectionID, leaf.Encoded); err != nil {
			return inserted, fmt.Errorf("index: insert row into %s: %w", table, err)
		}
		inserted++
	}
	return inserted, nil
}

// DeleteForDocument removes every index row for documentID across every
// allocated table. It does not know in advance which tables the
// document's schema touched, so it issues a DELETE against every
// mapping; each is a no-op on tables the document never populated.
func (e *Engine) DeleteForDocument(ctx context.Context, documentID string) error {
	mappings, err := e.repo.ListIndexTableMappings(ctx)
	if err != nil {
		return fmt.Errorf("index: list mappings: %w", err)
	}
	return e.adapter.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		for _, m := range mappings {
			quoted := sqladapter.QuoteIdentifier(e.adapter.Dialect(), m.TableName)
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE documentid = ?", quoted), documentID); err != nil {
				return fmt.Errorf("index: delete from %s: %w", m.TableName, err)
			}
		}
		return nil
	})
}

// DeleteForCollection removes every index row belonging to a collection,
// across every allocated table, used by collection cascade-delete.
func (e *Engine) DeleteForCollection(ctx context.Context, collectionID string) error {
	mappings, err := e.repo.ListIndexTableMappings(ctx)
	if err != nil {
		return fmt.Errorf("index: list mappings: %w", err)
	}
	return e.adapter.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		for _, m := range mappings {
			quoted := sqladapter.QuoteIdentifier(e.adapter.Dialect(), m.TableName)
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE collectionid = ?", quoted), collectionID); err != nil {
				return fmt.Errorf("index: delete from %s: %w", m.TableName, err)
			}
		}
		return nil
	})
}
