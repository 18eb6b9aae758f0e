package index

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/latticedb/lattice/internal/jsonflat"
	"github.com/latticedb/lattice/internal/model"
	"github.com/latticedb/lattice/internal/sqladapter"
)

// DocumentBodyFetcher retrieves a document's raw JSON body by ID, used
// during rebuild to reflatten from the blob store rather than trusting
// any cached flattening.
type DocumentBodyFetcher interface {
	Get(ctx context.Context, collectionID, documentID string) ([]byte, error)
}

// RebuildOptions configures one rebuild pass.
type RebuildOptions struct {
	CollectionID      string
	IndexingMode      model.IndexingMode
	IndexedFields     []string
	DropUnusedIndexes bool
	Concurrency       int
	OnProgress        func(model.IndexRebuildProgress)
}

// Rebuild snapshots a collection's current indexingMode/indexedFields,
// deletes its existing index rows, and re-scans every document in
// createdUtc order, reflattening each from the blob store and
// re-inserting index rows under the current configuration. Document
// reflattening runs concurrently via errgroup, bounded by
// opts.Concurrency, since flattening and re-insertion per document are
// independent once the existing rows are cleared.
func (e *Engine) Rebuild(ctx context.Context, opts RebuildOptions, docIDs []string, fetch DocumentBodyFetcher) (model.IndexRebuildResult, error) {
	start := time.Now()
	result := model.IndexRebuildResult{}

	if err := e.DeleteForCollection(ctx, opts.CollectionID); err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.DurationMs = time.Since(start).Milliseconds()
		return result, fmt.Errorf("index: rebuild: clear existing rows: %w", err)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	var processed, valuesInserted int64
	total := int64(len(docIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var errMu atomicErrors

	for _, docID := range docIDs {
		docID := docID
		g.Go(func() error {
			body, err := fetch.Get(gctx, opts.CollectionID, docID)
			if err != nil {
				errMu.add(fmt.Sprintf("document %s: %v", docID, err))
				return nil
			}
			leaves, err := jsonflat.FlattenOrdered(body)
			if err != nil {
				errMu.add(fmt.Sprintf("document %s: flatten: %v", docID, err))
				return nil
			}

			inserted, err := e.insertForDocument(gctx, opts.CollectionID, docID, opts.IndexingMode, opts.IndexedFields, leaves)
			if err != nil {
				errMu.add(fmt.Sprintf("document %s: index: %v", docID, err))
				return nil
			}
			atomic.AddInt64(&valuesInserted, inserted)

			n := atomic.AddInt64(&processed, 1)
			if opts.OnProgress != nil {
				opts.OnProgress(model.IndexRebuildProgress{
					DocumentsProcessed: n,
					TotalDocuments:     total,
					ValuesInserted:     atomic.LoadInt64(&valuesInserted),
				})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	result.DocumentsProcessed = atomic.LoadInt64(&processed)
	result.ValuesInserted = atomic.LoadInt64(&valuesInserted)
	result.Errors = append(result.Errors, errMu.all()...)
	result.DurationMs = time.Since(start).Milliseconds()
	result.Success = len(result.Errors) == 0

	mappings, err := e.repo.ListIndexTableMappings(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}
	// IndexesCreated lists every mapped index table, process-wide, as of
	// the end of the re-insertion pass: tables serving other collections
	// and tables that dropUnusedTables removes below are included, and it
	// is not limited to tables allocated during this pass.
	for _, m := range mappings {
		result.IndexesCreated = append(result.IndexesCreated, m.TableName)
	}

	if opts.DropUnusedIndexes {
		dropped, err := e.dropUnusedTables(ctx, mappings)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
		result.IndexesDropped = dropped
	}

	return result, nil
}

// dropUnusedTables removes the physical table and mapping of every
// allocated index table that holds no rows at all, from any collection,
// after this rebuild pass. Whether the table's path is still named in
// some collection's indexed fields is not checked: an empty table is
// dropped either way.
func (e *Engine) dropUnusedTables(ctx context.Context, mappings []model.IndexTableMapping) ([]string, error) {
	var dropped []string
	for _, m := range mappings {
		rows, err := e.adapter.Query(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", sqladapter.QuoteIdentifier(e.adapter.Dialect(), m.TableName)))
		if err != nil {
			return dropped, fmt.Errorf("index: count rows in %s: %w", m.TableName, err)
		}
		var count int64
		if rows.Next() {
			if err := rows.Scan(&count); err != nil {
				rows.Close()
				return dropped, fmt.Errorf("index: scan row count for %s: %w", m.TableName, err)
			}
		}
		rows.Close()

		if count > 0 {
			continue
		}
		if _, err := e.adapter.Execute(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", sqladapter.QuoteIdentifier(e.adapter.Dialect(), m.TableName))); err != nil {
			return dropped, fmt.Errorf("index: drop table %s: %w", m.TableName, err)
		}
		if err := e.repo.DeleteIndexTableMapping(ctx, m.TableName); err != nil {
			return dropped, fmt.Errorf("index: delete mapping for %s: %w", m.TableName, err)
		}
		dropped = append(dropped, m.TableName)
	}
	return dropped, nil
}

// atomicErrors collects error strings from concurrent rebuild workers
// under a mutex; errgroup's own error channel only keeps the first
// error, but a rebuild wants every document's failure reported.
type atomicErrors struct {
	mu   sync.Mutex
	msgs []string
}

func (a *atomicErrors) add(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
}

func (a *atomicErrors) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.msgs...)
}

// insertForDocument opens its own short transaction per document during
// rebuild, unlike InsertForDocumentTx which composes into the ingest
// orchestrator's larger transaction.
func (e *Engine) insertForDocument(ctx context.Context, collectionID, documentID string, mode model.IndexingMode, indexedFields []string, leaves []jsonflat.Leaf) (int64, error) {
	var inserted int64
	err := e.adapter.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		n, err := e.InsertForDocumentTx(ctx, tx, collectionID, documentID, mode, indexedFields, leaves)
		inserted = n
		return err
	})
	return inserted, err
}
