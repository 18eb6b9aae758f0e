// Package enumerate is the Enumeration Executor: a plain paged scan over
// the documents table, optionally scoped to one collection, returning
// the same envelope shape internal/search does.
//
// Grounded on internal/storage/convex/schema.go's DocumentsByTableQuery,
// which parameterizes ORDER BY direction via string substitution
// restricted to a fixed enum of column names rather than ever
// interpolating caller-supplied text.
package enumerate

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/latticedb/lattice/internal/blobstore"
	"github.com/latticedb/lattice/internal/model"
	"github.com/latticedb/lattice/internal/sqladapter"
)

const (
	defaultMaxResults = 100
	maxMaxResults     = 1000
)

// DocumentRepository is the subset of metadata access enumeration needs
// to hydrate full Document rows once candidate IDs are known.
type DocumentRepository interface {
	GetDocument(ctx context.Context, collectionID, documentID string) (model.Document, error)
}

// Execute runs q, returning the matching page of documents.
func Execute(ctx context.Context, adapter sqladapter.Adapter, docs DocumentRepository, blobs blobstore.Store, q model.EnumerationQuery) (model.SearchResult, error) {
	start := time.Now()

	maxResults := defaultMaxResults
	if q.MaxResults != nil {
		maxResults = *q.MaxResults
	}
	if maxResults > maxMaxResults {
		maxResults = maxMaxResults
	}
	skip := 0
	if q.Skip != nil {
		skip = *q.Skip
	}

	orderCol, orderDir := orderingSQL(q.Ordering)

	where := ""
	var args []interface{}
	if q.CollectionID != nil {
		where = "WHERE collection_id = ?"
		args = append(args, *q.CollectionID)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM documents %s", where)
	total, err := scalarCount(ctx, adapter, countQuery, args)
	if err != nil {
		return model.SearchResult{}, fmt.Errorf("enumerate: count: %w", err)
	}

	listQuery := fmt.Sprintf(
		"SELECT id, collection_id FROM documents %s ORDER BY %s %s LIMIT ? OFFSET ?",
		where, orderCol, orderDir,
	)
	listArgs := append(append([]interface{}{}, args...), maxResults, skip)

	rows, err := adapter.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return model.SearchResult{}, fmt.Errorf("enumerate: list: %w", err)
	}
	defer rows.Close()

	var pairs []docRef
	for rows.Next() {
		var p docRef
		if err := rows.Scan(&p.id, &p.collectionID); err != nil {
			return model.SearchResult{}, fmt.Errorf("enumerate: scan document row: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return model.SearchResult{}, fmt.Errorf("enumerate: iterate document rows: %w", err)
	}

	documents, err := hydrate(ctx, docs, blobs, pairs, q.IncludeContent)
	if err != nil {
		return model.SearchResult{}, err
	}

	remaining := total - int64(skip) - int64(len(documents))
	if remaining < 0 {
		remaining = 0
	}

	return model.SearchResult{
		Success:          true,
		Timestamp:        model.ResultTimestamp{Start: start, End: time.Now()},
		MaxResults:       maxResults,
		EndOfResults:     remaining == 0,
		TotalRecords:     total,
		RecordsRemaining: remaining,
		Documents:        documents,
	}, nil
}

func orderingSQL(o *model.Ordering) (string, string) {
	col := "created_utc"
	dir := "DESC"
	if o != nil {
		switch o.Column {
		case model.OrderByLastUpdateUtc:
			col = "last_update_utc"
		case model.OrderByName:
			col = "name"
		default:
			col = "created_utc"
		}
		if o.Direction == model.Ascending {
			dir = "ASC"
		}
	}
	return col, dir
}

func scalarCount(ctx context.Context, adapter sqladapter.Adapter, query string, args []interface{}) (int64, error) {
	rows, err := adapter.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, rows.Err()
	}
	var n int64
	if err := rows.Scan(&n); err != nil {
		return 0, err
	}
	return n, rows.Err()
}

// docRef is one row's identity, enough to hydrate the full Document.
type docRef struct{ id, collectionID string }

func hydrate(ctx context.Context, docs DocumentRepository, blobs blobstore.Store, pairs []docRef, includeContent bool) ([]model.Document, error) {
	documents := make([]model.Document, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i, p := range pairs {
		i, p := i, p
		g.Go(func() error {
			d, err := docs.GetDocument(gctx, p.collectionID, p.id)
			if err != nil {
				return fmt.Errorf("enumerate: hydrate document %s: %w", p.id, err)
			}
			if includeContent && blobs != nil {
				body, err := blobs.Get(gctx, p.collectionID, p.id)
				if err != nil {
					return fmt.Errorf("enumerate: hydrate content for %s: %w", p.id, err)
				}
				d.Content = body
			}
			documents[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return documents, nil
}
