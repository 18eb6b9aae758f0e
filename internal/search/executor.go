package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/latticedb/lattice/internal/blobstore"
	"github.com/latticedb/lattice/internal/model"
	"github.com/latticedb/lattice/internal/sqladapter"
)

// DocumentRepository is the subset of metadata.Repository the executor
// needs to hydrate documents once candidate IDs are known.
type DocumentRepository interface {
	GetDocument(ctx context.Context, collectionID, documentID string) (model.Document, error)
}

const (
	defaultMaxResults = 100
	maxMaxResults     = 1000
)

// Execute runs q against the given collection, returning the same
// envelope shape enumeration uses.
func Execute(ctx context.Context, adapter sqladapter.Adapter, repo Repository, docs DocumentRepository, blobs blobstore.Store, q model.SearchQuery) (model.SearchResult, error) {
	start := time.Now()

	mappings, err := repo.ListIndexTableMappings(ctx)
	if err != nil {
		return model.SearchResult{}, fmt.Errorf("search: list index mappings: %w", err)
	}

	var intersects []string
	var args []interface{}

	for _, f := range q.Filters {
		cf := compileFilter(adapter.Dialect(), q.CollectionID, mappings, f)
		intersects = append(intersects, cf.subquery)
		args = append(args, cf.args...)
	}
	if len(q.Labels) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(q.Labels)), ",")
		sub := fmt.Sprintf("SELECT document_id FROM labels WHERE collection_id = ? AND label IN (%s) GROUP BY document_id HAVING COUNT(DISTINCT label) = ?", placeholders)
		intersects = append(intersects, sub)
		args = append(args, q.CollectionID)
		for _, l := range q.Labels {
			args = append(args, l)
		}
		args = append(args, len(q.Labels))
	}
	for k, v := range q.Tags {
		intersects = append(intersects, "SELECT document_id FROM tags WHERE collection_id = ? AND tag_key = ? AND tag_value = ?")
		args = append(args, q.CollectionID, k, v)
	}

	// Every per-filter subquery needs the collectionid argument bound
	// ahead of its own predicate args; compileFilter already did that for
	// each of its UNION members, and args was appended in subquery order,
	// so combineIntersects passes it through unchanged.
	finalArgs, finalWhere := combineIntersects(intersects, args)

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

	listQuery := fmt.Sprintf(
		`SELECT id, collection_id, schema_id, name, content_hash, content_length, created_utc, last_update_utc
		 FROM documents WHERE collection_id = ? %s ORDER BY %s %s LIMIT ? OFFSET ?`,
		finalWhere, orderCol, orderDir,
	)
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM documents WHERE collection_id = ? %s`, finalWhere)

	listArgs := append(append([]interface{}{q.CollectionID}, finalArgs...), maxResults, skip)
	countArgs := append([]interface{}{q.CollectionID}, finalArgs...)

	total, err := scalarCount(ctx, adapter, countQuery, countArgs)
	if err != nil {
		return model.SearchResult{}, fmt.Errorf("search: count: %w", err)
	}

	rows, err := adapter.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return model.SearchResult{}, fmt.Errorf("search: list: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id, collID, schID, contentHash, createdStr, updatedStr string
		var name sql.NullString
		var contentLen int64
		if err := rows.Scan(&id, &collID, &schID, &name, &contentHash, &contentLen, &createdStr, &updatedStr); err != nil {
			return model.SearchResult{}, fmt.Errorf("search: scan document row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return model.SearchResult{}, fmt.Errorf("search: iterate document rows: %w", err)
	}

	documents, err := hydrate(ctx, docs, blobs, q.CollectionID, ids, q.IncludeContent)
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

// combineIntersects joins every filter/label/tag subquery with INTERSECT
// so the final candidate set satisfies all of them (AND semantics). args
// was already built in the same left-to-right order the subqueries were
// appended, so no reordering is needed here.
func combineIntersects(intersects []string, args []interface{}) ([]interface{}, string) {
	if len(intersects) == 0 {
		return nil, ""
	}
	where := " AND id IN (" + strings.Join(intersects, " INTERSECT ") + ")"
	return args, where
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

// hydrate loads full Document records (labels, tags, and optionally raw
// content) for each candidate ID. Content hydration fans out across
// errgroup since each blob read is an independent I/O call.
func hydrate(ctx context.Context, docs DocumentRepository, blobs blobstore.Store, collectionID string, ids []string, includeContent bool) ([]model.Document, error) {
	documents := make([]model.Document, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			d, err := docs.GetDocument(gctx, collectionID, id)
			if err != nil {
				return fmt.Errorf("search: hydrate document %s: %w", id, err)
			}
			if includeContent && blobs != nil {
				body, err := blobs.Get(gctx, collectionID, id)
				if err != nil {
					return fmt.Errorf("search: hydrate content for %s: %w", id, err)
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
