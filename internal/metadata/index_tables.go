package metadata

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/latticedb/lattice/internal/errs"
	"github.com/latticedb/lattice/internal/model"
)

// GetIndexTableMapping looks up the physical table allocated for path,
// Lattice's one mapping key per spec.md §3's Invariant 3. Returns
// errs.ErrNotFound if none exists yet.
func (r *Repository) GetIndexTableMapping(ctx context.Context, path string) (model.IndexTableMapping, error) {
	rows, err := r.adapter.Query(ctx, GetIndexTableMappingQuery, path)
	if err != nil {
		return model.IndexTableMapping{}, fmt.Errorf("metadata: get index table mapping for %s: %w", path, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return model.IndexTableMapping{}, fmt.Errorf("metadata: scan index table mapping: %w", err)
		}
		return model.IndexTableMapping{}, errs.ErrNotFound
	}
	var m model.IndexTableMapping
	var dt string
	if err := rows.Scan(&m.ID, &m.Path, &dt, &m.TableName); err != nil {
		return model.IndexTableMapping{}, fmt.Errorf("metadata: scan index table mapping row: %w", err)
	}
	m.DataType = model.LeafType(dt)
	return m, nil
}

// CreateIndexTableMapping registers a newly allocated table. m.DataType
// records the type of the leaf that first caused path to be indexed;
// it is informational only (the per-table schema itself has no type
// column, per spec.md §4.5 — every leaf at path shares this one table
// regardless of type, and a later leaf with a different type does not
// get a table of its own). Returns errs.ErrConflict if a concurrent
// allocator won the race for this path or table name first.
func (r *Repository) CreateIndexTableMapping(ctx context.Context, m model.IndexTableMapping) error {
	_, err := r.adapter.Execute(ctx, InsertIndexTableMappingQuery, m.ID, m.Path, string(m.DataType), m.TableName)
	if err != nil {
		return fmt.Errorf("metadata: create index table mapping %s: %w: %v", m.TableName, errs.ErrConflict, err)
	}
	return nil
}

func (r *Repository) ListIndexTableMappings(ctx context.Context) ([]model.IndexTableMapping, error) {
	rows, err := r.adapter.Query(ctx, ListIndexTableMappingsQuery)
	if err != nil {
		return nil, fmt.Errorf("metadata: list index table mappings: %w", err)
	}
	defer rows.Close()

	var out []model.IndexTableMapping
	for rows.Next() {
		var m model.IndexTableMapping
		var dt string
		if err := rows.Scan(&m.ID, &m.Path, &dt, &m.TableName); err != nil {
			return nil, fmt.Errorf("metadata: scan index table mapping: %w", err)
		}
		m.DataType = model.LeafType(dt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteIndexTableMapping(ctx context.Context, tableName string) error {
	if _, err := r.adapter.Execute(ctx, DeleteIndexTableMappingQuery, tableName); err != nil {
		return fmt.Errorf("metadata: delete index table mapping %s: %w", tableName, err)
	}
	return nil
}

// NextIndexTableCounter atomically advances and returns the process-wide
// monotonic counter used to name newly allocated index tables.
func (r *Repository) NextIndexTableCounter(ctx context.Context) (int64, error) {
	var next int64
	err := r.adapter.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT next_value FROM index_table_counter WHERE id = 1`)
		var current int64
		if err := row.Scan(&current); err != nil {
			if err == sql.ErrNoRows {
				current = 0
				if _, err := tx.ExecContext(ctx, `INSERT INTO index_table_counter (id, next_value) VALUES (1, 0)`); err != nil {
					return fmt.Errorf("metadata: seed index table counter: %w", err)
				}
			} else {
				return fmt.Errorf("metadata: read index table counter: %w", err)
			}
		}
		next = current + 1
		if _, err := tx.ExecContext(ctx, `UPDATE index_table_counter SET next_value = ? WHERE id = 1`, next); err != nil {
			return fmt.Errorf("metadata: advance index table counter: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// ListDocumentIDsOrderedByCreation returns every document ID in a
// collection, ordered by createdUtc, for index rebuilds.
func (r *Repository) ListDocumentIDsOrderedByCreation(ctx context.Context, collectionID string) ([]string, error) {
	rows, err := r.adapter.Query(ctx, `SELECT id FROM documents WHERE collection_id = ? ORDER BY created_utc ASC`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("metadata: list document ids for %s: %w", collectionID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("metadata: scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
