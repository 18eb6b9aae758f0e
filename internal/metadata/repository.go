package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/latticedb/lattice/internal/errs"
	"github.com/latticedb/lattice/internal/ids"
	"github.com/latticedb/lattice/internal/model"
	"github.com/latticedb/lattice/internal/sqladapter"
)

// Repository is the Metadata Repository: typed CRUD over every table
// that is not a dynamically allocated per-leaf index table (those are
// owned by internal/index).
type Repository struct {
	adapter sqladapter.Adapter
}

// New wraps an Adapter as a Repository and ensures the metadata schema
// exists.
func New(ctx context.Context, adapter sqladapter.Adapter) (*Repository, error) {
	if _, err := adapter.Execute(ctx, DDL); err != nil {
		return nil, fmt.Errorf("metadata: apply schema: %w", err)
	}
	return &Repository{adapter: adapter}, nil
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// -- Collections --------------------------------------------------------

// CreateCollection inserts a new collection row. Returns errs.ErrConflict
// if the name is already taken.
func (r *Repository) CreateCollection(ctx context.Context, c model.Collection) error {
	_, err := r.adapter.Execute(ctx, InsertCollectionQuery,
		c.ID, c.Name, string(c.EnforcementMode), string(c.IndexingMode),
		boolToInt(c.EnableObjectLocking), formatTime(c.CreatedUtc), formatTime(c.LastUpdateUtc))
	if err != nil {
		return fmt.Errorf("metadata: create collection %s: %w: %v", c.Name, errs.ErrConflict, err)
	}
	return nil
}

func (r *Repository) GetCollection(ctx context.Context, id string) (model.Collection, error) {
	rows, err := r.adapter.Query(ctx, GetCollectionQuery, id)
	if err != nil {
		return model.Collection{}, fmt.Errorf("metadata: get collection %s: %w", id, err)
	}
	defer rows.Close()
	return scanOneCollection(rows)
}

func (r *Repository) GetCollectionByName(ctx context.Context, name string) (model.Collection, error) {
	rows, err := r.adapter.Query(ctx, GetCollectionByNameQuery, name)
	if err != nil {
		return model.Collection{}, fmt.Errorf("metadata: get collection by name %s: %w", name, err)
	}
	defer rows.Close()
	return scanOneCollection(rows)
}

func (r *Repository) ListCollections(ctx context.Context) ([]model.Collection, error) {
	rows, err := r.adapter.Query(ctx, ListCollectionsQuery)
	if err != nil {
		return nil, fmt.Errorf("metadata: list collections: %w", err)
	}
	defer rows.Close()

	var out []model.Collection
	for rows.Next() {
		c, err := scanCollectionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateEnforcementMode(ctx context.Context, collectionID string, mode model.SchemaEnforcementMode) error {
	_, err := r.adapter.Execute(ctx, UpdateCollectionConstraintsModeQuery, string(mode), formatTime(time.Now()), collectionID)
	if err != nil {
		return fmt.Errorf("metadata: update enforcement mode for %s: %w", collectionID, err)
	}
	return nil
}

func (r *Repository) UpdateIndexingMode(ctx context.Context, collectionID string, mode model.IndexingMode) error {
	_, err := r.adapter.Execute(ctx, UpdateCollectionIndexingModeQuery, string(mode), formatTime(time.Now()), collectionID)
	if err != nil {
		return fmt.Errorf("metadata: update indexing mode for %s: %w", collectionID, err)
	}
	return nil
}

func (r *Repository) DeleteCollection(ctx context.Context, collectionID string) error {
	return r.adapter.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		stmts := []struct {
			query string
			args  []interface{}
		}{
			{DeleteTagsForCollectionQuery, []interface{}{collectionID}},
			{DeleteLabelsForCollectionQuery, []interface{}{collectionID}},
			{DeleteDocumentsByCollectionQuery, []interface{}{collectionID}},
			{DeleteFieldConstraintsForCollectionQuery, []interface{}{collectionID}},
			{DeleteIndexedFieldsForCollectionQuery, []interface{}{collectionID}},
			{DeleteCollectionQuery, []interface{}{collectionID}},
		}
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s.query, s.args...); err != nil {
				return fmt.Errorf("metadata: delete collection %s: %w", collectionID, err)
			}
		}
		return nil
	})
}

func scanOneCollection(rows *sql.Rows) (model.Collection, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return model.Collection{}, fmt.Errorf("metadata: scan collection: %w", err)
		}
		return model.Collection{}, errs.ErrNotFound
	}
	return scanCollectionRow(rows)
}

func scanCollectionRow(rows *sql.Rows) (model.Collection, error) {
	var c model.Collection
	var enforcement, indexing string
	var enableLocking int
	var createdStr, updatedStr string
	if err := rows.Scan(&c.ID, &c.Name, &enforcement, &indexing, &enableLocking, &createdStr, &updatedStr); err != nil {
		return model.Collection{}, fmt.Errorf("metadata: scan collection row: %w", err)
	}
	c.EnforcementMode = model.SchemaEnforcementMode(enforcement)
	c.IndexingMode = model.IndexingMode(indexing)
	c.EnableObjectLocking = enableLocking != 0
	created, err := parseTime(createdStr)
	if err != nil {
		return model.Collection{}, fmt.Errorf("metadata: parse created_utc: %w", err)
	}
	updated, err := parseTime(updatedStr)
	if err != nil {
		return model.Collection{}, fmt.Errorf("metadata: parse last_update_utc: %w", err)
	}
	c.CreatedUtc, c.LastUpdateUtc = created, updated
	return c, nil
}

// -- Schemas --------------------------------------------------------------

// GetOrCreateSchema looks up a schema by hash, inserting it if absent.
// Races are resolved by retrying the lookup after a failed insert, the
// same lookup-then-create-then-retry pattern used for index table
// allocation.
func (r *Repository) GetOrCreateSchema(ctx context.Context, hash string, elements []model.SchemaElement) (model.Schema, error) {
	existing, err := r.getSchemaByHash(ctx, hash)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return model.Schema{}, err
	}

	elementsJSON, err := json.Marshal(elements)
	if err != nil {
		return model.Schema{}, fmt.Errorf("metadata: marshal schema elements: %w", err)
	}

	sch := model.Schema{ID: ids.New(ids.PrefixSchema), Hash: hash, Elements: elements, CreatedUtc: time.Now()}
	_, err = r.adapter.Execute(ctx, InsertSchemaQuery, sch.ID, sch.Hash, string(elementsJSON), formatTime(sch.CreatedUtc))
	if err != nil {
		// Lost the race to another writer inserting the same hash
		// concurrently; the winner's row is now visible.
		if existing, getErr := r.getSchemaByHash(ctx, hash); getErr == nil {
			return existing, nil
		}
		return model.Schema{}, fmt.Errorf("metadata: create schema %s: %w", hash, err)
	}
	return sch, nil
}

func (r *Repository) getSchemaByHash(ctx context.Context, hash string) (model.Schema, error) {
	rows, err := r.adapter.Query(ctx, GetSchemaByHashQuery, hash)
	if err != nil {
		return model.Schema{}, fmt.Errorf("metadata: get schema by hash: %w", err)
	}
	defer rows.Close()
	return scanOneSchema(rows)
}

func (r *Repository) GetSchema(ctx context.Context, id string) (model.Schema, error) {
	rows, err := r.adapter.Query(ctx, GetSchemaByIDQuery, id)
	if err != nil {
		return model.Schema{}, fmt.Errorf("metadata: get schema %s: %w", id, err)
	}
	defer rows.Close()
	return scanOneSchema(rows)
}

// ListSchemas returns every schema row, ordered by creation time, for the
// GET /v1.0/schemas endpoint. Schemas are global, so this is not scoped
// to a collection; a caller wanting "schemas used by collection X" joins
// against documents.schema_id itself.
func (r *Repository) ListSchemas(ctx context.Context) ([]model.Schema, error) {
	rows, err := r.adapter.Query(ctx, ListSchemasQuery)
	if err != nil {
		return nil, fmt.Errorf("metadata: list schemas: %w", err)
	}
	defer rows.Close()

	var out []model.Schema
	for rows.Next() {
		var s model.Schema
		var elementsJSON, createdStr string
		if err := rows.Scan(&s.ID, &s.Hash, &elementsJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("metadata: scan schema row: %w", err)
		}
		if err := json.Unmarshal([]byte(elementsJSON), &s.Elements); err != nil {
			return nil, fmt.Errorf("metadata: unmarshal schema elements: %w", err)
		}
		created, err := parseTime(createdStr)
		if err != nil {
			return nil, fmt.Errorf("metadata: parse created_utc: %w", err)
		}
		s.CreatedUtc = created
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListSchemaIDsForCollection returns the distinct schema IDs referenced
// by any document in collectionID, used by the conformance harness to
// assert "exactly N schemas for this collection" (scenario 1 in the
// testable-properties section).
func (r *Repository) ListSchemaIDsForCollection(ctx context.Context, collectionID string) ([]string, error) {
	rows, err := r.adapter.Query(ctx, ListSchemaIDsForCollectionQuery, collectionID)
	if err != nil {
		return nil, fmt.Errorf("metadata: list schema ids for collection %s: %w", collectionID, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("metadata: scan schema id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanOneSchema(rows *sql.Rows) (model.Schema, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return model.Schema{}, fmt.Errorf("metadata: scan schema: %w", err)
		}
		return model.Schema{}, errs.ErrNotFound
	}
	var s model.Schema
	var elementsJSON, createdStr string
	if err := rows.Scan(&s.ID, &s.Hash, &elementsJSON, &createdStr); err != nil {
		return model.Schema{}, fmt.Errorf("metadata: scan schema row: %w", err)
	}
	if err := json.Unmarshal([]byte(elementsJSON), &s.Elements); err != nil {
		return model.Schema{}, fmt.Errorf("metadata: unmarshal schema elements: %w", err)
	}
	created, err := parseTime(createdStr)
	if err != nil {
		return model.Schema{}, fmt.Errorf("metadata: parse created_utc: %w", err)
	}
	s.CreatedUtc = created
	return s, nil
}

// -- Documents, labels, tags ----------------------------------------------

// InsertDocumentTx writes a document row plus its labels and tags.
// internal/ingest wraps this together with the index inserts in one
// ExecuteTransaction call (the blob is written before that transaction
// opens); this method itself only
// issues statements, it does not open its own transaction, so it can be
// composed inside a larger one.
func (r *Repository) InsertDocumentTx(ctx context.Context, tx *sql.Tx, d model.Document) error {
	_, err := tx.ExecContext(ctx, InsertDocumentQuery,
		d.ID, d.CollectionID, d.SchemaID, nullableString(d.Name), d.ContentHash, d.ContentLength,
		formatTime(d.CreatedUtc), formatTime(d.LastUpdateUtc))
	if err != nil {
		return fmt.Errorf("metadata: insert document %s: %w", d.ID, err)
	}
	for _, label := range d.Labels {
		if _, err := tx.ExecContext(ctx, InsertLabelQuery, d.ID, d.CollectionID, label); err != nil {
			return fmt.Errorf("metadata: insert label %s for %s: %w", label, d.ID, err)
		}
	}
	for k, v := range d.Tags {
		if _, err := tx.ExecContext(ctx, InsertTagQuery, d.ID, d.CollectionID, k, v); err != nil {
			return fmt.Errorf("metadata: insert tag %s for %s: %w", k, d.ID, err)
		}
	}
	return nil
}

func (r *Repository) GetDocument(ctx context.Context, collectionID, documentID string) (model.Document, error) {
	rows, err := r.adapter.Query(ctx, GetDocumentQuery, documentID, collectionID)
	if err != nil {
		return model.Document{}, fmt.Errorf("metadata: get document %s: %w", documentID, err)
	}
	d, err := scanOneDocument(rows)
	rows.Close()
	if err != nil {
		return model.Document{}, err
	}

	d.Labels, err = r.GetLabels(ctx, documentID)
	if err != nil {
		return model.Document{}, err
	}
	d.Tags, err = r.GetTags(ctx, documentID)
	if err != nil {
		return model.Document{}, err
	}
	return d, nil
}

func (r *Repository) GetLabels(ctx context.Context, documentID string) ([]string, error) {
	rows, err := r.adapter.Query(ctx, GetLabelsQuery, documentID)
	if err != nil {
		return nil, fmt.Errorf("metadata: get labels for %s: %w", documentID, err)
	}
	defer rows.Close()
	var labels []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("metadata: scan label: %w", err)
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

func (r *Repository) GetTags(ctx context.Context, documentID string) (map[string]string, error) {
	rows, err := r.adapter.Query(ctx, GetTagsQuery, documentID)
	if err != nil {
		return nil, fmt.Errorf("metadata: get tags for %s: %w", documentID, err)
	}
	defer rows.Close()
	tags := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("metadata: scan tag: %w", err)
		}
		tags[k] = v
	}
	return tags, rows.Err()
}

// DeleteDocumentTx removes a document's metadata row, labels, and tags
// within an already-open transaction. Index-row cleanup is the index
// engine's responsibility since it owns the dynamic index tables.
func (r *Repository) DeleteDocumentTx(ctx context.Context, tx *sql.Tx, collectionID, documentID string) error {
	if _, err := tx.ExecContext(ctx, DeleteLabelsForDocumentQuery, documentID); err != nil {
		return fmt.Errorf("metadata: delete labels for %s: %w", documentID, err)
	}
	if _, err := tx.ExecContext(ctx, DeleteTagsForDocumentQuery, documentID); err != nil {
		return fmt.Errorf("metadata: delete tags for %s: %w", documentID, err)
	}
	if _, err := tx.ExecContext(ctx, DeleteDocumentQuery, documentID, collectionID); err != nil {
		return fmt.Errorf("metadata: delete document %s: %w", documentID, err)
	}
	return nil
}

func (r *Repository) CountDocuments(ctx context.Context, collectionID string) (int64, error) {
	rows, err := r.adapter.Query(ctx, CountDocumentsQuery, collectionID)
	if err != nil {
		return 0, fmt.Errorf("metadata: count documents for %s: %w", collectionID, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, nil
	}
	var n int64
	if err := rows.Scan(&n); err != nil {
		return 0, fmt.Errorf("metadata: scan document count: %w", err)
	}
	return n, rows.Err()
}

func scanOneDocument(rows *sql.Rows) (model.Document, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return model.Document{}, fmt.Errorf("metadata: scan document: %w", err)
		}
		return model.Document{}, errs.ErrNotFound
	}
	var d model.Document
	var name sql.NullString
	var createdStr, updatedStr string
	if err := rows.Scan(&d.ID, &d.CollectionID, &d.SchemaID, &name, &d.ContentHash, &d.ContentLength, &createdStr, &updatedStr); err != nil {
		return model.Document{}, fmt.Errorf("metadata: scan document row: %w", err)
	}
	d.Name = name.String
	created, err := parseTime(createdStr)
	if err != nil {
		return model.Document{}, fmt.Errorf("metadata: parse created_utc: %w", err)
	}
	updated, err := parseTime(updatedStr)
	if err != nil {
		return model.Document{}, fmt.Errorf("metadata: parse last_update_utc: %w", err)
	}
	d.CreatedUtc, d.LastUpdateUtc = created, updated
	return d, nil
}

// -- Field constraints and indexed fields ---------------------------------

func (r *Repository) ReplaceFieldConstraints(ctx context.Context, collectionID string, constraints []model.FieldConstraint) error {
	return r.adapter.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, DeleteFieldConstraintsForCollectionQuery, collectionID); err != nil {
			return fmt.Errorf("metadata: clear field constraints for %s: %w", collectionID, err)
		}
		for _, c := range constraints {
			allowedJSON, err := json.Marshal(c.AllowedValues)
			if err != nil {
				return fmt.Errorf("metadata: marshal allowed values: %w", err)
			}
			id := c.ID
			if id == "" {
				id = ids.New(ids.PrefixConstraint)
			}
			_, err = tx.ExecContext(ctx, InsertFieldConstraintQuery,
				id, collectionID, c.Field, boolToInt(c.Required), boolToInt(c.Nullable),
				nullableString(string(c.DataType)), nullableString(c.Pattern),
				c.MinValue, c.MaxValue, c.MinLength, c.MaxLength,
				string(allowedJSON), nullableString(string(c.ArrayElementType)))
			if err != nil {
				return fmt.Errorf("metadata: insert field constraint %s: %w", c.Field, err)
			}
		}
		return nil
	})
}

func (r *Repository) ListFieldConstraints(ctx context.Context, collectionID string) ([]model.FieldConstraint, error) {
	rows, err := r.adapter.Query(ctx, ListFieldConstraintsQuery, collectionID)
	if err != nil {
		return nil, fmt.Errorf("metadata: list field constraints for %s: %w", collectionID, err)
	}
	defer rows.Close()

	var out []model.FieldConstraint
	for rows.Next() {
		var c model.FieldConstraint
		var required, nullable int
		var dataType, pattern, arrayElemType sql.NullString
		var allowedJSON string
		if err := rows.Scan(&c.ID, &c.CollectionID, &c.Field, &required, &nullable, &dataType, &pattern,
			&c.MinValue, &c.MaxValue, &c.MinLength, &c.MaxLength, &allowedJSON, &arrayElemType); err != nil {
			return nil, fmt.Errorf("metadata: scan field constraint: %w", err)
		}
		c.Required, c.Nullable = required != 0, nullable != 0
		c.DataType = model.LeafType(dataType.String)
		c.Pattern = pattern.String
		c.ArrayElementType = model.LeafType(arrayElemType.String)
		if allowedJSON != "" && allowedJSON != "null" {
			if err := json.Unmarshal([]byte(allowedJSON), &c.AllowedValues); err != nil {
				return nil, fmt.Errorf("metadata: unmarshal allowed values: %w", err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) ReplaceIndexedFields(ctx context.Context, collectionID string, fields []string) error {
	return r.adapter.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, DeleteIndexedFieldsForCollectionQuery, collectionID); err != nil {
			return fmt.Errorf("metadata: clear indexed fields for %s: %w", collectionID, err)
		}
		for _, f := range fields {
			if _, err := tx.ExecContext(ctx, InsertIndexedFieldQuery, ids.New(ids.PrefixIndexedField), collectionID, f); err != nil {
				return fmt.Errorf("metadata: insert indexed field %s: %w", f, err)
			}
		}
		return nil
	})
}

func (r *Repository) ListIndexedFields(ctx context.Context, collectionID string) ([]string, error) {
	rows, err := r.adapter.Query(ctx, ListIndexedFieldsQuery, collectionID)
	if err != nil {
		return nil, fmt.Errorf("metadata: list indexed fields for %s: %w", collectionID, err)
	}
	defer rows.Close()
	var fields []string
	for rows.Next() {
		var id, collID, field string
		if err := rows.Scan(&id, &collID, &field); err != nil {
			return nil, fmt.Errorf("metadata: scan indexed field: %w", err)
		}
		fields = append(fields, field)
	}
	return fields, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
