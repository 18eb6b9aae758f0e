// Package metadata is the Metadata Repository: typed CRUD over the
// collections/documents/schemas/labels/tags/field_constraints/
// indexed_fields/index_table_mappings tables (a schema's elements are
// stored as JSON in its schemas row), issuing parameterized SQL through
// an sqladapter.Adapter.
//
// DDL-as-constants and prepared-statement-in-a-loop style are grounded on
// internal/storage/convex/schema.go and sqlite.go.
package metadata

// DDL holds the CREATE TABLE / CREATE INDEX statements for every metadata
// table. It is dialect-neutral standard SQL; all three supported
// backends (SQLite, MySQL, Dolt) accept it as written.
const DDL = `
CREATE TABLE IF NOT EXISTS collections (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	enforcement_mode TEXT NOT NULL,
	indexing_mode TEXT NOT NULL,
	enable_object_locking INTEGER NOT NULL DEFAULT 0,
	created_utc TEXT NOT NULL,
	last_update_utc TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schemas (
	id TEXT PRIMARY KEY,
	hash TEXT NOT NULL UNIQUE,
	elements_json TEXT NOT NULL,
	created_utc TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL,
	schema_id TEXT NOT NULL,
	name TEXT,
	content_hash TEXT NOT NULL,
	content_length INTEGER NOT NULL,
	created_utc TEXT NOT NULL,
	last_update_utc TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection_id);
CREATE INDEX IF NOT EXISTS idx_documents_schema ON documents(schema_id);
CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(collection_id, created_utc);

CREATE TABLE IF NOT EXISTS labels (
	document_id TEXT NOT NULL,
	collection_id TEXT NOT NULL,
	label TEXT NOT NULL,
	PRIMARY KEY (document_id, label)
);
CREATE INDEX IF NOT EXISTS idx_labels_lookup ON labels(collection_id, label, document_id);

CREATE TABLE IF NOT EXISTS tags (
	document_id TEXT NOT NULL,
	collection_id TEXT NOT NULL,
	tag_key TEXT NOT NULL,
	tag_value TEXT NOT NULL,
	PRIMARY KEY (document_id, tag_key)
);
CREATE INDEX IF NOT EXISTS idx_tags_lookup ON tags(collection_id, tag_key, tag_value, document_id);

CREATE TABLE IF NOT EXISTS field_constraints (
	id TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL,
	field TEXT NOT NULL,
	required INTEGER NOT NULL DEFAULT 0,
	nullable INTEGER NOT NULL DEFAULT 0,
	data_type TEXT,
	pattern TEXT,
	min_value REAL,
	max_value REAL,
	min_length INTEGER,
	max_length INTEGER,
	allowed_values_json TEXT,
	array_element_type TEXT
);
CREATE INDEX IF NOT EXISTS idx_field_constraints_collection ON field_constraints(collection_id);

CREATE TABLE IF NOT EXISTS indexed_fields (
	id TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL,
	field TEXT NOT NULL,
	UNIQUE (collection_id, field)
);

CREATE TABLE IF NOT EXISTS index_table_mappings (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	data_type TEXT NOT NULL,
	table_name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS index_table_counter (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	next_value INTEGER NOT NULL
);
`

// Prepared-statement SQL, named the way convex/schema.go names its query
// constants.
const (
	InsertCollectionQuery = `INSERT INTO collections (id, name, enforcement_mode, indexing_mode, enable_object_locking, created_utc, last_update_utc) VALUES (?, ?, ?, ?, ?, ?, ?)`
	GetCollectionQuery    = `SELECT id, name, enforcement_mode, indexing_mode, enable_object_locking, created_utc, last_update_utc FROM collections WHERE id = ?`
	GetCollectionByNameQuery = `SELECT id, name, enforcement_mode, indexing_mode, enable_object_locking, created_utc, last_update_utc FROM collections WHERE name = ?`
	ListCollectionsQuery  = `SELECT id, name, enforcement_mode, indexing_mode, enable_object_locking, created_utc, last_update_utc FROM collections ORDER BY name`
	UpdateCollectionConstraintsModeQuery = `UPDATE collections SET enforcement_mode = ?, last_update_utc = ? WHERE id = ?`
	UpdateCollectionIndexingModeQuery    = `UPDATE collections SET indexing_mode = ?, last_update_utc = ? WHERE id = ?`
	DeleteCollectionQuery = `DELETE FROM collections WHERE id = ?`

	InsertSchemaQuery  = `INSERT INTO schemas (id, hash, elements_json, created_utc) VALUES (?, ?, ?, ?)`
	GetSchemaByHashQuery = `SELECT id, hash, elements_json, created_utc FROM schemas WHERE hash = ?`
	GetSchemaByIDQuery = `SELECT id, hash, elements_json, created_utc FROM schemas WHERE id = ?`
	ListSchemasQuery   = `SELECT id, hash, elements_json, created_utc FROM schemas ORDER BY created_utc`
	ListSchemaIDsForCollectionQuery = `SELECT DISTINCT schema_id FROM documents WHERE collection_id = ?`

	InsertDocumentQuery = `INSERT INTO documents (id, collection_id, schema_id, name, content_hash, content_length, created_utc, last_update_utc) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	GetDocumentQuery    = `SELECT id, collection_id, schema_id, name, content_hash, content_length, created_utc, last_update_utc FROM documents WHERE id = ? AND collection_id = ?`
	DeleteDocumentQuery = `DELETE FROM documents WHERE id = ? AND collection_id = ?`
	DeleteDocumentsByCollectionQuery = `DELETE FROM documents WHERE collection_id = ?`
	CountDocumentsQuery = `SELECT COUNT(*) FROM documents WHERE collection_id = ?`

	InsertLabelQuery = `INSERT INTO labels (document_id, collection_id, label) VALUES (?, ?, ?)`
	GetLabelsQuery   = `SELECT label FROM labels WHERE document_id = ?`
	DeleteLabelsForDocumentQuery = `DELETE FROM labels WHERE document_id = ?`
	DeleteLabelsForCollectionQuery = `DELETE FROM labels WHERE collection_id = ?`

	InsertTagQuery = `INSERT INTO tags (document_id, collection_id, tag_key, tag_value) VALUES (?, ?, ?, ?)`
	GetTagsQuery   = `SELECT tag_key, tag_value FROM tags WHERE document_id = ?`
	DeleteTagsForDocumentQuery = `DELETE FROM tags WHERE document_id = ?`
	DeleteTagsForCollectionQuery = `DELETE FROM tags WHERE collection_id = ?`

	InsertFieldConstraintQuery = `INSERT INTO field_constraints (id, collection_id, field, required, nullable, data_type, pattern, min_value, max_value, min_length, max_length, allowed_values_json, array_element_type) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	ListFieldConstraintsQuery  = `SELECT id, collection_id, field, required, nullable, data_type, pattern, min_value, max_value, min_length, max_length, allowed_values_json, array_element_type FROM field_constraints WHERE collection_id = ?`
	DeleteFieldConstraintsForCollectionQuery = `DELETE FROM field_constraints WHERE collection_id = ?`

	InsertIndexedFieldQuery = `INSERT INTO indexed_fields (id, collection_id, field) VALUES (?, ?, ?)`
	ListIndexedFieldsQuery  = `SELECT id, collection_id, field FROM indexed_fields WHERE collection_id = ?`
	DeleteIndexedFieldsForCollectionQuery = `DELETE FROM indexed_fields WHERE collection_id = ?`

	InsertIndexTableMappingQuery = `INSERT INTO index_table_mappings (id, path, data_type, table_name) VALUES (?, ?, ?, ?)`
	GetIndexTableMappingQuery    = `SELECT id, path, data_type, table_name FROM index_table_mappings WHERE path = ?`
	ListIndexTableMappingsQuery  = `SELECT id, path, data_type, table_name FROM index_table_mappings`
	DeleteIndexTableMappingQuery = `DELETE FROM index_table_mappings WHERE table_name = ?`
)
