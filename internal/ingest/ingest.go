// Package ingest is the Ingest Orchestrator: the top-level write pipeline
// that turns a raw JSON body into a persisted Document, a resolved
// Schema, a stored blob, and a set of index rows, all as one logical
// unit of work.
//
// Grounded on internal/storage/convex/adapter.go's CreateIssue /
// CreateIssues: serialize, build a document log entry plus derived
// index entries, then write both atomically through one persistence
// call. Lattice generalizes the "document entry + derived index
// entries, written together" shape from a single KV write into a SQL
// transaction spanning metadata.Repository.InsertDocumentTx and
// index.Engine.InsertForDocumentTx.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/latticedb/lattice/internal/blobstore"
	"github.com/latticedb/lattice/internal/constraints"
	"github.com/latticedb/lattice/internal/errs"
	"github.com/latticedb/lattice/internal/ids"
	"github.com/latticedb/lattice/internal/jsonflat"
	"github.com/latticedb/lattice/internal/model"
	"github.com/latticedb/lattice/internal/schemadiscovery"
	"github.com/latticedb/lattice/internal/sqladapter"
)

// CollectionRepository is the subset of metadata.Repository ingest reads
// collection configuration through and writes/removes document rows
// through.
type CollectionRepository interface {
	GetCollection(ctx context.Context, id string) (model.Collection, error)
	ListFieldConstraints(ctx context.Context, collectionID string) ([]model.FieldConstraint, error)
	ListIndexedFields(ctx context.Context, collectionID string) ([]string, error)
	GetOrCreateSchema(ctx context.Context, hash string, elements []model.SchemaElement) (model.Schema, error)
	InsertDocumentTx(ctx context.Context, tx *sql.Tx, d model.Document) error
	DeleteDocumentTx(ctx context.Context, tx *sql.Tx, collectionID, documentID string) error
}

// IndexEngine is the subset of index.Engine ingest writes through.
type IndexEngine interface {
	InsertForDocumentTx(ctx context.Context, tx *sql.Tx, collectionID, documentID string, mode model.IndexingMode, indexedFields []string, leaves []jsonflat.Leaf) (int64, error)
	DeleteForDocument(ctx context.Context, documentID string) error
}

// Request is one ingest call's input.
type Request struct {
	CollectionID string
	Body         []byte
	Name         string
	Labels       []string
	Tags         map[string]string
}

// Orchestrator runs the ingest pipeline.
type Orchestrator struct {
	adapter sqladapter.Adapter
	repo    CollectionRepository
	index   IndexEngine
	blobs   blobstore.Store

	// locks serializes ingest per collection when the collection opts
	// into enableObjectLocking, trading throughput for linearizable
	// ingest ordering within that collection.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New constructs an Orchestrator.
func New(adapter sqladapter.Adapter, repo CollectionRepository, index IndexEngine, blobs blobstore.Store) *Orchestrator {
	return &Orchestrator{adapter: adapter, repo: repo, index: index, blobs: blobs, locks: make(map[string]*sync.Mutex)}
}

// Ingest runs the full pipeline for req and returns the persisted
// Document (without its content body).
func (o *Orchestrator) Ingest(ctx context.Context, req Request) (model.Document, error) {
	coll, err := o.repo.GetCollection(ctx, req.CollectionID)
	if err != nil {
		return model.Document{}, fmt.Errorf("ingest: load collection %s: %w", req.CollectionID, err)
	}

	if coll.EnableObjectLocking {
		unlock := o.lockFor(coll.ID)
		defer unlock()
	}

	leaves, err := jsonflat.FlattenOrdered(req.Body)
	if err != nil {
		return model.Document{}, fmt.Errorf("ingest: parse body as JSON: %w: %w", errs.ErrInvalidInput, err)
	}

	if coll.EnforcementMode != model.EnforcementNone {
		cs, err := o.repo.ListFieldConstraints(ctx, coll.ID)
		if err != nil {
			return model.Document{}, fmt.Errorf("ingest: load field constraints: %w", err)
		}
		if err := constraints.Validate(coll.EnforcementMode, cs, leaves); err != nil {
			return model.Document{}, err
		}
	}

	elements := schemadiscovery.Discover(leaves)
	hash, err := schemadiscovery.Hash(elements)
	if err != nil {
		return model.Document{}, fmt.Errorf("ingest: hash schema: %w", err)
	}
	schema, err := o.repo.GetOrCreateSchema(ctx, hash, elements)
	if err != nil {
		return model.Document{}, fmt.Errorf("ingest: resolve schema: %w", err)
	}

	docID := ids.New(ids.PrefixDocument)
	hashHex, contentLength, err := o.blobs.Put(ctx, coll.ID, docID, req.Body)
	if err != nil {
		return model.Document{}, fmt.Errorf("ingest: persist blob: %w", err)
	}

	var indexedFields []string
	if coll.IndexingMode == model.IndexingSelective {
		indexedFields, err = o.repo.ListIndexedFields(ctx, coll.ID)
		if err != nil {
			_ = o.blobs.Delete(ctx, coll.ID, docID)
			return model.Document{}, fmt.Errorf("ingest: load indexed fields: %w", err)
		}
	}

	now := time.Now().UTC()
	doc := model.Document{
		ID:            docID,
		CollectionID:  coll.ID,
		SchemaID:      schema.ID,
		Name:          req.Name,
		ContentHash:   hashHex,
		ContentLength: contentLength,
		Labels:        req.Labels,
		Tags:          req.Tags,
		CreatedUtc:    now,
		LastUpdateUtc: now,
	}

	err = o.adapter.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		if err := o.repo.InsertDocumentTx(ctx, tx, doc); err != nil {
			return err
		}
		if coll.IndexingMode != model.IndexingNone {
			if _, err := o.index.InsertForDocumentTx(ctx, tx, coll.ID, docID, coll.IndexingMode, indexedFields, leaves); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// The transaction is the single source of truth for document
		// metadata and index rows; a failed commit leaves an orphaned
		// blob behind, cleaned up best-effort since its own failure
		// must not mask the original error.
		_ = o.blobs.Delete(ctx, coll.ID, docID)
		return model.Document{}, fmt.Errorf("ingest: write document %s: %w: %v", docID, errs.ErrBackend, err)
	}

	return doc, nil
}

// DeleteDocument removes a document's blob, label/tag rows, and index
// rows across every index table it touched. This is the delete path
// internal/collection calls once per document during a collection
// cascade, and the one the REST document DELETE endpoint in
// internal/httpapi calls.
func (o *Orchestrator) DeleteDocument(ctx context.Context, collectionID, documentID string) error {
	if err := o.index.DeleteForDocument(ctx, documentID); err != nil {
		return fmt.Errorf("ingest: delete index rows for %s: %w", documentID, err)
	}
	err := o.adapter.ExecuteTransaction(ctx, func(tx *sql.Tx) error {
		return o.repo.DeleteDocumentTx(ctx, tx, collectionID, documentID)
	})
	if err != nil {
		return fmt.Errorf("ingest: delete document %s: %w", documentID, err)
	}
	// The blob has no further referrer once metadata is gone; its own
	// deletion failure is not fatal since DeleteDocumentTx already
	// committed.
	_ = o.blobs.Delete(ctx, collectionID, documentID)
	return nil
}

func (o *Orchestrator) lockFor(collectionID string) func() {
	o.locksMu.Lock()
	l, ok := o.locks[collectionID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[collectionID] = l
	}
	o.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}
