// Package collection is the Collection Lifecycle: create, delete (with
// full cascade through documents, labels, tags, constraints, indexed
// fields, and index-table rows), and constraint/indexing updates.
//
// The cascade shape is grounded on internal/storage/convex/adapter.go's
// DeleteIssue, generalized from a single tombstone write into iterating
// every document under a collection and running each through
// ingest.Orchestrator's own delete path before removing the collection's
// remaining configuration rows.
package collection

import (
	"context"
	"fmt"
	"time"

	"github.com/latticedb/lattice/internal/blobstore"
	"github.com/latticedb/lattice/internal/ids"
	"github.com/latticedb/lattice/internal/index"
	"github.com/latticedb/lattice/internal/model"
)

// DocumentDeleter is the subset of ingest.Orchestrator the lifecycle
// calls once per document during a cascade delete.
type DocumentDeleter interface {
	DeleteDocument(ctx context.Context, collectionID, documentID string) error
}

// Repository is the subset of metadata.Repository the lifecycle needs.
type Repository interface {
	CreateCollection(ctx context.Context, c model.Collection) error
	GetCollection(ctx context.Context, id string) (model.Collection, error)
	ListCollections(ctx context.Context) ([]model.Collection, error)
	UpdateEnforcementMode(ctx context.Context, collectionID string, mode model.SchemaEnforcementMode) error
	UpdateIndexingMode(ctx context.Context, collectionID string, mode model.IndexingMode) error
	DeleteCollection(ctx context.Context, collectionID string) error
	ListDocumentIDsOrderedByCreation(ctx context.Context, collectionID string) ([]string, error)
	ReplaceFieldConstraints(ctx context.Context, collectionID string, constraints []model.FieldConstraint) error
	ListFieldConstraints(ctx context.Context, collectionID string) ([]model.FieldConstraint, error)
	ReplaceIndexedFields(ctx context.Context, collectionID string, fields []string) error
	ListIndexedFields(ctx context.Context, collectionID string) ([]string, error)
}

// CreateOptions is the input to Create.
type CreateOptions struct {
	Name                string
	EnforcementMode     model.SchemaEnforcementMode
	IndexingMode        model.IndexingMode
	EnableObjectLocking bool
	FieldConstraints    []model.FieldConstraint
	IndexedFields       []string
}

// UpdateIndexingOptions is the input to UpdateIndexing.
type UpdateIndexingOptions struct {
	IndexingMode      model.IndexingMode
	IndexedFields     []string
	RebuildIndexes    bool
	DropUnusedIndexes bool
	OnProgress        func(model.IndexRebuildProgress)
}

// Lifecycle orchestrates collection create/delete/update operations.
type Lifecycle struct {
	repo    Repository
	index   *index.Engine
	blobs   blobstore.Store
	deleter DocumentDeleter
}

// New constructs a Lifecycle.
func New(repo Repository, engine *index.Engine, blobs blobstore.Store, deleter DocumentDeleter) *Lifecycle {
	return &Lifecycle{repo: repo, index: engine, blobs: blobs, deleter: deleter}
}

// Create persists a new collection row plus any initial constraints and
// indexed fields declared in opts.
func (l *Lifecycle) Create(ctx context.Context, opts CreateOptions) (model.Collection, error) {
	now := time.Now().UTC()
	c := model.Collection{
		ID:                  ids.New(ids.PrefixCollection),
		Name:                opts.Name,
		EnforcementMode:     opts.EnforcementMode,
		IndexingMode:        opts.IndexingMode,
		EnableObjectLocking: opts.EnableObjectLocking,
		CreatedUtc:          now,
		LastUpdateUtc:       now,
	}
	if err := l.repo.CreateCollection(ctx, c); err != nil {
		return model.Collection{}, fmt.Errorf("collection: create %s: %w", opts.Name, err)
	}

	if len(opts.FieldConstraints) > 0 {
		if err := l.repo.ReplaceFieldConstraints(ctx, c.ID, opts.FieldConstraints); err != nil {
			return model.Collection{}, fmt.Errorf("collection: set initial field constraints for %s: %w", c.ID, err)
		}
	}
	if len(opts.IndexedFields) > 0 {
		if err := l.repo.ReplaceIndexedFields(ctx, c.ID, opts.IndexedFields); err != nil {
			return model.Collection{}, fmt.Errorf("collection: set initial indexed fields for %s: %w", c.ID, err)
		}
	}
	return c, nil
}

// Delete removes every document in the collection via the orchestrator's
// delete path (blob, labels, tags, index rows), then removes the
// collection's remaining field-constraint, indexed-field, and collection
// rows. Cancellation is checked before each document's delete step, per
// the spec's large-loop suspension-point rule.
func (l *Lifecycle) Delete(ctx context.Context, collectionID string) error {
	docIDs, err := l.repo.ListDocumentIDsOrderedByCreation(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("collection: list documents for %s: %w", collectionID, err)
	}

	for _, docID := range docIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.deleter.DeleteDocument(ctx, collectionID, docID); err != nil {
			return fmt.Errorf("collection: delete document %s: %w", docID, err)
		}
	}

	// Every document, and with it every label/tag/index row the
	// documents touched, is already gone. DeleteCollection's own
	// document/label/tag statements are no-ops at this point; what's
	// left for it to actually remove is field_constraints,
	// indexed_fields, and the collections row itself.
	if err := l.repo.DeleteCollection(ctx, collectionID); err != nil {
		return fmt.Errorf("collection: delete %s: %w", collectionID, err)
	}
	return nil
}

// UpdateConstraints replaces a collection's declared field constraints.
func (l *Lifecycle) UpdateConstraints(ctx context.Context, collectionID string, mode model.SchemaEnforcementMode, constraints []model.FieldConstraint) error {
	if err := l.repo.UpdateEnforcementMode(ctx, collectionID, mode); err != nil {
		return fmt.Errorf("collection: update enforcement mode for %s: %w", collectionID, err)
	}
	if err := l.repo.ReplaceFieldConstraints(ctx, collectionID, constraints); err != nil {
		return fmt.Errorf("collection: replace field constraints for %s: %w", collectionID, err)
	}
	return nil
}

// UpdateIndexing replaces a collection's indexing mode and indexed-field
// list, optionally triggering a full rebuild against the new
// configuration.
func (l *Lifecycle) UpdateIndexing(ctx context.Context, collectionID string, opts UpdateIndexingOptions) (*model.IndexRebuildResult, error) {
	if err := l.repo.UpdateIndexingMode(ctx, collectionID, opts.IndexingMode); err != nil {
		return nil, fmt.Errorf("collection: update indexing mode for %s: %w", collectionID, err)
	}
	if err := l.repo.ReplaceIndexedFields(ctx, collectionID, opts.IndexedFields); err != nil {
		return nil, fmt.Errorf("collection: replace indexed fields for %s: %w", collectionID, err)
	}

	if !opts.RebuildIndexes {
		return nil, nil
	}

	docIDs, err := l.repo.ListDocumentIDsOrderedByCreation(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("collection: list documents for rebuild of %s: %w", collectionID, err)
	}

	result, err := l.index.Rebuild(ctx, index.RebuildOptions{
		CollectionID:      collectionID,
		IndexingMode:      opts.IndexingMode,
		IndexedFields:     opts.IndexedFields,
		DropUnusedIndexes: opts.DropUnusedIndexes,
		OnProgress:        opts.OnProgress,
	}, docIDs, l.blobs)
	if err != nil {
		return &result, fmt.Errorf("collection: rebuild indexes for %s: %w", collectionID, err)
	}
	return &result, nil
}

// RebuildIndexes reapplies the collection's *current* indexing
// configuration, for the standalone POST .../indexes/rebuild endpoint
// and the CLI's rebuild-indexes command, as opposed to UpdateIndexing's
// rebuild-after-reconfigure path.
func (l *Lifecycle) RebuildIndexes(ctx context.Context, collectionID string, dropUnusedIndexes bool, onProgress func(model.IndexRebuildProgress)) (model.IndexRebuildResult, error) {
	coll, err := l.repo.GetCollection(ctx, collectionID)
	if err != nil {
		return model.IndexRebuildResult{}, fmt.Errorf("collection: load %s for rebuild: %w", collectionID, err)
	}
	indexedFields, err := l.repo.ListIndexedFields(ctx, collectionID)
	if err != nil {
		return model.IndexRebuildResult{}, fmt.Errorf("collection: load indexed fields for %s: %w", collectionID, err)
	}
	docIDs, err := l.repo.ListDocumentIDsOrderedByCreation(ctx, collectionID)
	if err != nil {
		return model.IndexRebuildResult{}, fmt.Errorf("collection: list documents for rebuild of %s: %w", collectionID, err)
	}

	result, err := l.index.Rebuild(ctx, index.RebuildOptions{
		CollectionID:      collectionID,
		IndexingMode:      coll.IndexingMode,
		IndexedFields:     indexedFields,
		DropUnusedIndexes: dropUnusedIndexes,
		OnProgress:        onProgress,
	}, docIDs, l.blobs)
	if err != nil {
		return result, fmt.Errorf("collection: rebuild indexes for %s: %w", collectionID, err)
	}
	return result, nil
}
