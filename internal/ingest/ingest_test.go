package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/latticedb/lattice/internal/blobstore"
	"github.com/latticedb/lattice/internal/constraints"
	"github.com/latticedb/lattice/internal/errs"
	"github.com/latticedb/lattice/internal/ids"
	"github.com/latticedb/lattice/internal/index"
	"github.com/latticedb/lattice/internal/metadata"
	"github.com/latticedb/lattice/internal/model"
	"github.com/latticedb/lattice/internal/sqladapter"
	"github.com/latticedb/lattice/internal/sqladapter/sqlitedialect"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) (*Orchestrator, *metadata.Repository, sqladapter.Adapter, blobstore.Store) {
	t.Helper()
	ctx := context.Background()

	adapter, err := sqlitedialect.Open(ctx, filepath.Join(t.TempDir(), "lattice.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	repo, err := metadata.New(ctx, adapter)
	require.NoError(t, err)

	blobs, err := blobstore.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	engine := index.New(adapter, repo, blobs)
	orch := New(adapter, repo, engine, blobs)
	return orch, repo, adapter, blobs
}

func mustCreateCollection(t *testing.T, ctx context.Context, repo *metadata.Repository, c model.Collection) model.Collection {
	t.Helper()
	if c.ID == "" {
		c.ID = ids.New(ids.PrefixCollection)
	}
	require.NoError(t, repo.CreateCollection(ctx, c))
	return c
}

func TestIngestPersistsDocumentAndSchema(t *testing.T) {
	orch, repo, _, blobs := newFixture(t)
	ctx := context.Background()

	coll := mustCreateCollection(t, ctx, repo, model.Collection{
		Name:            "widgets",
		EnforcementMode: model.EnforcementNone,
		IndexingMode:    model.IndexingAll,
	})

	doc, err := orch.Ingest(ctx, Request{
		CollectionID: coll.ID,
		Body:         []byte(`{"Name":"Joel","Age":30}`),
		Labels:       []string{"important"},
		Tags:         map[string]string{"team": "core"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)
	require.NotEmpty(t, doc.SchemaID)
	require.Equal(t, int64(len(`{"Name":"Joel","Age":30}`)), doc.ContentLength)

	stored, err := repo.GetDocument(ctx, coll.ID, doc.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"important"}, stored.Labels)
	require.Equal(t, "core", stored.Tags["team"])

	body, err := blobs.Get(ctx, coll.ID, doc.ID)
	require.NoError(t, err)
	require.JSONEq(t, `{"Name":"Joel","Age":30}`, string(body))
}

func TestIngestSchemaReuseAcrossShape(t *testing.T) {
	orch, repo, _, _ := newFixture(t)
	ctx := context.Background()

	coll := mustCreateCollection(t, ctx, repo, model.Collection{
		Name:            "people",
		EnforcementMode: model.EnforcementNone,
		IndexingMode:    model.IndexingNone,
	})

	a, err := orch.Ingest(ctx, Request{CollectionID: coll.ID, Body: []byte(`{"Name":"A"}`)})
	require.NoError(t, err)
	b, err := orch.Ingest(ctx, Request{CollectionID: coll.ID, Body: []byte(`{"Name":"B"}`)})
	require.NoError(t, err)
	require.Equal(t, a.SchemaID, b.SchemaID)

	c, err := orch.Ingest(ctx, Request{CollectionID: coll.ID, Body: []byte(`{"Age":30}`)})
	require.NoError(t, err)
	require.NotEqual(t, a.SchemaID, c.SchemaID)
}

func TestIngestStrictRejectsUnexpectedField(t *testing.T) {
	orch, repo, _, _ := newFixture(t)
	ctx := context.Background()

	coll := mustCreateCollection(t, ctx, repo, model.Collection{
		Name:            "strict",
		EnforcementMode: model.EnforcementStrict,
		IndexingMode:    model.IndexingNone,
	})
	require.NoError(t, repo.ReplaceFieldConstraints(ctx, coll.ID, []model.FieldConstraint{
		{Field: "Name", Required: true, DataType: model.LeafString},
	}))

	_, err := orch.Ingest(ctx, Request{CollectionID: coll.ID, Body: []byte(`{"Name":"Joel","Extra":"x"}`)})
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrValidation))

	var verr *constraints.Error
	require.True(t, errors.As(err, &verr))
	var codes []constraints.Code
	for _, f := range verr.Failures {
		codes = append(codes, f.Code)
	}
	require.Contains(t, codes, constraints.CodeUnexpectedField)
}

func TestIngestSelectiveIndexingOnlyIndexesNamedFields(t *testing.T) {
	orch, repo, _, _ := newFixture(t)
	ctx := context.Background()

	coll := mustCreateCollection(t, ctx, repo, model.Collection{
		Name:            "selective",
		EnforcementMode: model.EnforcementNone,
		IndexingMode:    model.IndexingSelective,
	})
	require.NoError(t, repo.ReplaceIndexedFields(ctx, coll.ID, []string{"Name"}))

	_, err := orch.Ingest(ctx, Request{CollectionID: coll.ID, Body: []byte(`{"Name":"Joel","Age":30}`)})
	require.NoError(t, err)

	mappings, err := repo.ListIndexTableMappings(ctx)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	require.Equal(t, "Name", mappings[0].Path)
}

func TestIngestUnknownCollectionFails(t *testing.T) {
	orch, _, _, _ := newFixture(t)
	ctx := context.Background()

	_, err := orch.Ingest(ctx, Request{CollectionID: ids.New(ids.PrefixCollection), Body: []byte(`{"Name":"Joel"}`)})
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestIngestMalformedJSONFailsWithInvalidInput(t *testing.T) {
	orch, repo, _, _ := newFixture(t)
	ctx := context.Background()

	coll := mustCreateCollection(t, ctx, repo, model.Collection{
		Name:            "malformed",
		EnforcementMode: model.EnforcementNone,
		IndexingMode:    model.IndexingNone,
	})

	_, err := orch.Ingest(ctx, Request{CollectionID: coll.ID, Body: []byte(`{"Name":`)})
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrInvalidInput))
}

func TestIngestEmptyObjectProducesZeroElementSchema(t *testing.T) {
	orch, repo, _, _ := newFixture(t)
	ctx := context.Background()

	coll := mustCreateCollection(t, ctx, repo, model.Collection{
		Name:            "empties",
		EnforcementMode: model.EnforcementNone,
		IndexingMode:    model.IndexingNone,
	})

	doc, err := orch.Ingest(ctx, Request{CollectionID: coll.ID, Body: []byte(`{}`)})
	require.NoError(t, err)

	schema, err := repo.GetSchema(ctx, doc.SchemaID)
	require.NoError(t, err)
	require.Empty(t, schema.Elements)
}
