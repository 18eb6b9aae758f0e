package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/latticedb/lattice/internal/errs"
	"github.com/latticedb/lattice/internal/jsonflat"
	"github.com/latticedb/lattice/internal/metadata"
	"github.com/latticedb/lattice/internal/model"
	"github.com/latticedb/lattice/internal/sqladapter/sqlitedialect"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *metadata.Repository) {
	t.Helper()
	ctx := context.Background()
	adapter, err := sqlitedialect.Open(ctx, filepath.Join(t.TempDir(), "lattice.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	repo, err := metadata.New(ctx, adapter)
	require.NoError(t, err)

	return New(adapter, repo, nil), repo
}

func TestEnsureTableAllocatesOncePerPath(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	t1, err := engine.EnsureTable(ctx, "status", model.LeafString)
	require.NoError(t, err)

	t2, err := engine.EnsureTable(ctx, "status", model.LeafString)
	require.NoError(t, err)

	require.Equal(t, t1, t2)
}

func TestEnsureTableDifferentPathsGetDifferentTables(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	t1, err := engine.EnsureTable(ctx, "status", model.LeafString)
	require.NoError(t, err)
	t2, err := engine.EnsureTable(ctx, "priority", model.LeafInteger)
	require.NoError(t, err)

	require.NotEqual(t, t1, t2)
}

func TestInsertAndDeleteForDocument(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	leaves := []jsonflat.Leaf{
		{Path: "status", DataType: model.LeafString, Encoded: "open"},
	}

	inserted, err := engine.insertForDocument(ctx, "col_1", "doc_1", model.IndexingAll, nil, leaves)
	require.NoError(t, err)
	require.Equal(t, int64(1), inserted)

	require.NoError(t, engine.DeleteForDocument(ctx, "doc_1"))
	_ = repo
}

func TestGetIndexTableMappingNotFound(t *testing.T) {
	_, repo := newTestEngine(t)
	ctx := context.Background()
	_, err := repo.GetIndexTableMapping(ctx, "nope")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

// Two documents with the same leaf path but different scalar types must
// share one physical table and one index_table_mappings row, since the
// mapping key is the path alone.
func TestEnsureTableSharesOneTableAcrossTypesAtSamePath(t *testing.T) {
	engine, repo := newTestEngine(t)
	ctx := context.Background()

	t1, err := engine.EnsureTable(ctx, "value", model.LeafString)
	require.NoError(t, err)

	t2, err := engine.EnsureTable(ctx, "value", model.LeafInteger)
	require.NoError(t, err)

	require.Equal(t, t1, t2)

	mappings, err := repo.ListIndexTableMappings(ctx)
	require.NoError(t, err)
	count := 0
	for _, m := range mappings {
		if m.Path == "value" {
			count++
		}
	}
	require.Equal(t, 1, count)
}
