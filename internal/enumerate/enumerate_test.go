package enumerate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/latticedb/lattice/internal/ids"
	"github.com/latticedb/lattice/internal/metadata"
	"github.com/latticedb/lattice/internal/model"
	"github.com/latticedb/lattice/internal/sqladapter"
	"github.com/latticedb/lattice/internal/sqladapter/sqlitedialect"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) (sqladapter.Adapter, *metadata.Repository) {
	t.Helper()
	ctx := context.Background()
	adapter, err := sqlitedialect.Open(ctx, filepath.Join(t.TempDir(), "lattice.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	repo, err := metadata.New(ctx, adapter)
	require.NoError(t, err)
	return adapter, repo
}

func TestExecuteScopedToCollectionIsEmptyWithNoDocuments(t *testing.T) {
	adapter, repo := newFixture(t)
	ctx := context.Background()

	coll := model.Collection{ID: ids.New(ids.PrefixCollection), Name: "t", EnforcementMode: model.EnforcementNone, IndexingMode: model.IndexingNone}
	require.NoError(t, repo.CreateCollection(ctx, coll))

	result, err := Execute(ctx, adapter, repo, nil, model.EnumerationQuery{CollectionID: &coll.ID})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, int64(0), result.TotalRecords)
	require.True(t, result.EndOfResults)
}

func TestExecuteGlobalScanAcrossCollections(t *testing.T) {
	adapter, repo := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		coll := model.Collection{ID: ids.New(ids.PrefixCollection), Name: ids.New(ids.PrefixCollection), EnforcementMode: model.EnforcementNone, IndexingMode: model.IndexingNone}
		require.NoError(t, repo.CreateCollection(ctx, coll))
	}

	result, err := Execute(ctx, adapter, repo, nil, model.EnumerationQuery{})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, int64(0), result.TotalRecords)
}

func TestOrderingSQLDefaults(t *testing.T) {
	col, dir := orderingSQL(nil)
	require.Equal(t, "created_utc", col)
	require.Equal(t, "DESC", dir)
}
