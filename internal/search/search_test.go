package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/latticedb/lattice/internal/ids"
	"github.com/latticedb/lattice/internal/index"
	"github.com/latticedb/lattice/internal/metadata"
	"github.com/latticedb/lattice/internal/model"
	"github.com/latticedb/lattice/internal/sqladapter"
	"github.com/latticedb/lattice/internal/sqladapter/sqlitedialect"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	adapter sqladapter.Adapter
	repo    *metadata.Repository
	engine  *index.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	adapter, err := sqlitedialect.Open(ctx, filepath.Join(t.TempDir(), "lattice.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	repo, err := metadata.New(ctx, adapter)
	require.NoError(t, err)

	return &fixture{adapter: adapter, repo: repo, engine: index.New(adapter, repo, nil)}
}

func TestCompileFilterUnsatisfiableFieldYieldsEmptySubquery(t *testing.T) {
	cf := compileFilter(sqladapter.DialectSQLite, "col_1", nil, model.SearchFilter{Field: "missing", Condition: model.CondEquals, Value: "x"})
	require.Equal(t, emptySubquery, cf.subquery)
	require.Empty(t, cf.args)
}

func TestCompileFilterBindsCollectionIDAheadOfPredicateArgs(t *testing.T) {
	mappings := []model.IndexTableMapping{
		{ID: ids.New(ids.PrefixIndexTable), Path: "status", DataType: model.LeafString, TableName: "idx_a"},
	}
	cf := compileFilter(sqladapter.DialectSQLite, "col_1", mappings, model.SearchFilter{Field: "status", Condition: model.CondEquals, Value: "open"})
	require.Len(t, cf.args, 2)
	require.Equal(t, "col_1", cf.args[0])
	require.Equal(t, "open", cf.args[1])
}

func TestCompileAgainstTableRejectsTypeMismatchedComparison(t *testing.T) {
	m := model.IndexTableMapping{Path: "status", DataType: model.LeafString, TableName: "idx_a"}
	_, _, ok := compileAgainstTable(sqladapter.DialectSQLite, m, model.SearchFilter{Field: "status", Condition: model.CondGreaterThan, Value: 1})
	require.False(t, ok)
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	require.Equal(t, `%100\%%`, likePattern(model.CondContains, "100%"))
	require.Equal(t, `open\_now%`, likePattern(model.CondStartsWith, "open_now"))
}

func TestOrderingSQLDefaultsToCreatedUtcDescending(t *testing.T) {
	col, dir := orderingSQL(nil)
	require.Equal(t, "created_utc", col)
	require.Equal(t, "DESC", dir)
}

func TestOrderingSQLHonorsNameDescending(t *testing.T) {
	col, dir := orderingSQL(&model.Ordering{Column: model.OrderByName, Direction: model.Descending})
	require.Equal(t, "name", col)
	require.Equal(t, "DESC", dir)
}

func TestCombineIntersectsEmptyProducesNoWhereClause(t *testing.T) {
	args, where := combineIntersects(nil, nil)
	require.Nil(t, args)
	require.Empty(t, where)
}

func TestCombineIntersectsJoinsWithIntersect(t *testing.T) {
	args, where := combineIntersects([]string{"SELECT 1", "SELECT 2"}, []interface{}{"a"})
	require.Equal(t, []interface{}{"a"}, args)
	require.Contains(t, where, "INTERSECT")
}

func TestExecuteWithNoFiltersReturnsAllDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	coll := model.Collection{
		ID: ids.New(ids.PrefixCollection), Name: "t", EnforcementMode: model.EnforcementNone,
		IndexingMode: model.IndexingAll,
	}
	require.NoError(t, f.repo.CreateCollection(ctx, coll))

	result, err := Execute(ctx, f.adapter, f.repo, f.repo, nil, model.SearchQuery{CollectionID: coll.ID})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, int64(0), result.TotalRecords)
	require.Empty(t, result.Documents)
}

func TestExecuteSQLWithNoMatchesReturnsEmptyResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	coll := model.Collection{
		ID: ids.New(ids.PrefixCollection), Name: "t", EnforcementMode: model.EnforcementNone,
		IndexingMode: model.IndexingAll,
	}
	require.NoError(t, f.repo.CreateCollection(ctx, coll))

	result, err := ExecuteSQL(ctx, f.adapter, f.repo, f.repo, nil, coll.ID, `SELECT * FROM documents WHERE status = 'open'`)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Empty(t, result.Documents)
}
