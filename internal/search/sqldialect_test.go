package search

import (
	"errors"
	"testing"

	"github.com/latticedb/lattice/internal/errs"
	"github.com/latticedb/lattice/internal/model"
	"github.com/stretchr/testify/require"
)

func TestParseSQLBasicPredicate(t *testing.T) {
	q, err := ParseSQL("col_1", `SELECT * FROM documents WHERE status = 'open'`)
	require.NoError(t, err)
	require.Equal(t, "col_1", q.CollectionID)
	require.Len(t, q.Filters, 1)
	require.Equal(t, "status", q.Filters[0].Field)
	require.Equal(t, model.CondEquals, q.Filters[0].Condition)
	require.Equal(t, "open", q.Filters[0].Value)
}

func TestParseSQLAndChain(t *testing.T) {
	q, err := ParseSQL("col_1", `SELECT * FROM documents WHERE status = 'open' AND priority > 1`)
	require.NoError(t, err)
	require.Len(t, q.Filters, 2)
	require.Equal(t, model.CondGreaterThan, q.Filters[1].Condition)
	require.InDelta(t, 1.0, q.Filters[1].Value, 0.0001)
}

func TestParseSQLOrderLimitOffset(t *testing.T) {
	q, err := ParseSQL("col_1", `SELECT * FROM documents WHERE status = 'open' ORDER BY name DESC LIMIT 10 OFFSET 5`)
	require.NoError(t, err)
	require.NotNil(t, q.Ordering)
	require.Equal(t, model.OrderByName, q.Ordering.Column)
	require.Equal(t, model.Descending, q.Ordering.Direction)
	require.Equal(t, 10, *q.MaxResults)
	require.Equal(t, 5, *q.Skip)
}

func TestParseSQLLikePredicate(t *testing.T) {
	q, err := ParseSQL("col_1", `SELECT * FROM documents WHERE name LIKE '%foo%'`)
	require.NoError(t, err)
	require.Equal(t, model.CondLike, q.Filters[0].Condition)
	require.Equal(t, "%foo%", q.Filters[0].Value)
}

func TestParseSQLRejectsOutsideGrammar(t *testing.T) {
	_, err := ParseSQL("col_1", `DELETE FROM documents WHERE status = 'open'`)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrUnsupportedOperation))
}

func TestParseSQLRejectsOrGrouping(t *testing.T) {
	_, err := ParseSQL("col_1", `SELECT * FROM documents WHERE status = 'open' OR status = 'closed'`)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrUnsupportedOperation))
}
