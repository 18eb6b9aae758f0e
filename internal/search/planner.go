// Package search is the Search Planner/Executor: compiles a SearchQuery
// into a set of intersected subqueries over the per-leaf index tables,
// plus a narrow SQL-like dialect for simple textual queries.
//
// The "latest row satisfies the predicate" shape is grounded on
// internal/storage/convex/schema.go's IndexScanQuery CTE, adapted from a
// single temporal index table to Lattice's one-physical-table-per-leaf
// layout: each filter becomes its own subquery against the table that
// backs its field, and filters combine with SQL INTERSECT, mirroring how
// the teacher's query builds a "latest non-deleted version" predicate
// per index before joining back to documents.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/latticedb/lattice/internal/jsonflat"
	"github.com/latticedb/lattice/internal/model"
	"github.com/latticedb/lattice/internal/sqladapter"
)

// Repository is the subset of metadata access the planner needs.
type Repository interface {
	ListIndexTableMappings(ctx context.Context) ([]model.IndexTableMapping, error)
}

// compiledFilter is a single subquery plus its bound arguments.
type compiledFilter struct {
	subquery string
	args     []interface{}
}

// emptySubquery is substituted for any filter that cannot be satisfied
// by any indexed field, making the overall AND-combination empty without
// a special case at the call site.
const emptySubquery = "SELECT documentid FROM (SELECT '' AS documentid) AS empty_set WHERE 1=0"

func compileFilter(dialect sqladapter.Dialect, collectionID string, mappings []model.IndexTableMapping, f model.SearchFilter) compiledFilter {
	candidates := mappingsForField(mappings, f.Field)
	if len(candidates) == 0 {
		return compiledFilter{subquery: emptySubquery}
	}

	var parts []string
	var args []interface{}
	for _, m := range candidates {
		sub, subArgs, ok := compileAgainstTable(dialect, m, f)
		if !ok {
			continue
		}
		parts = append(parts, sub)
		args = append(args, collectionID)
		args = append(args, subArgs...)
	}
	if len(parts) == 0 {
		return compiledFilter{subquery: emptySubquery}
	}
	return compiledFilter{subquery: strings.Join(parts, " UNION "), args: args}
}

func mappingsForField(mappings []model.IndexTableMapping, field string) []model.IndexTableMapping {
	var out []model.IndexTableMapping
	for _, m := range mappings {
		if m.Path == field {
			out = append(out, m)
		}
	}
	return out
}

func compileAgainstTable(dialect sqladapter.Dialect, m model.IndexTableMapping, f model.SearchFilter) (string, []interface{}, bool) {
	table := sqladapter.QuoteIdentifier(dialect, m.TableName)
	base := fmt.Sprintf("SELECT documentid FROM %s WHERE collectionid = ?", table)

	switch f.Condition {
	case model.CondIsNull:
		return base + " AND value = ?", []interface{}{jsonflat.NullSentinel}, true
	case model.CondIsNotNull:
		return base + " AND value != ?", []interface{}{jsonflat.NullSentinel}, true
	case model.CondEquals:
		return base + " AND value = ?", []interface{}{fmt.Sprintf("%v", f.Value)}, true
	case model.CondNotEquals:
		return base + " AND value != ?", []interface{}{fmt.Sprintf("%v", f.Value)}, true
	case model.CondGreaterThan, model.CondGreaterThanOrEqual, model.CondLessThan, model.CondLessThanOrEqual:
		if m.DataType != model.LeafInteger && m.DataType != model.LeafNumber {
			return "", nil, false
		}
		op := map[model.SearchCondition]string{
			model.CondGreaterThan:        ">",
			model.CondGreaterThanOrEqual: ">=",
			model.CondLessThan:           "<",
			model.CondLessThanOrEqual:    "<=",
		}[f.Condition]
		return base + fmt.Sprintf(" AND CAST(value AS REAL) %s CAST(? AS REAL)", op), []interface{}{fmt.Sprintf("%v", f.Value)}, true
	case model.CondContains, model.CondStartsWith, model.CondEndsWith, model.CondLike:
		if m.DataType != model.LeafString {
			return "", nil, false
		}
		pattern := likePattern(f.Condition, fmt.Sprintf("%v", f.Value))
		return base + " AND value LIKE ? ESCAPE '\\'", []interface{}{pattern}, true
	default:
		return "", nil, false
	}
}

func likePattern(cond model.SearchCondition, value string) string {
	escaped := escapeLike(value)
	switch cond {
	case model.CondContains:
		return "%" + escaped + "%"
	case model.CondStartsWith:
		return escaped + "%"
	case model.CondEndsWith:
		return "%" + escaped
	default: // CondLike: caller's pattern is used verbatim, already a LIKE expression
		return value
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
