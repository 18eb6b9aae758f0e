// searchBySql implements the narrow SQL-like query dialect: SELECT * FROM
// documents WHERE <predicate> [ORDER BY <col> <ASC|DESC>] [LIMIT n]
// [OFFSET n]. Predicates are a chain of bare-field comparisons joined by
// AND; anything outside this grammar is rejected.
//
// The lexer/parser shape (rune-at-a-time scanner, recursive-descent
// parser) is grounded on internal/query/lexer.go and
// internal/query/parser.go, narrowed from that package's full
// boolean-expression grammar (AND/OR/NOT/parens) down to the flat
// AND-only chain spec's SQL-like path allows. The parser produces a
// model.SearchQuery directly; there is no separate AST or compile step.
package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/en"

	"github.com/latticedb/lattice/internal/blobstore"
	"github.com/latticedb/lattice/internal/errs"
	"github.com/latticedb/lattice/internal/model"
	"github.com/latticedb/lattice/internal/sqladapter"
)

// ExecuteSQL parses expression under the narrow dialect and runs it the
// same way a structured SearchQuery would, reusing Execute rather than
// compiling SQL text twice.
func ExecuteSQL(ctx context.Context, adapter sqladapter.Adapter, repo Repository, docs DocumentRepository, blobs blobstore.Store, collectionID, expression string) (model.SearchResult, error) {
	q, err := ParseSQL(collectionID, expression)
	if err != nil {
		return model.SearchResult{}, err
	}
	return Execute(ctx, adapter, repo, docs, blobs, q)
}

// sqlTokenType enumerates the narrow dialect's token kinds.
type sqlTokenType int

const (
	sqlEOF sqlTokenType = iota
	sqlIdent
	sqlStar
	sqlString
	sqlNumber
	sqlEquals
	sqlNotEquals
	sqlLess
	sqlLessEq
	sqlGreater
	sqlGreaterEq
)

type sqlToken struct {
	typ sqlTokenType
	val string
	pos int
}

// sqlLexer tokenizes the narrow dialect's input, the same rune-scanning
// shape as query.Lexer.
type sqlLexer struct {
	input string
	pos   int
	width int
}

func newSQLLexer(input string) *sqlLexer { return &sqlLexer{input: input} }

func (l *sqlLexer) next() rune {
	if l.pos >= len(l.input) {
		l.width = 0
		return 0
	}
	r := rune(l.input[l.pos])
	l.width = 1
	l.pos += l.width
	return r
}

func (l *sqlLexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	return rune(l.input[l.pos])
}

func (l *sqlLexer) backup() { l.pos -= l.width }

func (l *sqlLexer) skipSpace() {
	for {
		r := l.next()
		if r == 0 || !unicode.IsSpace(r) {
			l.backup()
			return
		}
	}
}

func (l *sqlLexer) nextToken() (sqlToken, error) {
	l.skipSpace()
	start := l.pos
	r := l.next()

	if r == 0 {
		return sqlToken{typ: sqlEOF, pos: start}, nil
	}

	switch r {
	case '*':
		return sqlToken{typ: sqlStar, val: "*", pos: start}, nil
	case '=':
		return sqlToken{typ: sqlEquals, val: "=", pos: start}, nil
	case '!':
		if l.peek() == '=' {
			l.next()
			return sqlToken{typ: sqlNotEquals, val: "!=", pos: start}, nil
		}
		return sqlToken{}, fmt.Errorf("unexpected '!' at %d", start)
	case '<':
		if l.peek() == '>' {
			l.next()
			return sqlToken{typ: sqlNotEquals, val: "<>", pos: start}, nil
		}
		if l.peek() == '=' {
			l.next()
			return sqlToken{typ: sqlLessEq, val: "<=", pos: start}, nil
		}
		return sqlToken{typ: sqlLess, val: "<", pos: start}, nil
	case '>':
		if l.peek() == '=' {
			l.next()
			return sqlToken{typ: sqlGreaterEq, val: ">=", pos: start}, nil
		}
		return sqlToken{typ: sqlGreater, val: ">", pos: start}, nil
	case '\'', '"':
		return l.readString(r, start)
	default:
		if unicode.IsDigit(r) || r == '-' {
			l.backup()
			return l.readNumber(start)
		}
		if unicode.IsLetter(r) || r == '_' {
			l.backup()
			return l.readIdent(start)
		}
		return sqlToken{}, fmt.Errorf("unexpected character %q at position %d", r, start)
	}
}

func (l *sqlLexer) readString(quote rune, start int) (sqlToken, error) {
	var sb strings.Builder
	for {
		r := l.next()
		if r == 0 {
			return sqlToken{}, fmt.Errorf("unterminated string starting at %d", start)
		}
		if r == quote {
			return sqlToken{typ: sqlString, val: sb.String(), pos: start}, nil
		}
		sb.WriteRune(r)
	}
}

func (l *sqlLexer) readNumber(start int) (sqlToken, error) {
	var sb strings.Builder
	if l.peek() == '-' {
		sb.WriteRune(l.next())
	}
	for {
		r := l.next()
		if !unicode.IsDigit(r) && r != '.' {
			if r != 0 {
				l.backup()
			}
			break
		}
		sb.WriteRune(r)
	}
	return sqlToken{typ: sqlNumber, val: sb.String(), pos: start}, nil
}

func (l *sqlLexer) readIdent(start int) (sqlToken, error) {
	var sb strings.Builder
	for {
		r := l.next()
		if r == 0 || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.') {
			if r != 0 {
				l.backup()
			}
			break
		}
		sb.WriteRune(r)
	}
	return sqlToken{typ: sqlIdent, val: sb.String(), pos: start}, nil
}

// sqlParser walks the narrow grammar's token stream and produces a
// model.SearchQuery directly, rather than an intermediate AST: the
// grammar is flat enough (one AND-chain, one optional ORDER BY, one
// optional LIMIT/OFFSET) that a separate compile step buys nothing.
type sqlParser struct {
	lex     *sqlLexer
	cur     sqlToken
	lastErr error
}

// ParseSQL parses the narrow dialect's expression into a SearchQuery
// scoped to collectionID. Anything outside the grammar yields
// errs.ErrUnsupportedOperation wrapped with UNSUPPORTED_SQL detail.
func ParseSQL(collectionID, expression string) (model.SearchQuery, error) {
	p := &sqlParser{lex: newSQLLexer(expression)}
	if err := p.advance(); err != nil {
		return model.SearchQuery{}, unsupportedSQL(err)
	}

	if err := p.expectKeyword("SELECT"); err != nil {
		return model.SearchQuery{}, unsupportedSQL(err)
	}
	if p.cur.typ != sqlStar {
		return model.SearchQuery{}, unsupportedSQL(fmt.Errorf("expected '*' at position %d", p.cur.pos))
	}
	if err := p.advance(); err != nil {
		return model.SearchQuery{}, unsupportedSQL(err)
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return model.SearchQuery{}, unsupportedSQL(err)
	}
	if err := p.expectKeyword("DOCUMENTS"); err != nil {
		return model.SearchQuery{}, unsupportedSQL(err)
	}
	if err := p.expectKeyword("WHERE"); err != nil {
		return model.SearchQuery{}, unsupportedSQL(err)
	}

	q := model.SearchQuery{CollectionID: collectionID}

	for {
		f, err := p.parseComparison()
		if err != nil {
			return model.SearchQuery{}, unsupportedSQL(err)
		}
		q.Filters = append(q.Filters, f)
		if p.curIsKeyword("AND") {
			if err := p.advance(); err != nil {
				return model.SearchQuery{}, unsupportedSQL(err)
			}
			continue
		}
		break
	}

	if p.curIsKeyword("ORDER") {
		if err := p.advance(); err != nil {
			return model.SearchQuery{}, unsupportedSQL(err)
		}
		if err := p.expectKeyword("BY"); err != nil {
			return model.SearchQuery{}, unsupportedSQL(err)
		}
		if p.cur.typ != sqlIdent {
			return model.SearchQuery{}, unsupportedSQL(fmt.Errorf("expected order column at position %d", p.cur.pos))
		}
		col, ok := orderColumnFor(p.cur.val)
		if !ok {
			return model.SearchQuery{}, unsupportedSQL(fmt.Errorf("unsupported order column %q", p.cur.val))
		}
		if err := p.advance(); err != nil {
			return model.SearchQuery{}, unsupportedSQL(err)
		}
		dir := model.Ascending
		if p.curIsKeyword("DESC") {
			dir = model.Descending
			if err := p.advance(); err != nil {
				return model.SearchQuery{}, unsupportedSQL(err)
			}
		} else if p.curIsKeyword("ASC") {
			if err := p.advance(); err != nil {
				return model.SearchQuery{}, unsupportedSQL(err)
			}
		}
		q.Ordering = &model.Ordering{Column: col, Direction: dir}
	}

	if p.curIsKeyword("LIMIT") {
		if err := p.advance(); err != nil {
			return model.SearchQuery{}, unsupportedSQL(err)
		}
		n, err := p.expectInt()
		if err != nil {
			return model.SearchQuery{}, unsupportedSQL(err)
		}
		q.MaxResults = &n
	}

	if p.curIsKeyword("OFFSET") {
		if err := p.advance(); err != nil {
			return model.SearchQuery{}, unsupportedSQL(err)
		}
		n, err := p.expectInt()
		if err != nil {
			return model.SearchQuery{}, unsupportedSQL(err)
		}
		q.Skip = &n
	}

	if p.cur.typ != sqlEOF {
		return model.SearchQuery{}, unsupportedSQL(fmt.Errorf("unexpected trailing input at position %d", p.cur.pos))
	}

	return q, nil
}

func (p *sqlParser) advance() error {
	tok, err := p.lex.nextToken()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *sqlParser) curIsKeyword(kw string) bool {
	return p.cur.typ == sqlIdent && strings.EqualFold(p.cur.val, kw)
}

func (p *sqlParser) expectKeyword(kw string) error {
	if !p.curIsKeyword(kw) {
		return fmt.Errorf("expected %q at position %d, got %q", kw, p.cur.pos, p.cur.val)
	}
	return p.advance()
}

func (p *sqlParser) expectInt() (int, error) {
	if p.cur.typ != sqlNumber {
		return 0, fmt.Errorf("expected integer at position %d", p.cur.pos)
	}
	n, err := strconv.Atoi(p.cur.val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q at position %d", p.cur.val, p.cur.pos)
	}
	return n, p.advance()
}

func (p *sqlParser) parseComparison() (model.SearchFilter, error) {
	if p.cur.typ != sqlIdent || isReservedWord(p.cur.val) {
		return model.SearchFilter{}, fmt.Errorf("expected field name at position %d", p.cur.pos)
	}
	field := strings.ToLower(p.cur.val)
	if err := p.advance(); err != nil {
		return model.SearchFilter{}, err
	}

	// LIKE is spelled as a keyword rather than a symbolic operator.
	if p.curIsKeyword("LIKE") {
		if err := p.advance(); err != nil {
			return model.SearchFilter{}, err
		}
		if p.cur.typ != sqlString {
			return model.SearchFilter{}, fmt.Errorf("expected string literal after LIKE at position %d", p.cur.pos)
		}
		val := p.cur.val
		return model.SearchFilter{Field: field, Condition: model.CondLike, Value: val}, p.advance()
	}

	cond, ok := conditionFor(p.cur.typ)
	if !ok {
		return model.SearchFilter{}, fmt.Errorf("expected comparison operator at position %d, got %q", p.cur.pos, p.cur.val)
	}
	if err := p.advance(); err != nil {
		return model.SearchFilter{}, err
	}

	switch p.cur.typ {
	case sqlString:
		val := resolveRelativeDate(p.cur.val)
		return model.SearchFilter{Field: field, Condition: cond, Value: val}, p.advance()
	case sqlNumber:
		n, err := strconv.ParseFloat(p.cur.val, 64)
		if err != nil {
			return model.SearchFilter{}, fmt.Errorf("invalid numeric literal %q at position %d", p.cur.val, p.cur.pos)
		}
		return model.SearchFilter{Field: field, Condition: cond, Value: n}, p.advance()
	default:
		return model.SearchFilter{}, fmt.Errorf("expected value at position %d", p.cur.pos)
	}
}

func conditionFor(t sqlTokenType) (model.SearchCondition, bool) {
	switch t {
	case sqlEquals:
		return model.CondEquals, true
	case sqlNotEquals:
		return model.CondNotEquals, true
	case sqlLess:
		return model.CondLessThan, true
	case sqlLessEq:
		return model.CondLessThanOrEqual, true
	case sqlGreater:
		return model.CondGreaterThan, true
	case sqlGreaterEq:
		return model.CondGreaterThanOrEqual, true
	default:
		return "", false
	}
}

func orderColumnFor(s string) (model.OrderColumn, bool) {
	switch strings.ToLower(s) {
	case "createdutc":
		return model.OrderByCreatedUtc, true
	case "lastupdateutc":
		return model.OrderByLastUpdateUtc, true
	case "name":
		return model.OrderByName, true
	default:
		return "", false
	}
}

var reservedWords = map[string]bool{
	"select": true, "from": true, "where": true, "order": true, "by": true,
	"asc": true, "desc": true, "limit": true, "offset": true, "and": true,
	"like": true, "documents": true,
}

func isReservedWord(s string) bool { return reservedWords[strings.ToLower(s)] }

func unsupportedSQL(cause error) error {
	return fmt.Errorf("search: UNSUPPORTED_SQL: %w: %v", errs.ErrUnsupportedOperation, cause)
}

// resolveRelativeDate rewrites a relative-date phrase like "3 days ago"
// into an RFC3339 timestamp comparable against date-valued leaves; any
// literal when.Parse cannot interpret as relative time is passed through
// unchanged, since most string predicates aren't dates at all.
func resolveRelativeDate(literal string) string {
	w := when.New(nil)
	w.Add(en.All...)
	result, err := w.Parse(literal, time.Now().UTC())
	if err != nil || result == nil {
		return literal
	}
	return result.Time.UTC().Format(time.RFC3339)
}
