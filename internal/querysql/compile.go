package querysql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fangwd/restup/internal/record"
	"github.com/fangwd/restup/internal/schema"
)

var (
	// ErrUnknownColumn is returned when a statement names a column the table
	// does not declare.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrInvalid is returned for malformed where, sort or value input.
	ErrInvalid = errors.New("invalid query")

	// ErrTooLarge is returned when a single key tuple cannot fit the byte
	// budget of a SELECT.
	ErrTooLarge = errors.New("key tuple exceeds byte budget")
)

// Dialect is the part of a SQL backend the compiler needs.
type Dialect interface {
	QuoteIdent(name string) string
	Literal(v any) (string, error)
	Placeholder() string
}

// SortKey orders results by one column.
type SortKey struct {
	Column string
	Desc   bool
}

// Select describes a single-table read.
type Select struct {
	Table *schema.TableDefinition

	// Columns to return; empty means every column.
	Columns []string

	Where Predicate
	Sort  []SortKey

	// Limit caps the result; zero or less means no LIMIT clause.
	Limit int
}

// Compiler renders statements for one dialect.
type Compiler struct {
	dialect Dialect
}

// NewCompiler creates a Compiler for the given dialect.
func NewCompiler(d Dialect) *Compiler {
	return &Compiler{dialect: d}
}

// Select renders a SELECT statement.
func (c *Compiler) Select(s Select) (string, error) {
	if s.Table == nil {
		return "", fmt.Errorf("%w: select without table", ErrInvalid)
	}
	cols := columnChecker{s.Table}

	var b strings.Builder
	b.WriteString("SELECT ")
	list, err := c.columnList(s.Columns, cols)
	if err != nil {
		return "", err
	}
	b.WriteString(list)
	b.WriteString(" FROM ")
	b.WriteString(c.dialect.QuoteIdent(s.Table.Name))

	if s.Where != nil {
		where, err := c.compilePredicate(s.Where, cols, false)
		if err != nil {
			return "", err
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	if len(s.Sort) > 0 {
		parts := make([]string, len(s.Sort))
		for i, k := range s.Sort {
			if err := cols.check(k.Column); err != nil {
				return "", err
			}
			parts[i] = c.dialect.QuoteIdent(k.Column)
			if k.Desc {
				parts[i] += " DESC"
			}
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}

	if s.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(s.Limit))
	}
	return b.String(), nil
}

// SelectByKeys renders the SELECTs that fetch every row matching any of
// matches. Each statement is at most budget bytes; matches are packed in
// order. A budget of zero or less means one statement.
func (c *Compiler) SelectByKeys(t *schema.TableDefinition, columns []string, matches []Predicate, budget int) ([]string, error) {
	if len(matches) == 0 {
		return nil, nil
	}
	cols := columnChecker{t}
	list, err := c.columnList(columns, cols)
	if err != nil {
		return nil, err
	}
	prefix := "SELECT " + list + " FROM " + c.dialect.QuoteIdent(t.Name) + " WHERE "
	const sep = " OR "

	var (
		stmts []string
		b     strings.Builder
		n     int
	)
	flush := func() {
		if n > 0 {
			stmts = append(stmts, b.String())
			b.Reset()
			n = 0
		}
	}
	for _, m := range matches {
		term, err := c.compilePredicate(m, cols, true)
		if err != nil {
			return nil, err
		}
		if budget > 0 && len(prefix)+len(term) > budget {
			return nil, fmt.Errorf("%w: %d bytes, budget %d", ErrTooLarge, len(prefix)+len(term), budget)
		}
		if n > 0 && budget > 0 && b.Len()+len(sep)+len(term) > budget {
			flush()
		}
		if n == 0 {
			b.WriteString(prefix)
		} else {
			b.WriteString(sep)
		}
		b.WriteString(term)
		n++
	}
	flush()
	return stmts, nil
}

// Insert renders an INSERT of every field present on row, in column order.
func (c *Compiler) Insert(t *schema.TableDefinition, row record.Row) (string, error) {
	names, err := rowColumns(t, row, nil)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: insert into %s without fields", ErrInvalid, t.Name)
	}

	idents := make([]string, len(names))
	values := make([]string, len(names))
	for i, name := range names {
		idents[i] = c.dialect.QuoteIdent(name)
		lit, err := c.literal(row[name])
		if err != nil {
			return "", fmt.Errorf("column %s: %w", name, err)
		}
		values[i] = lit
	}
	return "INSERT INTO " + c.dialect.QuoteIdent(t.Name) +
		" (" + strings.Join(idents, ", ") + ") VALUES (" + strings.Join(values, ", ") + ")", nil
}

// Update renders an UPDATE setting every field of values not in exclude,
// restricted by where. When nothing is left to set it returns the dialect
// placeholder, so statement positions stay aligned with rows.
func (c *Compiler) Update(t *schema.TableDefinition, values record.Row, exclude []string, where Predicate) (string, error) {
	names, err := rowColumns(t, values, exclude)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return c.dialect.Placeholder(), nil
	}
	if where == nil {
		return "", fmt.Errorf("%w: update of %s without where clause", ErrInvalid, t.Name)
	}

	sets := make([]string, len(names))
	for i, name := range names {
		lit, err := c.literal(values[name])
		if err != nil {
			return "", fmt.Errorf("column %s: %w", name, err)
		}
		sets[i] = c.dialect.QuoteIdent(name) + " = " + lit
	}
	cond, err := c.compilePredicate(where, columnChecker{t}, false)
	if err != nil {
		return "", err
	}
	return "UPDATE " + c.dialect.QuoteIdent(t.Name) + " SET " + strings.Join(sets, ", ") + " WHERE " + cond, nil
}

// Batches groups stmts in order so that each group's statements, joined by
// ";\n", fit in budget bytes. A statement larger than budget gets a group of
// its own. A budget of zero or less means one group.
func Batches(stmts []string, budget int) [][]string {
	if len(stmts) == 0 {
		return nil
	}
	if budget <= 0 {
		return [][]string{stmts}
	}
	var (
		out  [][]string
		cur  []string
		size int
	)
	for _, s := range stmts {
		add := len(s)
		if len(cur) > 0 {
			add += 2
		}
		if len(cur) > 0 && size+add > budget {
			out = append(out, cur)
			cur, size, add = nil, 0, len(s)
		}
		cur = append(cur, s)
		size += add
	}
	return append(out, cur)
}

func (c *Compiler) columnList(columns []string, cols columnChecker) (string, error) {
	if len(columns) == 0 {
		return "*", nil
	}
	idents := make([]string, len(columns))
	for i, name := range columns {
		if err := cols.check(name); err != nil {
			return "", err
		}
		idents[i] = c.dialect.QuoteIdent(name)
	}
	return strings.Join(idents, ", "), nil
}

func (c *Compiler) literal(v any) (string, error) {
	lit, err := c.dialect.Literal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return lit, nil
}

// rowColumns returns the fields of row not in exclude, in declaration order.
func rowColumns(t *schema.TableDefinition, row record.Row, exclude []string) ([]string, error) {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}
	names := make([]string, 0, len(row))
	for name := range row {
		if !t.HasColumn(name) {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Name, name)
		}
		if !skip[name] {
			names = append(names, name)
		}
	}
	t.SortColumns(names)
	return names, nil
}

type columnChecker struct {
	table *schema.TableDefinition
}

func (cc columnChecker) check(name string) error {
	if !cc.table.HasColumn(name) {
		return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, cc.table.Name, name)
	}
	return nil
}
