package querysql

import (
	"fmt"
	"strings"
)

// Op is a comparison operator.
type Op string

const (
	OpEq   Op = "="
	OpNe   Op = "<>"
	OpGt   Op = ">"
	OpGe   Op = ">="
	OpLt   Op = "<"
	OpLe   Op = "<="
	OpLike Op = "LIKE"
)

// ParseOp maps the request grammar's operator suffix to an Op.
func ParseOp(name string) (Op, bool) {
	switch name {
	case "", "eq":
		return OpEq, true
	case "ne":
		return OpNe, true
	case "gt":
		return OpGt, true
	case "ge":
		return OpGe, true
	case "lt":
		return OpLt, true
	case "le":
		return OpLe, true
	case "like":
		return OpLike, true
	}
	return "", false
}

// Predicate is a WHERE clause fragment.
//
// Predicate is sealed; only this package's types implement it.
type Predicate interface {
	isPredicate()
}

// Compare is "column op value". A nil value compares with IS NULL / IS NOT NULL.
type Compare struct {
	Column string
	Op     Op
	Value  any
}

// In is "column IN (values...)".
type In struct {
	Column string
	Values []any
}

// And is a conjunction. An empty And is always true.
type And []Predicate

// Or is a disjunction. An empty Or is always false.
type Or []Predicate

// Raw is caller-supplied SQL, wrapped in parentheses when rendered.
type Raw string

func (Compare) isPredicate() {}
func (In) isPredicate()      {}
func (And) isPredicate()     {}
func (Or) isPredicate()      {}
func (Raw) isPredicate()     {}

// KeyMatch builds the predicate matching one key tuple.
func KeyMatch(columns []string, tuple []any) Predicate {
	if len(columns) == 1 {
		return Compare{Column: columns[0], Op: OpEq, Value: tuple[0]}
	}
	and := make(And, len(columns))
	for i, col := range columns {
		and[i] = Compare{Column: col, Op: OpEq, Value: tuple[i]}
	}
	return and
}

// KeyIn builds the predicate matching any of the key tuples. Single-column
// keys use IN; composite keys OR together one match per tuple.
func KeyIn(columns []string, tuples [][]any) Predicate {
	if len(columns) == 1 {
		values := make([]any, len(tuples))
		for i, t := range tuples {
			values[i] = t[0]
		}
		return In{Column: columns[0], Values: values}
	}
	or := make(Or, len(tuples))
	for i, t := range tuples {
		or[i] = KeyMatch(columns, t)
	}
	return or
}

// compilePredicate renders p. nested reports whether p is an operand of an
// enclosing And/Or, in which case compound predicates get parentheses.
func (c *Compiler) compilePredicate(p Predicate, cols columnChecker, nested bool) (string, error) {
	switch pred := p.(type) {
	case Compare:
		return c.compileCompare(pred, cols)
	case In:
		return c.compileIn(pred, cols)
	case And:
		if len(pred) == 0 {
			return "1 = 1", nil
		}
		return c.compileJunction([]Predicate(pred), " AND ", cols, nested)
	case Or:
		if len(pred) == 0 {
			return "1 = 0", nil
		}
		return c.compileJunction([]Predicate(pred), " OR ", cols, nested)
	case Raw:
		if err := checkRaw(string(pred)); err != nil {
			return "", err
		}
		return "(" + string(pred) + ")", nil
	case nil:
		return "1 = 1", nil
	default:
		return "", fmt.Errorf("%w: unsupported predicate %T", ErrInvalid, p)
	}
}

func (c *Compiler) compileCompare(cmp Compare, cols columnChecker) (string, error) {
	if err := cols.check(cmp.Column); err != nil {
		return "", err
	}
	ident := c.dialect.QuoteIdent(cmp.Column)
	if cmp.Value == nil {
		switch cmp.Op {
		case OpEq:
			return ident + " IS NULL", nil
		case OpNe:
			return ident + " IS NOT NULL", nil
		default:
			return "", fmt.Errorf("%w: %s %s NULL", ErrInvalid, cmp.Column, cmp.Op)
		}
	}
	switch cmp.Op {
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe, OpLike:
	default:
		return "", fmt.Errorf("%w: operator %q", ErrInvalid, cmp.Op)
	}
	lit, err := c.literal(cmp.Value)
	if err != nil {
		return "", err
	}
	return ident + " " + string(cmp.Op) + " " + lit, nil
}

func (c *Compiler) compileIn(in In, cols columnChecker) (string, error) {
	if err := cols.check(in.Column); err != nil {
		return "", err
	}
	if len(in.Values) == 0 {
		return "1 = 0", nil
	}
	lits := make([]string, len(in.Values))
	for i, v := range in.Values {
		lit, err := c.literal(v)
		if err != nil {
			return "", err
		}
		lits[i] = lit
	}
	return c.dialect.QuoteIdent(in.Column) + " IN (" + strings.Join(lits, ", ") + ")", nil
}

func (c *Compiler) compileJunction(preds []Predicate, sep string, cols columnChecker, nested bool) (string, error) {
	if len(preds) == 1 {
		return c.compilePredicate(preds[0], cols, nested)
	}
	parts := make([]string, len(preds))
	for i, p := range preds {
		s, err := c.compilePredicate(p, cols, true)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	s := strings.Join(parts, sep)
	if nested {
		s = "(" + s + ")"
	}
	return s, nil
}

func checkRaw(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: empty where clause", ErrInvalid)
	}
	if strings.Contains(s, ";") {
		return fmt.Errorf("%w: where clause contains ';'", ErrInvalid)
	}
	return nil
}
