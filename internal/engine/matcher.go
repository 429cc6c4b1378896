package engine

import (
	"strings"

	"github.com/fangwd/restup/internal/record"
	"github.com/fangwd/restup/internal/schema"
)

// dedupResult is the outcome of matching the rows of one write call against
// each other.
type dedupResult struct {
	// rows are the working rows; a surviving row carries every field merged
	// into it.
	rows []record.Row

	// target maps each row to the row it was merged into, or to itself.
	target []int
}

// survivors returns the rows that produce SQL, in submission order.
func (r *dedupResult) survivors() []int {
	out := make([]int, 0, len(r.rows))
	for i, j := range r.target {
		if i == j {
			out = append(out, i)
		}
	}
	return out
}

// keyHash is record.HashKey, except that a key with a null column
// identifies nothing.
func keyHash(row record.Row, columns []string) (record.KeyHash, bool) {
	for _, c := range columns {
		if v, ok := row[c]; !ok || v == nil {
			return "", false
		}
	}
	return record.HashKey(row, columns)
}

// matcher tracks the first row seen for each primary key and unique
// constraint hash.
type matcher struct {
	op      string
	table   *schema.TableDefinition
	rows    []record.Row
	pkFirst map[record.KeyHash]int
	ucFirst map[record.KeyHash]int
}

// dedupe merges rows that address the same record. Rows are modified in
// place. Rows that disagree on a key column they share, or that bridge two
// earlier rows, fail the whole call.
func dedupe(op string, t *schema.TableDefinition, rows []record.Row) (*dedupResult, error) {
	m := &matcher{
		op:      op,
		table:   t,
		rows:    rows,
		pkFirst: make(map[record.KeyHash]int, len(rows)),
		ucFirst: make(map[record.KeyHash]int, len(rows)),
	}
	res := &dedupResult{rows: rows, target: make([]int, len(rows))}

	for i, row := range rows {
		pk, hasPK := m.pkHash(row)
		uc, hasUC := m.ucHash(row)
		if !hasPK && !hasUC {
			return nil, newError(KindValidation, op, t.Name, i,
				"incomplete row: needs %s", describeKeys(t))
		}

		j := -1
		if hasPK {
			if k, ok := m.pkFirst[pk]; ok {
				j = k
			}
		}
		if hasUC {
			if k, ok := m.ucFirst[uc]; ok {
				if j >= 0 && j != k {
					return nil, newError(KindValidation, op, t.Name, i,
						"inconsistent keys: matches row %d by primary key and row %d by unique constraint", j, k)
				}
				j = k
			}
		}

		if j < 0 {
			res.target[i] = i
			if err := m.register(i); err != nil {
				return nil, err
			}
			continue
		}

		for _, c := range t.KeyColumns() {
			if rows[j].Has(c) && row.Has(c) && !record.SameKey(rows[j], row, []string{c}) {
				return nil, newError(KindValidation, op, t.Name, i,
					"inconsistent keys: %s differs from row %d", c, j)
			}
		}
		rows[j].Merge(row)
		res.target[i] = j

		// The merged row may now carry a key it lacked before.
		if err := m.register(j); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (m *matcher) pkHash(row record.Row) (record.KeyHash, bool) {
	return keyHash(row, m.table.PrimaryKey)
}

func (m *matcher) ucHash(row record.Row) (record.KeyHash, bool) {
	if !m.table.DistinctUnique() {
		return "", false
	}
	return keyHash(row, m.table.UniqueConstraint)
}

// register records row j as the first occurrence of its hashes.
func (m *matcher) register(j int) error {
	if h, ok := m.pkHash(m.rows[j]); ok {
		if k, seen := m.pkFirst[h]; seen && k != j {
			return newError(KindValidation, m.op, m.table.Name, j,
				"inconsistent keys: primary key already used by row %d", k)
		}
		m.pkFirst[h] = j
	}
	if h, ok := m.ucHash(m.rows[j]); ok {
		if k, seen := m.ucFirst[h]; seen && k != j {
			return newError(KindValidation, m.op, m.table.Name, j,
				"inconsistent keys: unique constraint already used by row %d", k)
		}
		m.ucFirst[h] = j
	}
	return nil
}

func describeKeys(t *schema.TableDefinition) string {
	var parts []string
	if len(t.PrimaryKey) > 0 {
		parts = append(parts, "("+strings.Join(t.PrimaryKey, ", ")+")")
	}
	if t.DistinctUnique() {
		parts = append(parts, "("+strings.Join(t.UniqueConstraint, ", ")+")")
	}
	if len(parts) == 0 {
		return "a key, but the table has none"
	}
	return strings.Join(parts, " or ")
}
