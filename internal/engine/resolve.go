package engine

import (
	"context"

	"github.com/fangwd/restup/internal/querysql"
	"github.com/fangwd/restup/internal/record"
	"github.com/fangwd/restup/internal/schema"
	"github.com/fangwd/restup/internal/store"
)

type stmtKind int

const (
	stmtInsert stmtKind = iota + 1
	stmtUpdate
)

// plan is the ordered statement list of one write call. stmts[i] was
// generated for rows[row[i]].
type plan struct {
	stmts []string
	row   []int
	kind  []stmtKind
}

func (p *plan) add(stmt string, row int, kind stmtKind) {
	p.stmts = append(p.stmts, stmt)
	p.row = append(p.row, row)
	p.kind = append(p.kind, kind)
}

// diskIndex holds the key columns of rows already on disk, by hash.
type diskIndex struct {
	pk map[record.KeyHash]record.Row
	uc map[record.KeyHash]record.Row
}

// fetchDisk reads the key columns of every on-disk row that shares a primary
// key or unique constraint with one of the surviving rows.
func (e *Engine) fetchDisk(ctx context.Context, sess *store.Session, t *schema.TableDefinition, rows []record.Row, survivors []int) (*diskIndex, error) {
	distinct := t.DistinctUnique()

	var matches []querysql.Predicate
	for _, i := range survivors {
		row := rows[i]
		if _, ok := keyHash(row, t.PrimaryKey); ok {
			matches = append(matches, querysql.KeyMatch(t.PrimaryKey, row.Tuple(t.PrimaryKey)))
		}
		if distinct {
			if _, ok := keyHash(row, t.UniqueConstraint); ok {
				matches = append(matches, querysql.KeyMatch(t.UniqueConstraint, row.Tuple(t.UniqueConstraint)))
			}
		}
	}

	selects, err := e.compiler.SelectByKeys(t, t.KeyColumns(), matches, e.batchBytes)
	if err != nil {
		return nil, err
	}

	idx := &diskIndex{
		pk: make(map[record.KeyHash]record.Row),
		uc: make(map[record.KeyHash]record.Row),
	}
	for _, query := range selects {
		found, err := sess.Query(ctx, query)
		if err != nil {
			return nil, err
		}
		for _, disk := range found {
			if h, ok := keyHash(disk, t.PrimaryKey); ok {
				idx.pk[h] = disk
			}
			if distinct {
				if h, ok := keyHash(disk, t.UniqueConstraint); ok {
					idx.uc[h] = disk
				}
			}
		}
	}
	e.logger.Debug("fetched disk keys",
		"table", t.Name,
		"selects", len(selects),
		"pk_matches", len(idx.pk),
		"uc_matches", len(idx.uc))
	return idx, nil
}

// resolve emits one statement per surviving row: an UPDATE by primary key,
// an UPDATE by unique constraint, or an INSERT. A unique constraint match
// copies the disk row's primary key into the submitted row.
func (e *Engine) resolve(t *schema.TableDefinition, rows []record.Row, survivors []int, disk *diskIndex) (*plan, error) {
	p := &plan{}
	ucExclude := append(append([]string(nil), t.PrimaryKey...), t.UniqueConstraint...)

	for _, i := range survivors {
		row := rows[i]

		if h, ok := keyHash(row, t.PrimaryKey); ok {
			if _, found := disk.pk[h]; found {
				stmt, err := e.compiler.Update(t, row, t.PrimaryKey,
					querysql.KeyMatch(t.PrimaryKey, row.Tuple(t.PrimaryKey)))
				if err != nil {
					return nil, rowError(err, i)
				}
				p.add(stmt, i, stmtUpdate)
				continue
			}
		}

		if t.DistinctUnique() {
			if h, ok := keyHash(row, t.UniqueConstraint); ok {
				if match, found := disk.uc[h]; found {
					for _, c := range t.PrimaryKey {
						row[c] = match[c]
					}
					stmt, err := e.compiler.Update(t, row, ucExclude,
						querysql.KeyMatch(t.UniqueConstraint, row.Tuple(t.UniqueConstraint)))
					if err != nil {
						return nil, rowError(err, i)
					}
					p.add(stmt, i, stmtUpdate)
					continue
				}
			}
		}

		stmt, err := e.compiler.Insert(t, row)
		if err != nil {
			return nil, rowError(err, i)
		}
		p.add(stmt, i, stmtInsert)
	}
	return p, nil
}

// rowError attaches the row index to a compiler error.
func rowError(err error, row int) error {
	return &rowErr{row: row, err: err}
}

type rowErr struct {
	row int
	err error
}

func (r *rowErr) Error() string { return r.err.Error() }
func (r *rowErr) Unwrap() error { return r.err }
