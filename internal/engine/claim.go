package engine

import (
	"context"
	"slices"

	"github.com/fangwd/restup/internal/querysql"
	"github.com/fangwd/restup/internal/record"
	"github.com/fangwd/restup/internal/request"
)

// Claim selects up to d.Limit rows matching d.Where and applies d.Update to
// them under the table lock, so no concurrent claim can return the same rows.
// At least one where column must be assigned by d.Update; otherwise the
// claimed rows would still match and be claimed again.
//
// The returned rows carry the updated values, plus the primary key columns
// even if d.Columns omits them.
func (e *Engine) Claim(ctx context.Context, d *request.Descriptor) ([]record.Row, error) {
	const op = "claim"
	t, err := e.table(op, d.Table)
	if err != nil {
		return nil, err
	}

	if len(d.Update) == 0 {
		return nil, newError(KindValidation, op, t.Name, -1, "nothing to update")
	}
	if d.HasRowID || d.Where.Raw != "" || len(d.Where.Conditions) == 0 {
		return nil, newError(KindValidation, op, t.Name, -1, "claim needs column conditions")
	}
	if !slices.ContainsFunc(d.Where.Columns(), func(c string) bool { return d.Update.Has(c) }) {
		return nil, newError(KindValidation, op, t.Name, -1,
			"update must assign one of the where columns %v", d.Where.Columns())
	}
	if len(t.PrimaryKey) == 0 {
		return nil, newError(KindValidation, op, t.Name, -1, "table has no primary key")
	}
	for name := range d.Update {
		if !t.HasColumn(name) {
			return nil, newError(KindSchema, op, t.Name, -1, "unknown column %q", name)
		}
	}

	columns := slices.Clone(d.Columns)
	if len(columns) > 0 {
		for _, c := range t.PrimaryKey {
			if !slices.Contains(columns, c) {
				columns = append(columns, c)
			}
		}
	}
	limit := d.Limit
	if limit <= 0 {
		limit = request.DefaultLimit
	}
	query, err := e.compiler.Select(querysql.Select{
		Table:   t,
		Columns: columns,
		Where:   d.Where.Predicate(),
		Sort:    d.Sort,
		Limit:   limit,
	})
	if err != nil {
		return nil, classify(op, t.Name, err)
	}

	sess, err := e.store.Checkout(ctx)
	if err != nil {
		return nil, classify(op, t.Name, err)
	}
	fail := func(stage string, err error) ([]record.Row, error) {
		sess.Abort(ctx)
		e.logger.Warn("claim aborted", "table", t.Name, "stage", stage, "error", err)
		return nil, classify(op, t.Name, err)
	}

	if err := sess.Lock(ctx, t.Name); err != nil {
		return fail("lock", err)
	}
	rows, err := sess.Query(ctx, query)
	if err != nil {
		return fail("select", err)
	}

	if len(rows) > 0 {
		tuples := make([][]any, len(rows))
		for i, row := range rows {
			tuples[i] = row.Tuple(t.PrimaryKey)
		}
		stmt, err := e.compiler.Update(t, d.Update, nil, querysql.KeyIn(t.PrimaryKey, tuples))
		if err != nil {
			return fail("build", err)
		}
		if _, err := sess.Exec(ctx, stmt); err != nil {
			return fail("update", err)
		}
	}

	if err := sess.Unlock(ctx); err != nil {
		return fail("unlock", err)
	}
	if err := sess.Release(); err != nil {
		e.logger.Warn("release connection", "table", t.Name, "error", err)
	}

	for _, row := range rows {
		for name, v := range d.Update {
			row[name] = v
		}
	}
	e.logger.Debug("claimed rows", "table", t.Name, "rows", len(rows), "limit", limit)

	if err := e.fields.Load(ctx, t.Name, rows); err != nil {
		return nil, classify(op, t.Name, err)
	}
	return rows, nil
}
