package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/fangwd/restup/internal/querysql"
	"github.com/fangwd/restup/internal/record"
	"github.com/fangwd/restup/internal/request"
	"github.com/fangwd/restup/internal/schema"
	"github.com/fangwd/restup/internal/store"
)

// Update matches d.Rows against each other and against the table, inserts
// or updates each distinct row, and commits everything in one locked
// transaction. It returns one identity per submitted row, in order.
//
// Identities: the single-column primary key value, taken from the row or
// from the driver's insert id. Tables with a composite or no primary key
// report 0 for every row. A row merged into another reports that row's
// identity.
func (e *Engine) Update(ctx context.Context, d *request.Descriptor) ([]any, error) {
	const op = "update"
	t, err := e.table(op, d.Table)
	if err != nil {
		return nil, err
	}
	if len(d.Rows) == 0 {
		return []any{}, nil
	}

	rows := record.CloneRows(d.Rows)
	for i, row := range rows {
		for name := range row {
			if !t.HasColumn(name) {
				return nil, newError(KindSchema, op, t.Name, i, "unknown column %q", name)
			}
		}
	}

	if err := e.fields.Store(ctx, t.Name, rows); err != nil {
		return nil, classify(op, t.Name, err)
	}

	dedup, err := dedupe(op, t, rows)
	if err != nil {
		return nil, err
	}
	survivors := dedup.survivors()

	p, results, err := e.commit(ctx, t, rows, survivors)
	if err != nil {
		return nil, err
	}
	return e.identities(t, dedup, p, results), nil
}

// commit runs the locked section of Update and returns the executed plan
// with one result per statement.
func (e *Engine) commit(ctx context.Context, t *schema.TableDefinition, rows []record.Row, survivors []int) (*plan, []store.Result, error) {
	const op = "update"
	start := time.Now()

	sess, err := e.store.Checkout(ctx)
	if err != nil {
		return nil, nil, classify(op, t.Name, err)
	}

	fail := func(stage string, err error) (*plan, []store.Result, error) {
		sess.Abort(ctx)
		e.logger.Warn("update aborted",
			"table", t.Name,
			"stage", stage,
			"rows", len(rows),
			"error", err)
		return nil, nil, classify(op, t.Name, err)
	}

	if err := sess.Lock(ctx, t.Name); err != nil {
		return fail("lock", err)
	}
	disk, err := e.fetchDisk(ctx, sess, t, rows, survivors)
	if err != nil {
		return fail("fetch", err)
	}
	p, err := e.resolve(t, rows, survivors, disk)
	if err != nil {
		return fail("resolve", err)
	}

	batches := querysql.Batches(p.stmts, e.batchBytes)
	results := make([]store.Result, 0, len(p.stmts))
	for n, batch := range batches {
		if e.batchBytes > 0 && len(batch) == 1 && len(batch[0]) > e.batchBytes {
			e.logger.Warn("statement exceeds batch budget",
				"table", t.Name,
				"bytes", len(batch[0]),
				"budget", e.batchBytes)
		}
		res, err := sess.ExecBatch(ctx, batch)
		if err != nil {
			return fail(fmt.Sprintf("batch %d", n), err)
		}
		results = append(results, res...)
	}

	if err := sess.Commit(ctx); err != nil {
		return fail("commit", err)
	}
	if err := sess.Unlock(ctx); err != nil {
		return fail("unlock", err)
	}
	if err := sess.Release(); err != nil {
		e.logger.Warn("release connection", "table", t.Name, "error", err)
	}

	e.logger.Debug("update committed",
		"table", t.Name,
		"rows", len(rows),
		"statements", len(p.stmts),
		"batches", len(batches),
		"duration", time.Since(start))
	return p, results, nil
}

// identities maps statement results back to submitted rows. It panics with a
// *ConsistencyFault if a persisted row has no identity; the connection has
// already been released by then.
func (e *Engine) identities(t *schema.TableDefinition, dedup *dedupResult, p *plan, results []store.Result) []any {
	ids := make([]any, len(dedup.rows))
	if len(t.PrimaryKey) != 1 {
		for i := range ids {
			ids[i] = int64(0)
		}
		return ids
	}

	pk := t.PrimaryKey[0]
	col, _ := t.Column(pk)
	autoIncrement := e.store.Dialect().AutoIncrement(col)

	for n, i := range p.row {
		if v := dedup.rows[i][pk]; !record.IsEmpty(v) {
			ids[i] = v
			continue
		}
		if p.kind[n] == stmtInsert && autoIncrement && results[n].LastInsertID != 0 {
			ids[i] = results[n].LastInsertID
			continue
		}
		fault := &ConsistencyFault{Table: t.Name, Row: i}
		e.logger.Error("row persisted without identity",
			"table", t.Name,
			"row", i,
			"error", fault)
		panic(fault)
	}

	for i, j := range dedup.target {
		if i != j {
			ids[i] = ids[j]
		}
	}
	return ids
}
