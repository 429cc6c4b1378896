package querysql

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fangwd/restup/internal/record"
	"github.com/fangwd/restup/internal/schema"
	"github.com/fangwd/restup/internal/store"
)

func testCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	cat, err := schema.NewCatalog(schema.Document{Tables: []schema.TableDocument{
		{
			Name: "url",
			Columns: []schema.Column{
				{Name: "id", Type: "integer"},
				{Name: "url", Type: "text"},
				{Name: "status", Type: "integer"},
				{Name: "response", Type: "blob"},
			},
			Indexes: []schema.Index{
				{Columns: []string{"id"}, PrimaryKey: true},
				{Columns: []string{"url"}, Unique: true},
			},
		},
		{
			Name: "membership",
			Columns: []schema.Column{
				{Name: "org_id", Type: "integer"},
				{Name: "user_id", Type: "integer"},
				{Name: "role", Type: "text"},
			},
			Indexes: []schema.Index{
				{Columns: []string{"org_id", "user_id"}, PrimaryKey: true},
			},
		},
	}})
	require.NoError(t, err)
	return cat
}

func table(t *testing.T, cat *schema.Catalog, name string) *schema.TableDefinition {
	t.Helper()
	def, ok := cat.Table(name)
	require.True(t, ok, "table %s", name)
	return def
}

type statementCase struct {
	name  string
	build func(c *Compiler) (string, error)
}

func statementCases(t *testing.T) []statementCase {
	cat := testCatalog(t)
	url := table(t, cat, "url")
	membership := table(t, cat, "membership")

	return []statementCase{
		{"select_all", func(c *Compiler) (string, error) {
			return c.Select(Select{Table: url, Limit: 1})
		}},
		{"select_where_sort", func(c *Compiler) (string, error) {
			return c.Select(Select{
				Table:   url,
				Columns: []string{"id", "url"},
				Where: And{
					Compare{Column: "status", Op: OpGe, Value: 200},
					Compare{Column: "url", Op: OpLike, Value: "http://%"},
				},
				Sort:  []SortKey{{Column: "status", Desc: true}, {Column: "id"}},
				Limit: 10,
			})
		}},
		{"select_raw", func(c *Compiler) (string, error) {
			return c.Select(Select{Table: url, Where: Raw("status IS NULL OR status = 0")})
		}},
		{"select_by_keys", func(c *Compiler) (string, error) {
			stmts, err := c.SelectByKeys(url, []string{"id", "url"}, []Predicate{
				KeyMatch([]string{"id"}, []any{1}),
				KeyMatch([]string{"url"}, []any{"http://b"}),
			}, 0)
			if err != nil {
				return "", err
			}
			return stmts[0], nil
		}},
		{"select_by_composite_keys", func(c *Compiler) (string, error) {
			stmts, err := c.SelectByKeys(membership, []string{"org_id", "user_id"}, []Predicate{
				KeyMatch([]string{"org_id", "user_id"}, []any{1, 2}),
				KeyMatch([]string{"org_id", "user_id"}, []any{1, 3}),
			}, 0)
			if err != nil {
				return "", err
			}
			return stmts[0], nil
		}},
		{"insert", func(c *Compiler) (string, error) {
			return c.Insert(url, record.Row{"url": "it's", "status": 200, "id": 5})
		}},
		{"update_by_key", func(c *Compiler) (string, error) {
			return c.Update(url, record.Row{"id": 5, "status": 404, "response": nil},
				[]string{"id"}, KeyMatch([]string{"id"}, []any{5}))
		}},
		{"update_nothing_to_set", func(c *Compiler) (string, error) {
			return c.Update(url, record.Row{"id": 5}, []string{"id"}, KeyMatch([]string{"id"}, []any{5}))
		}},
		{"claim_update", func(c *Compiler) (string, error) {
			return c.Update(url, record.Row{"status": 1}, nil,
				KeyIn([]string{"id"}, [][]any{{1}, {2}, {3}}))
		}},
		{"claim_update_composite", func(c *Compiler) (string, error) {
			return c.Update(membership, record.Row{"role": "x"}, nil,
				KeyIn([]string{"org_id", "user_id"}, [][]any{{1, 2}, {3, 4}}))
		}},
	}
}

func TestCompile_Golden(t *testing.T) {
	dialects := []struct {
		name    string
		dialect Dialect
	}{
		{"sqlite", store.SQLite{}},
		{"mysql", store.MySQL{}},
	}

	for _, d := range dialects {
		t.Run(d.name, func(t *testing.T) {
			c := NewCompiler(d.dialect)
			var buf bytes.Buffer
			for _, tc := range statementCases(t) {
				stmt, err := tc.build(c)
				require.NoError(t, err, tc.name)
				fmt.Fprintf(&buf, "-- %s\n%s\n", tc.name, stmt)
			}

			g := goldie.New(t,
				goldie.WithFixtureDir("testdata/golden"),
				goldie.WithNameSuffix(".golden"),
			)
			g.Assert(t, d.name, buf.Bytes())
		})
	}
}

func TestCompile_UnknownColumn(t *testing.T) {
	cat := testCatalog(t)
	url := table(t, cat, "url")
	c := NewCompiler(store.SQLite{})

	_, err := c.Select(Select{Table: url, Columns: []string{"nope"}})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = c.Select(Select{Table: url, Where: Compare{Column: "nope", Op: OpEq, Value: 1}})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = c.Select(Select{Table: url, Sort: []SortKey{{Column: "nope"}}})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = c.Insert(url, record.Row{"id": 1, "nope": 2})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = c.Update(url, record.Row{"nope": 2}, nil, KeyMatch([]string{"id"}, []any{1}))
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestCompile_Invalid(t *testing.T) {
	cat := testCatalog(t)
	url := table(t, cat, "url")
	c := NewCompiler(store.SQLite{})

	_, err := c.Select(Select{Table: url, Where: Raw("1 = 1; DROP TABLE url")})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = c.Select(Select{Table: url, Where: Raw("  ")})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = c.Select(Select{Table: url, Where: Compare{Column: "status", Op: OpGt, Value: nil}})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = c.Select(Select{Table: url, Where: Compare{Column: "status", Op: "~", Value: 1}})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = c.Insert(url, record.Row{"status": struct{}{}})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = c.Insert(url, record.Row{})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = c.Update(url, record.Row{"status": 1}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = c.Select(Select{})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCompile_NullComparisons(t *testing.T) {
	cat := testCatalog(t)
	c := NewCompiler(store.SQLite{})

	sql, err := c.Select(Select{Table: table(t, cat, "url"), Where: Or{
		Compare{Column: "status", Op: OpEq, Value: nil},
		Compare{Column: "response", Op: OpNe, Value: nil},
	}})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "url" WHERE "status" IS NULL OR "response" IS NOT NULL`, sql)
}

func TestSelectByKeys_SplitsOnBudget(t *testing.T) {
	cat := testCatalog(t)
	url := table(t, cat, "url")
	c := NewCompiler(store.SQLite{})

	var matches []Predicate
	for i := 1; i <= 5; i++ {
		matches = append(matches, KeyMatch([]string{"id"}, []any{i}))
	}

	// Prefix is 29 bytes and each term 8, so two terms fit per statement.
	const budget = 29 + 8 + 4 + 8
	stmts, err := c.SelectByKeys(url, []string{"id"}, matches, budget)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`SELECT "id" FROM "url" WHERE "id" = 1 OR "id" = 2`,
		`SELECT "id" FROM "url" WHERE "id" = 3 OR "id" = 4`,
		`SELECT "id" FROM "url" WHERE "id" = 5`,
	}, stmts)
	for _, s := range stmts {
		assert.LessOrEqual(t, len(s), budget)
	}

	_, err = c.SelectByKeys(url, []string{"id"}, matches, 30)
	assert.ErrorIs(t, err, ErrTooLarge)

	stmts, err = c.SelectByKeys(url, []string{"id"}, nil, budget)
	require.NoError(t, err)
	assert.Empty(t, stmts)
}

func TestBatches(t *testing.T) {
	stmts := []string{"aaaa", "bbbb", "cccc", "dddddddddddd", "e"}

	assert.Equal(t, [][]string{stmts}, Batches(stmts, 0))
	assert.Nil(t, Batches(nil, 10))

	// "aaaa;\nbbbb" is 10 bytes.
	assert.Equal(t, [][]string{
		{"aaaa", "bbbb"},
		{"cccc"},
		{"dddddddddddd"},
		{"e"},
	}, Batches(stmts, 10))

	assert.Equal(t, [][]string{
		{"aaaa", "bbbb", "cccc"},
		{"dddddddddddd", "e"},
	}, Batches(stmts, 16))
}

func TestParseOp(t *testing.T) {
	for name, want := range map[string]Op{
		"": OpEq, "eq": OpEq, "ne": OpNe, "gt": OpGt, "ge": OpGe, "lt": OpLt, "le": OpLe, "like": OpLike,
	} {
		got, ok := ParseOp(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := ParseOp("between")
	assert.False(t, ok)
}
