package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fangwd/restup/internal/record"
	"github.com/fangwd/restup/internal/schema"
)

func tableFor(t *testing.T, td schema.TableDocument) *schema.TableDefinition {
	t.Helper()
	cat, err := schema.NewCatalog(schema.Document{Tables: []schema.TableDocument{td}})
	require.NoError(t, err)
	def, ok := cat.Table(td.Name)
	require.True(t, ok)
	return def
}

func urlTable(t *testing.T) *schema.TableDefinition {
	return tableFor(t, schema.TableDocument{
		Name: "url",
		Columns: []schema.Column{
			{Name: "id", Type: "INTEGER"},
			{Name: "url", Type: "TEXT"},
			{Name: "status", Type: "INTEGER"},
		},
		Indexes: []schema.Index{
			{Columns: []string{"id"}, PrimaryKey: true},
			{Columns: []string{"url"}, Unique: true},
		},
	})
}

func TestDedupe_MergesInSubmissionOrder(t *testing.T) {
	rows := []record.Row{
		{"id": 1, "status": 200},
		{"url": "http://b"},
		{"id": 1, "url": "http://a"},
		{"url": "HTTP://A", "status": 301},
	}
	res, err := dedupe("update", urlTable(t), rows)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 0, 0}, res.target)
	assert.Equal(t, []int{0, 1}, res.survivors())
	if diff := cmp.Diff(record.Row{"id": 1, "url": "HTTP://A", "status": 301}, res.rows[0]); diff != "" {
		t.Errorf("merged row mismatch (-want +got):\n%s", diff)
	}
}

func TestDedupe_LaterRowGainsKeyThroughMerge(t *testing.T) {
	// Row 1 gives row 0 a unique value, so row 2 lands on row 0 as well.
	rows := []record.Row{
		{"id": 4},
		{"id": 4, "url": "http://x"},
		{"url": "http://x", "status": 1},
	}
	res, err := dedupe("update", urlTable(t), rows)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, res.target)
	assert.Equal(t, 1, res.rows[0]["status"])
}

func TestDedupe_BridgingRowFails(t *testing.T) {
	rows := []record.Row{
		{"id": 1},
		{"url": "http://b"},
		{"id": 1, "url": "http://b"},
	}
	_, err := dedupe("update", urlTable(t), rows)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 2, e.Row)
}

func TestDedupe_ConflictingKeyValueFails(t *testing.T) {
	rows := []record.Row{
		{"id": 1, "url": "http://a"},
		{"id": 1, "url": "http://b"},
	}
	_, err := dedupe("update", urlTable(t), rows)
	assert.True(t, IsValidationError(err), "%v", err)
}

func TestDedupe_IncompleteRows(t *testing.T) {
	_, err := dedupe("update", urlTable(t), []record.Row{{"status": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs (id) or (url)")

	// A null key column identifies nothing.
	_, err = dedupe("update", urlTable(t), []record.Row{{"id": nil, "status": 1}})
	assert.True(t, IsValidationError(err))

	noKeys := tableFor(t, schema.TableDocument{Name: "log", Columns: []schema.Column{{Name: "line"}}})
	_, err = dedupe("update", noKeys, []record.Row{{"line": "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "the table has none")
}

func TestDedupe_UniqueIgnoredWhenItIsThePrimaryKey(t *testing.T) {
	tag := tableFor(t, schema.TableDocument{
		Name:    "tag",
		Columns: []schema.Column{{Name: "name"}, {Name: "count"}},
		Indexes: []schema.Index{{Columns: []string{"name"}, PrimaryKey: true}},
	})
	res, err := dedupe("update", tag, []record.Row{{"name": "Go"}, {"name": "go", "count": 2}})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0}, res.target)
}
