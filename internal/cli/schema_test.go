package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const urlSchemaYAML = `tables:
  - name: url
    columns:
      - {name: id, type: INTEGER}
      - {name: url, type: TEXT}
      - {name: status}
    indexes:
      - {columns: [id], primaryKey: true}
      - {name: url_url, columns: [url], unique: true}
`

func TestSchemaValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(urlSchemaYAML), 0o644))

	out, err := execute(t, "", "schema", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 tables")
	assert.Contains(t, out, "url pk=[id] uc=[url]")

	out, err = execute(t, "", "--format", "json", "schema", "validate", path)
	require.NoError(t, err)
	var resp struct {
		Status string        `json:"status"`
		Data   SchemaSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, []TableSummary{{Name: "url", PrimaryKey: []string{"id"}, UniqueConstraint: []string{"url"}}}, resp.Data.Tables)
}

func TestSchemaValidate_Errors(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("tables:\n  - name: broken\n    columns:\n      - {name: \"1bad\"}\n"), 0o644))

	out, err := execute(t, "", "schema", "validate", bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeInvalidSchema)

	out, err = execute(t, "", "schema", "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, out, ErrCodeBadInput)
}

func TestSchemaDumpRoundTrip(t *testing.T) {
	db := fixtureDB(t)

	out, err := execute(t, "", "--dsn", db, "schema", "dump")
	require.NoError(t, err)
	assert.Contains(t, out, "name: account")

	path := filepath.Join(t.TempDir(), "dumped.yaml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o644))

	out, err = execute(t, "", "schema", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "5 tables")
	assert.Contains(t, out, "account pk=[id] uc=[email]")
	assert.Contains(t, out, "membership pk=[org_id user_id] uc=[org_id user_id]")

	// A dumped schema can stand in for introspection.
	_, err = execute(t, "", "--dsn", db, "--schema", path, "update", "/tag", "--data", `{"name":"x"}`)
	require.NoError(t, err)
}

func TestSchemaDumpJSON(t *testing.T) {
	db := fixtureDB(t)

	out, err := execute(t, "", "--dsn", db, "schema", "dump", "--encoding", "json")
	require.NoError(t, err)
	var doc struct {
		Tables []struct {
			Name string `json:"name"`
		} `json:"tables"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Tables, 5)
	assert.Equal(t, "account", doc.Tables[0].Name)

	_, err = execute(t, "", "--dsn", db, "schema", "dump", "--encoding", "cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
