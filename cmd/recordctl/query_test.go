package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const queryDoc = `{"entry":[{"resource":{"id":"a","status":"final"}},{"resource":{"id":"b"}}]}`

func runQuery(t *testing.T, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(queryDoc), 0o644))

	cmd := queryCmd(viper.New())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--file", path}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestQueryPath(t *testing.T) {
	out, err := runQuery(t, "entry.X.resource.id")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"path":"entry.0.resource.id","value":"a"},{"path":"entry.1.resource.id","value":"b"}]`, out)
	assert.Contains(t, out, "\n    {", "output is indented with four spaces")
}

func TestQueryKey(t *testing.T) {
	out, err := runQuery(t, "--key", "status")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"path":"entry.0.resource.status","value":"final"}]`, out)
}

func TestQueryArguments(t *testing.T) {
	_, err := runQuery(t)
	assert.Error(t, err, "a path or key is required")

	cmd := queryCmd(viper.New())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"entry"})
	assert.Error(t, cmd.Execute(), "a source is required")
}
