package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cliEnv runs commands against one throwaway store.
type cliEnv struct {
	t         *testing.T
	dataDir   string
	configDir string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	return &cliEnv{t: t, dataDir: t.TempDir(), configDir: t.TempDir()}
}

// run executes args and returns stdout.
func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--data-dir", e.dataDir, "--config", e.configDir}, args...))
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// runJSON executes args with --format json and decodes the data payload.
func (e *cliEnv) runJSON(target any, args ...string) {
	e.t.Helper()
	out, err := e.run(append([]string{"--format", "json"}, args...)...)
	require.NoError(e.t, err, out)

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp))
	require.Equal(e.t, "ok", resp.Status)
	require.NoError(e.t, json.Unmarshal(resp.Data, target))
}

func TestRecordsCommands(t *testing.T) {
	env := newCLIEnv(t)

	var inserted insertResult
	env.runJSON(&inserted, "insert", "body/weight", "--values", `{"_metric":1008,"value":71.5,"time":1000}`)
	assert.Equal(t, "org.lineageos.mod.health/body/1008/1", inserted.URI)

	var rows RowsData
	env.runJSON(&rows, "query", "body/weight", "--projection", "_id,value")
	assert.Equal(t, []string{"_id", "value"}, rows.Columns)
	require.Len(t, rows.Rows, 1)
	assert.Equal(t, []any{float64(1), 71.5}, rows.Rows[0])

	var updated countResult
	env.runJSON(&updated, "update", "body/weight/1", "--values", `{"value":70.9}`)
	assert.Equal(t, int64(1), updated.Count)

	env.runJSON(&rows, "query", "body/weight", "--projection", "value", "--where", "value < ?", "--arg", "71")
	require.Len(t, rows.Rows, 1)
	assert.Equal(t, 70.9, rows.Rows[0][0])

	var deleted countResult
	env.runJSON(&deleted, "delete", "body/weight")
	assert.Equal(t, int64(1), deleted.Count)

	env.runJSON(&rows, "query", "body/weight")
	assert.Empty(t, rows.Rows)
}

func TestRecordsCommands_Text(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("insert", "mindfulness/mood", "--values", `{"_metric":4002,"mood":1,"time":5}`)
	require.NoError(t, err)
	assert.Equal(t, "org.lineageos.mod.health/mindfulness/4002/1\n", out)

	out, err = env.run("query", "mindfulness/mood", "--projection", "_id,mood")
	require.NoError(t, err)
	assert.Contains(t, out, "_id  mood")
	assert.Contains(t, out, "1    1")
}

func TestInsertCommand_File(t *testing.T) {
	env := newCLIEnv(t)
	file := filepath.Join(t.TempDir(), "nights.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
- {_metric: 4003, duration: 420, time: 1}
- {_metric: 4003, duration: 390, time: 2}
`), 0o644))

	var res countResult
	env.runJSON(&res, "insert", "mindfulness/sleep", "--file", file)
	assert.Equal(t, int64(2), res.Count)

	var rows RowsData
	env.runJSON(&rows, "query", "mindfulness/sleep", "--projection", "duration", "--sort", "time ASC")
	require.Len(t, rows.Rows, 2)
	assert.Equal(t, float64(420), rows.Rows[0][0])
}

func TestInsertCommand_RequiresOneSource(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("insert", "body/weight")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "exactly one of --values or --file")
}

func TestInsertCommand_ValidationFailure(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("insert", "body/weight", "--values", `{"_metric":1008,"value":-3}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "VALIDATION", ErrorCode(err))
}

func TestQueryCommand_RejectsInjectedSelection(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("query", "body/weight", "--where", "1=1; DROP TABLE body")
	require.Error(t, err)
	assert.Equal(t, "INVALID_INPUT", ErrorCode(err))
}

func TestAccessCommands(t *testing.T) {
	env := newCLIEnv(t)
	const tracker = "org.example.tracker"

	var granted insertResult
	env.runJSON(&granted, "access", "grant", tracker, "weight", "read")
	assert.NotEmpty(t, granted.URI)

	// The tracker can read but its writes are dropped.
	var inserted insertResult
	env.runJSON(&inserted, "--as", tracker, "insert", "body/weight", "--values", `{"_metric":1008,"value":70}`)
	assert.Empty(t, inserted.URI)

	out, err := env.run("--as", tracker, "insert", "body/weight", "--values", `{"_metric":1008,"value":70}`)
	require.NoError(t, err)
	assert.Equal(t, "denied\n", out)

	var rows RowsData
	env.runJSON(&rows, "access", "list", tracker)
	require.Len(t, rows.Rows, 1)

	var revoked countResult
	env.runJSON(&revoked, "access", "revoke", tracker)
	assert.Equal(t, int64(1), revoked.Count)

	env.runJSON(&inserted, "--as", tracker, "insert", "body/weight", "--values", `{"_metric":1008,"value":70}`)
	assert.Equal(t, "org.lineageos.mod.health/body/1008/1", inserted.URI)
}

func TestAccessGrant_InvalidArguments(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("access", "grant", "org.a", "weight", "admin")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid permission")

	_, err = env.run("access", "grant", "org.a", "levitation", "read")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid metric")
}

func TestProfileCommands(t *testing.T) {
	env := newCLIEnv(t)

	var set insertResult
	env.runJSON(&set, "profile", "set", "--values", `{"blood_type":2,"height":1.82}`)
	assert.NotEmpty(t, set.URI)

	out, err := env.run("profile", "get")
	require.NoError(t, err)
	assert.Contains(t, out, "blood_type: 2")
	assert.Contains(t, out, "height: 1.82")

	var reset countResult
	env.runJSON(&reset, "profile", "reset")
	assert.Equal(t, int64(1), reset.Count)
}

func TestBatchCommand(t *testing.T) {
	env := newCLIEnv(t)
	file := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`operations:
  - op: insert
    uri: body/weight
    values: {_metric: 1008, value: 71.5}
  - op: insert
    uri: body/weight
    values: {_metric: 1008, value: 71.0}
  - op: delete
    uri: body/weight/1
`), 0o644))

	out, err := env.run("batch", file)
	require.NoError(t, err)
	assert.Equal(t, "1: org.lineageos.mod.health/body/1008/1\n2: org.lineageos.mod.health/body/1008/2\n3: 1 row(s)\n", out)

	var rows RowsData
	env.runJSON(&rows, "query", "body/weight", "--projection", "_id")
	require.Len(t, rows.Rows, 1)
	assert.Equal(t, float64(2), rows.Rows[0][0])
}

func TestBatchCommand_Atomic(t *testing.T) {
	env := newCLIEnv(t)
	file := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`operations:
  - op: insert
    uri: body/weight
    values: {_metric: 1008, value: 71.5}
  - op: insert
    uri: body/weight
    values: {_metric: 1008, value: -1}
`), 0o644))

	_, err := env.run("batch", file)
	require.Error(t, err)
	assert.Equal(t, "VALIDATION", ErrorCode(err))

	var rows RowsData
	env.runJSON(&rows, "query", "body/weight")
	assert.Empty(t, rows.Rows)
}

func TestCheckSQLCommand(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("check-sql", "value > ? AND time < ?")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	_, err = env.run("check-sql", "value > (select 1)")
	require.Error(t, err)
	assert.Equal(t, "INVALID_INPUT", ErrorCode(err))

	_, err = env.run("check-sql", "--single", "value, time")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestConfigFile(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.configDir, "config.yaml"), []byte(`
authority: org.example.health
owner: org.example.admin
`), 0o644))

	var inserted insertResult
	env.runJSON(&inserted, "insert", "body/weight", "--values", `{"_metric":1008,"value":70}`)
	assert.Equal(t, "org.example.health/body/1008/1", inserted.URI)

	// The owner moved, so the default caller no longer manages access.
	out, err := env.run("--as", "org.lineageos.settings", "access", "grant", "org.a", "weight", "read")
	require.NoError(t, err)
	assert.Equal(t, "denied\n", out)

	var granted insertResult
	env.runJSON(&granted, "access", "grant", "org.a", "weight", "read")
	assert.Equal(t, "org.example.health/access/org.a/1008", granted.URI)
}

func TestConfigFile_InvalidLogLevel(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.configDir, "config.yaml"), []byte("log_level: loud\n"), 0o644))

	_, err := env.run("profile", "get")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "log_level")
}

func TestConfigEnvironment(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("HEALTHSTORE_AUTHORITY", "org.env.health")

	var inserted insertResult
	env.runJSON(&inserted, "insert", "body/weight", "--values", `{"_metric":1008,"value":70}`)
	assert.Equal(t, "org.env.health/body/1008/1", inserted.URI)
}

func TestConfigOwnerToken(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.configDir, "config.yaml"), []byte("owner_token: from-file\n"), 0o644))

	v, err := loadConfig(env.configDir, nil)
	require.NoError(t, err)
	settings, err := settingsFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "from-file", settings.OwnerToken)

	t.Setenv("HEALTHSTORE_OWNER_TOKEN", "from-env")
	v, err = loadConfig(env.configDir, nil)
	require.NoError(t, err)
	settings, err = settingsFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "from-env", settings.OwnerToken)
}
