package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The harness package's scenarios have golden traces in ../golden.
var harnessScenarios = filepath.Join("..", "harness", "testdata", "scenarios")

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	resp, err := executeJSON(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)

	var result TestResult
	decodeData(t, resp.Data, &result)
	assert.Equal(t, 0, result.Total)
	assert.NotNil(t, result.Scenarios)
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	out, err := execute(t, "test", harnessScenarios)
	require.NoError(t, err, "output: %s", out)
	assert.Contains(t, out, "✓ create_then_mint")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandGoldenMatchJSON(t *testing.T) {
	resp, err := executeJSON(t, "test", harnessScenarios, "--filter", "create_then_*")
	require.NoError(t, err)

	var result TestResult
	decodeData(t, resp.Data, &result)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, ScenarioResult{Name: "create_then_mint", Pass: true, Golden: "match"}, result.Scenarios[0])
}

func TestTestCommandInvalidFilter(t *testing.T) {
	_, err := execute(t, "test", harnessScenarios, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

const passingScenario = `
name: one_create
description: a single create
flow:
  - invoke: create_collection
    args: { name: Punks, symbol: PNK, wasm_name: icrc7 }
    expect: { case: ok }
assertions:
  - type: trace_count
    action: create_canister
    count: 1
`

func scenarioDir(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "scenarios")
	require.NoError(t, os.Mkdir(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestTestCommandUpdateThenMatch(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"one.yaml": passingScenario})
	golden := filepath.Join(filepath.Dir(dir), "golden", "one_create.golden")

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ one_create (golden updated)")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name":"one_create"`)

	_, err = execute(t, "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario_name":"one_create","trace":[]}`), 0o644))
	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandFailures(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"good.yaml":   passingScenario,
		"broken.yaml": "name: broken\n",
		"wrong.yml":   `name: wrong
description: expects the wrong case
flow:
  - invoke: create_collection
    args: { name: Punks, symbol: PNK, wasm_name: icrc7 }
    expect: { case: err }
assertions:
  - type: trace_count
    action: create_canister
    count: 1
`,
		"notes.txt": "ignored",
	})

	resp, err := executeJSON(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTestFailed, resp.Error.Code)

	var result TestResult
	decodeData(t, resp.Data, &result)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 2, result.Failed)

	byName := map[string]ScenarioResult{}
	for _, s := range result.Scenarios {
		byName[s.Name] = s
	}
	assert.Contains(t, byName["broken.yaml"].Errors[0], "failed to load scenario")
	assert.Contains(t, byName["wrong"].Errors[0], "expected case err, got ok")
	assert.True(t, byName["one_create"].Pass)
}
