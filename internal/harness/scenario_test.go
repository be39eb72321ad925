package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalScenario = `
name: minimal
description: one create
flow:
  - invoke: create_collection
    args: { name: Punks, symbol: PNK, wasm_name: icrc7 }
    expect: { case: ok }
assertions:
  - type: trace_count
    action: create_canister
    count: 1
`

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario(writeScenario(t, minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Flow, 1)
	assert.Equal(t, InvokeCreate, s.Flow[0].Invoke)
	assert.Equal(t, "icrc7", s.Flow[0].Args["wasm_name"])
	assert.Equal(t, CaseOK, s.Flow[0].Expect.Case)
	assert.Nil(t, s.Funds)
	assert.Nil(t, s.Options.HandOff)
}

func TestLoadScenario_Options(t *testing.T) {
	s, err := LoadScenario(writeScenario(t, `
name: opts
description: options and faults
funds: 0
options:
  hand_off: false
  create_cycles: 42
faults:
  - op: call
    method: icrc7_mint
    code: CanisterReject
    message: paused
    times: 1
flow:
  - invoke: create_collection
    args: {}
assertions:
  - type: outcome
    step: 1
    case: err
`))
	require.NoError(t, err)

	require.NotNil(t, s.Funds)
	assert.Equal(t, uint64(0), *s.Funds)
	require.NotNil(t, s.Options.HandOff)
	assert.False(t, *s.Options.HandOff)
	assert.Equal(t, uint64(42), s.Options.CreateCycles)
	assert.Equal(t, Fault{Op: "call", Method: "icrc7_mint", Code: "CanisterReject", Message: "paused", Times: 1}, s.Faults[0])
}

func TestLoadScenario_ResolvesModulesDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "modules"), 0o755))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("modules_dir: modules\n"+minimalScenario), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "modules"), s.ModulesDir)
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "unknown field",
			content: minimalScenario + "assertion: []\n",
			errMsg:  "failed to parse YAML",
		},
		{
			name:    "missing name",
			content: "description: d\nflow: [{invoke: create_collection, args: {}}]\nassertions: [{type: trace_count, action: x}]\n",
			errMsg:  "name is required",
		},
		{
			name:    "missing flow",
			content: "name: n\ndescription: d\nassertions: [{type: trace_count, action: x}]\n",
			errMsg:  "flow list is required",
		},
		{
			name:    "missing assertions",
			content: "name: n\ndescription: d\nflow: [{invoke: create_collection, args: {}}]\n",
			errMsg:  "assertions list is required",
		},
		{
			name:    "unknown invoke",
			content: "name: n\ndescription: d\nflow: [{invoke: burn, args: {}}]\nassertions: [{type: trace_count, action: x}]\n",
			errMsg:  `unknown invoke "burn"`,
		},
		{
			name:    "missing args",
			content: "name: n\ndescription: d\nflow: [{invoke: create_collection}]\nassertions: [{type: trace_count, action: x}]\n",
			errMsg:  "args is required",
		},
		{
			name:    "caller on mint",
			content: "name: n\ndescription: d\nflow: [{invoke: mint_proxy, caller: alice, args: {}}]\nassertions: [{type: trace_count, action: x}]\n",
			errMsg:  "caller does not apply",
		},
		{
			name:    "case not valid for create",
			content: "name: n\ndescription: d\nflow: [{invoke: create_collection, args: {}, expect: {case: other}}]\nassertions: [{type: trace_count, action: x}]\n",
			errMsg:  `case "other" is not one of`,
		},
		{
			name:    "unknown fault op",
			content: "name: n\ndescription: d\nfaults: [{op: reboot, code: SysFatal, message: m}]\nflow: [{invoke: create_collection, args: {}}]\nassertions: [{type: trace_count, action: x}]\n",
			errMsg:  `unknown op "reboot"`,
		},
		{
			name:    "unknown reject code",
			content: "name: n\ndescription: d\nfaults: [{op: install_code, code: Oops, message: m}]\nflow: [{invoke: create_collection, args: {}}]\nassertions: [{type: trace_count, action: x}]\n",
			errMsg:  `unknown reject code "Oops"`,
		},
		{
			name:    "outcome step out of range",
			content: "name: n\ndescription: d\nflow: [{invoke: create_collection, args: {}}]\nassertions: [{type: outcome, step: 2, case: ok}]\n",
			errMsg:  "step must be between 1 and 1",
		},
		{
			name:    "unknown final_state key",
			content: "name: n\ndescription: d\nflow: [{invoke: create_collection, args: {}}]\nassertions: [{type: final_state, unit: $unit1, expect: {balance: 1}}]\n",
			errMsg:  `unknown final_state key "balance"`,
		},
		{
			name:    "unknown assertion type",
			content: "name: n\ndescription: d\nflow: [{invoke: create_collection, args: {}}]\nassertions: [{type: eventually}]\n",
			errMsg:  `unknown assertion type "eventually"`,
		},
		{
			name:    "missing modules dir",
			content: "modules_dir: nowhere\n" + minimalScenario,
			errMsg:  "modules_dir not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
