package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mintfactory/internal/ir"
)

var unit1 = ir.UnitIDFromSeq(0).String()

func createStep(args map[string]any, expect *ExpectClause) FlowStep {
	return FlowStep{Invoke: InvokeCreate, Args: args, Expect: expect}
}

func punks() map[string]any {
	return map[string]any{"name": "Punks", "symbol": "PNK", "wasm_name": "icrc7"}
}

func mintTo(unit string, id int) map[string]any {
	return map[string]any{
		"id":            id,
		"name":          "Punk",
		"image":         "ipfs://punk",
		"to":            map[string]any{"owner": "@bob"},
		"canister_name": "icrc7",
		"canister_id":   unit,
	}
}

func TestScenarioFiles(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.NotEmpty(t, result.Trace)
		})
	}
}

func TestRun_TraceShape(t *testing.T) {
	scenario := &Scenario{
		Name: "shape",
		Flow: []FlowStep{
			createStep(punks(), nil),
			{Invoke: InvokeMint, Args: mintTo("$unit1", 1)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, []string{unit1}, result.Units)

	var kinds, actions []string
	for _, ev := range result.Trace {
		kinds = append(kinds, ev.Type)
		actions = append(actions, ev.Action)
	}
	assert.Equal(t, []string{
		EventInvocation, EventCall, EventCall, EventCall, EventCompletion,
		EventInvocation, EventCall, EventCall, EventCompletion,
	}, kinds)
	assert.Equal(t, []string{
		InvokeCreate, "create_canister", "install_code", "update_settings", "",
		InvokeMint, "canister_info", "icrc7_mint", "",
	}, actions)

	first := result.Trace[0]
	assert.Equal(t, 1, first.Step)
	assert.Equal(t, ir.DerivePrincipal(DefaultCaller).String(), first.Caller)
	assert.Equal(t, "$unit1", result.Trace[5].Args["canister_id"], "trace keeps args as written")

	call := result.Trace[1]
	assert.Equal(t, unit1, call.Target)
	assert.Equal(t, ir.CallReplied, call.Outcome)
	assert.Equal(t, int64(1), call.Seq)

	done, ok := result.Completion(2)
	require.True(t, ok)
	assert.Equal(t, CaseOK, done.OutputCase)
	assert.Equal(t, map[string]any{"id": "1"}, done.Result)
}

func TestRun_FailedExpectations(t *testing.T) {
	scenario := &Scenario{
		Name: "wrong",
		Flow: []FlowStep{
			createStep(punks(), &ExpectClause{Case: CaseErr}),
			createStep(punks(), &ExpectClause{Case: CaseOK, Result: map[string]any{"ownership": "code_installed"}}),
			createStep(punks(), &ExpectClause{Case: CaseOK, Message: "nope"}),
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "flow step 1: expected case err, got ok")
	assert.Contains(t, result.Errors[1], "flow step 2: expected result")
	assert.Contains(t, result.Errors[2], `flow step 3: expected message containing "nope"`)
}

func TestRun_Faults(t *testing.T) {
	t.Run("times limits the fault", func(t *testing.T) {
		scenario := &Scenario{
			Name:   "once",
			Faults: []Fault{{Op: "install_code", Code: "CanisterError", Message: "boom", Times: 1}},
			Flow: []FlowStep{
				createStep(punks(), &ExpectClause{Case: CaseErr, Message: "boom"}),
				createStep(punks(), &ExpectClause{Case: CaseOK}),
			},
		}

		result, err := Run(scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, "errors: %v", result.Errors)
		assert.Equal(t, []string{ir.UnitIDFromSeq(1).String()}, result.Units)
	})

	t.Run("call fault by method", func(t *testing.T) {
		scenario := &Scenario{
			Name:   "paused",
			Faults: []Fault{{Op: "call", Method: "icrc7_mint", Code: "CanisterReject", Message: "paused"}},
			Flow: []FlowStep{
				createStep(punks(), nil),
				{Invoke: InvokeMint, Args: mintTo("$unit1", 1), Expect: &ExpectClause{Case: CaseErr, Message: "paused"}},
			},
		}

		result, err := Run(scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, "errors: %v", result.Errors)
	})
}

func TestRun_Options(t *testing.T) {
	handOff := false
	verify := false
	scenario := &Scenario{
		Name: "options",
		Options: Options{
			CreateCycles:     1_000,
			HandOff:          &handOff,
			VerifyModuleKind: &verify,
		},
		Flow: []FlowStep{
			createStep(punks(), &ExpectClause{Case: CaseOK, Result: map[string]any{"ownership": "code_installed"}}),
			{Invoke: InvokeMint, Args: mintTo("$unit1", 1), Expect: &ExpectClause{Case: CaseOK}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Action: "update_settings", Count: 0},
			{Type: AssertTraceCount, Action: "canister_info", Count: 0},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ExecutionErrors(t *testing.T) {
	tests := []struct {
		name   string
		step   FlowStep
		errMsg string
	}{
		{"undefined unit", FlowStep{Invoke: InvokeMint, Args: mintTo("$unit1", 1)}, "$unit1 is not defined"},
		{"bad unit reference", FlowStep{Invoke: InvokeMint, Args: mintTo("$unitX", 1)}, `invalid unit reference "$unitX"`},
		{"unknown arg", createStep(map[string]any{"colour": "red"}, nil), "decode args"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(&Scenario{Name: tt.name, Flow: []FlowStep{tt.step}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/create_then_mint.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := (&TraceSnapshot{ScenarioName: scenario.Name, Trace: first.Trace}).Marshal()
	require.NoError(t, err)
	b, err := (&TraceSnapshot{ScenarioName: scenario.Name, Trace: second.Trace}).Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ModulesDir(t *testing.T) {
	_, err := Run(&Scenario{Name: "bad", ModulesDir: t.TempDir(), Flow: []FlowStep{createStep(punks(), nil)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load modules")
}
