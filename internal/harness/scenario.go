package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/mintfactory/internal/hostrt"
	"github.com/roach88/mintfactory/internal/testutil"
)

// Scenario defines a conformance scenario: a flow of factory operations run
// against a fresh replica, followed by assertions on the trace and on the
// replica's final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RequestID prefixes the request id of every step: step N runs as
	// "<request_id>-N". Defaults to "req".
	RequestID string `yaml:"request_id,omitempty"`

	// Funds is the factory's starting cycle balance. Nil means enough for
	// ten collections at the default creation cost.
	Funds *uint64 `yaml:"funds,omitempty"`

	// ModulesDir replaces the built-in module catalog. Relative paths are
	// resolved against the scenario file's directory.
	ModulesDir string `yaml:"modules_dir,omitempty"`

	// Options tunes the factory and the proxy.
	Options Options `yaml:"options,omitempty"`

	// Faults are rejections injected in front of the replica.
	Faults []Fault `yaml:"faults,omitempty"`

	// Flow contains the operations to run, in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Options mirrors the factory and proxy settings a deployment can change.
// Unset fields keep the production defaults.
type Options struct {
	CreateCycles     uint64 `yaml:"create_cycles,omitempty"`
	HandOff          *bool  `yaml:"hand_off,omitempty"`
	CleanupOnFailure *bool  `yaml:"cleanup_on_failure,omitempty"`
	VerifyModuleKind *bool  `yaml:"verify_module_kind,omitempty"`
}

// Fault makes one runtime operation reject instead of reaching the replica.
type Fault struct {
	// Op is the runtime operation: create_unit, install_code,
	// update_settings, delete_unit, module_hash or call.
	Op string `yaml:"op"`

	// Method narrows a call fault to one method.
	Method string `yaml:"method,omitempty"`

	// Code is the reject code name, e.g. CanisterError.
	Code string `yaml:"code"`

	// Message is the reject message.
	Message string `yaml:"message"`

	// Times limits how often the fault fires. Zero means every time.
	Times int `yaml:"times,omitempty"`
}

// FlowStep invokes one factory operation and optionally validates its
// completion.
type FlowStep struct {
	// Invoke is create_collection or mint_proxy.
	Invoke string `yaml:"invoke"`

	// Caller is the identity making a create_collection request: a seed
	// name, a principal in text form, or "anonymous". Defaults to "alice".
	Caller string `yaml:"caller,omitempty"`

	// Args is the request body, in the same shape as the HTTP API.
	Args map[string]any `yaml:"args"`

	// Expect specifies the expected completion. If nil, any completion is
	// accepted.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected completion behavior.
type ExpectClause struct {
	// Case is the expected output case: ok or err for create_collection,
	// ok, err or other for mint_proxy.
	Case string `yaml:"case"`

	// Result holds expected result fields. Subset match.
	Result map[string]any `yaml:"result,omitempty"`

	// Message must be contained in the completion's message.
	Message string `yaml:"message,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, outcome,
	// final_state.
	Type string `yaml:"type"`

	// Action is an invoke name or a runtime method (trace_contains,
	// trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are expected invocation args (trace_contains). Subset match.
	Args map[string]any `yaml:"args,omitempty"`

	// Target is the expected call target (trace_contains). Resolved like
	// any other string value.
	Target string `yaml:"target,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Step is the 1-based flow step (outcome).
	Step int `yaml:"step,omitempty"`

	// Case and Message are the expected completion (outcome).
	Case    string `yaml:"case,omitempty"`
	Message string `yaml:"message,omitempty"`

	// Unit selects the unit to inspect (final_state).
	Unit string `yaml:"unit,omitempty"`

	// Expect holds expected unit properties (final_state): exists,
	// module, controllers, tokens.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Invoke names.
const (
	InvokeCreate = "create_collection"
	InvokeMint   = "mint_proxy"
)

// Completion cases.
const (
	CaseOK    = "ok"
	CaseErr   = "err"
	CaseOther = "other"
)

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertOutcome       = "outcome"
	AssertFinalState    = "final_state"
)

var faultOps = map[string]bool{
	testutil.OpCreateUnit:     true,
	testutil.OpInstallCode:    true,
	testutil.OpUpdateSettings: true,
	testutil.OpDeleteUnit:     true,
	testutil.OpModuleHash:     true,
	testutil.OpCall:           true,
}

var finalStateKeys = map[string]bool{
	"exists":      true,
	"module":      true,
	"controllers": true,
	"tokens":      true,
}

// LoadScenario reads and parses a scenario YAML file. Relative paths in the
// scenario resolve against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file, resolving
// relative paths against basePath.
//
// Returns an error if the file doesn't exist, is malformed, contains unknown
// fields (typos), or is missing required fields.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.ModulesDir != "" && !filepath.IsAbs(scenario.ModulesDir) && basePath != "" {
		scenario.ModulesDir = filepath.Join(basePath, scenario.ModulesDir)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.ModulesDir != "" {
		if info, err := os.Stat(s.ModulesDir); err != nil || !info.IsDir() {
			return fmt.Errorf("modules_dir not found: %s", s.ModulesDir)
		}
	}

	for i, f := range s.Faults {
		if !faultOps[f.Op] {
			return fmt.Errorf("faults[%d]: unknown op %q", i, f.Op)
		}
		if _, err := hostrt.ParseRejectCode(f.Code); err != nil {
			return fmt.Errorf("faults[%d]: %w", i, err)
		}
		if f.Method != "" && f.Op != testutil.OpCall {
			return fmt.Errorf("faults[%d]: method only applies to op %q", i, testutil.OpCall)
		}
		if f.Times < 0 {
			return fmt.Errorf("faults[%d]: times must be non-negative", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, len(s.Flow)); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step *FlowStep) error {
	var cases []string
	switch step.Invoke {
	case "":
		return fmt.Errorf("flow[%d]: invoke is required", index)
	case InvokeCreate:
		cases = []string{CaseOK, CaseErr}
	case InvokeMint:
		if step.Caller != "" {
			return fmt.Errorf("flow[%d]: caller does not apply to %s", index, InvokeMint)
		}
		cases = []string{CaseOK, CaseErr, CaseOther}
	default:
		return fmt.Errorf("flow[%d]: unknown invoke %q", index, step.Invoke)
	}

	if step.Args == nil {
		return fmt.Errorf("flow[%d]: args is required (use empty map if no args)", index)
	}

	if step.Expect != nil {
		if step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", index)
		}
		if !contains(cases, step.Expect.Case) {
			return fmt.Errorf("flow[%d].expect: case %q is not one of %v", index, step.Expect.Case, cases)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertOutcome:
		if a.Step < 1 || a.Step > steps {
			return fmt.Errorf("assertions[%d]: step must be between 1 and %d for outcome", index, steps)
		}
		if a.Case == "" {
			return fmt.Errorf("assertions[%d]: case is required for outcome", index)
		}
	case AssertFinalState:
		if a.Unit == "" {
			return fmt.Errorf("assertions[%d]: unit is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		for key := range a.Expect {
			if !finalStateKeys[key] {
				return fmt.Errorf("assertions[%d]: unknown final_state key %q", index, key)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
