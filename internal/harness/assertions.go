package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/mintfactory/internal/ir"
	"github.com/roach88/mintfactory/internal/registry"
	"github.com/roach88/mintfactory/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			switch event.Type {
			case EventInvocation:
				fmt.Fprintf(&buf, "  [%d] step %d %s %v\n", i+1, event.Step, event.Action, event.Args)
			case EventCall:
				fmt.Fprintf(&buf, "  [%d]   %s %s -> %s\n", i+1, event.Action, event.Target, event.Outcome)
			case EventCompletion:
				fmt.Fprintf(&buf, "  [%d]   = %s %v\n", i+1, event.OutputCase, event.Result)
			}
		}
	}

	return buf.String()
}

// AssertionContext provides what assertions need beyond the trace.
type AssertionContext struct {
	Ctx     context.Context
	Store   *store.Store
	Catalog *registry.Catalog

	// Resolve expands placeholders in assertion values. Nil leaves values
	// unchanged.
	Resolve func(string) (string, error)
}

func (a *AssertionContext) resolve(s string) (string, error) {
	if a == nil || a.Resolve == nil {
		return s, nil
	}
	return a.Resolve(s)
}

func (a *AssertionContext) resolveValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return a.resolve(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			r, err := a.resolveValue(elem)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			r, err := a.resolveValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// isAction reports whether event is an invocation or runtime call, the
// events trace assertions look at.
func isAction(event TraceEvent) bool {
	return event.Type == EventInvocation || event.Type == EventCall
}

// assertTraceContains checks that the trace contains an invocation or call
// of the action, with matching args (subset match) and target when given.
func assertTraceContains(trace []TraceEvent, assertion Assertion, actx *AssertionContext) error {
	target, err := actx.resolve(assertion.Target)
	if err != nil {
		return err
	}
	wantArgs, err := actx.resolveValue(assertion.Args)
	if err != nil {
		return err
	}
	want, _ := wantArgs.(map[string]any)

	for _, event := range trace {
		if !isAction(event) || event.Action != assertion.Action {
			continue
		}
		if target != "" && event.Target != target {
			continue
		}
		if len(want) > 0 {
			got, err := actx.resolveValue(event.Args)
			if err != nil {
				return err
			}
			gotMap, _ := got.(map[string]any)
			if !matchArgs(gotMap, want) {
				continue
			}
		}
		return nil
	}

	expected := "action " + assertion.Action
	if target != "" {
		expected += " on " + target
	}
	if len(want) > 0 {
		expected += fmt.Sprintf(" with args %v", want)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the actions appear in the given order.
// Intervening actions are allowed and an action may be listed more than
// once.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	prev := ""
	prevPos := 0
	for _, action := range assertion.Actions {
		found := false
		for pos < len(trace) {
			event := trace[pos]
			pos++
			if isAction(event) && event.Action == action {
				found = true
				break
			}
		}
		if !found {
			actual := fmt.Sprintf("missing action: %s", action)
			if prev != "" {
				actual = fmt.Sprintf("no %s after %s (pos %d)", action, prev, prevPos)
			}
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual:   actual,
				Trace:    trace,
			}
		}
		prev, prevPos = action, pos
	}
	return nil
}

// assertTraceCount checks if the action appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if isAction(event) && event.Action == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertOutcome checks the completion of one step.
func assertOutcome(result *Result, assertion Assertion) error {
	event, ok := result.Completion(assertion.Step)
	if !ok {
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: fmt.Sprintf("completion of step %d", assertion.Step),
			Actual:   "step did not complete",
			Trace:    result.Trace,
		}
	}

	msg, _ := event.Result["message"].(string)
	if event.OutputCase != assertion.Case || !strings.Contains(msg, assertion.Message) {
		expected := fmt.Sprintf("step %d completes with %s", assertion.Step, assertion.Case)
		if assertion.Message != "" {
			expected += fmt.Sprintf(" containing %q", assertion.Message)
		}
		return &AssertionError{
			Type:     AssertOutcome,
			Expected: expected,
			Actual:   fmt.Sprintf("%s %v", event.OutputCase, event.Result),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFinalState checks a unit as the replica holds it after the flow.
//
// Supported keys: exists (bool), module (catalog name, "" for an empty
// unit), controllers (list, order ignored), tokens (count).
func assertFinalState(actx *AssertionContext, assertion Assertion) error {
	text, err := actx.resolve(assertion.Unit)
	if err != nil {
		return err
	}
	unitID, err := ir.ParsePrincipal(text)
	if err != nil {
		return fmt.Errorf("final_state unit %q: %w", assertion.Unit, err)
	}

	unit, err := actx.Store.ReadUnit(actx.Ctx, unitID)
	exists := true
	if errors.Is(err, store.ErrNotFound) {
		exists = false
	} else if err != nil {
		return fmt.Errorf("final_state: read unit: %w", err)
	}

	fail := func(key string, want, got any) error {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("unit %s %s = %v", text, key, want),
			Actual:   fmt.Sprintf("%s = %v", key, got),
		}
	}

	if want, ok := assertion.Expect["exists"]; ok && !valuesEqual(exists, want) {
		return fail("exists", want, exists)
	}
	if !exists {
		for key := range assertion.Expect {
			if key != "exists" {
				return fail(key, assertion.Expect[key], "unit not found")
			}
		}
		return nil
	}

	if want, ok := assertion.Expect["module"]; ok {
		module := ""
		if unit.ModuleHash != "" {
			module = unit.ModuleHash
			if spec, found := actx.Catalog.ByHash(unit.ModuleHash); found {
				module = spec.Name
			}
		}
		if !valuesEqual(module, want) {
			return fail("module", want, module)
		}
	}

	if want, ok := assertion.Expect["controllers"]; ok {
		resolved, err := actx.resolveValue(want)
		if err != nil {
			return err
		}
		wantList, _ := resolved.([]any)
		wantText := make([]string, len(wantList))
		for i, w := range wantList {
			wantText[i] = fmt.Sprint(w)
		}
		got := make([]string, len(unit.Controllers))
		for i, c := range unit.Controllers {
			got[i] = c.String()
		}
		slices.Sort(wantText)
		slices.Sort(got)
		if !slices.Equal(wantText, got) {
			return fail("controllers", wantText, got)
		}
	}

	if want, ok := assertion.Expect["tokens"]; ok {
		count, err := actx.Store.CountTokens(actx.Ctx, unitID)
		if err != nil {
			return fmt.Errorf("final_state: count tokens: %w", err)
		}
		if !valuesEqual(count, want) {
			return fail("tokens", want, count)
		}
	}

	return nil
}

// matchArgs checks if actual contains all expected keys with equal values
// (subset match). Extra keys in actual are ignored.
func matchArgs(actual, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two values loosely: scalars by their printed form,
// so YAML's int 1 equals the string "1" of a nat, maps by subset and lists
// element by element.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		return ok && matchArgs(act, exp)
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesEqual(act[i], exp[i]) {
				return false
			}
		}
		return true
	}

	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides replica access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion, actx)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertOutcome:
			err = assertOutcome(result, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil || actx.Catalog == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires replica context", i)
			} else {
				err = assertFinalState(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
