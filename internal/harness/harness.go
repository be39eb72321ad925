package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/roach88/mintfactory/internal/config"
	"github.com/roach88/mintfactory/internal/factory"
	"github.com/roach88/mintfactory/internal/flow"
	"github.com/roach88/mintfactory/internal/hostrt/local"
	"github.com/roach88/mintfactory/internal/ir"
	"github.com/roach88/mintfactory/internal/proxy"
	"github.com/roach88/mintfactory/internal/registry"
	"github.com/roach88/mintfactory/internal/store"
	"github.com/roach88/mintfactory/internal/testutil"
)

// DefaultCaller is the seed of the caller used when a step names none.
const DefaultCaller = "alice"

// Harness is the scenario execution engine. It owns one replica and the
// factory and proxy wired to it.
type Harness struct {
	store   *store.Store
	catalog *registry.Catalog
	orch    *factory.Orchestrator
	proxy   *proxy.Proxy
	logger  *slog.Logger

	requestPrefix string
	units         []ir.Principal
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a logical clock at
// zero, so the same scenario always yields the same trace.
//
// Execution flow:
// 1. Create the replica, fund the factory, wire faults
// 2. Execute flow steps, tracing each invocation, its calls and completion
// 3. Check expect clauses and assertions
//
// A returned error means the scenario could not be executed at all; failed
// expectations are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(ctx, st, scenario)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}
	for _, u := range h.units {
		result.Units = append(result.Units, u.String())
	}

	actx := &AssertionContext{
		Ctx:     ctx,
		Store:   st,
		Catalog: h.catalog,
		Resolve: h.resolveString,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func newHarness(ctx context.Context, st *store.Store, s *Scenario) (*Harness, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cat, err := loadCatalog(s.ModulesDir)
	if err != nil {
		return nil, err
	}

	replica, err := local.New(ctx, st, local.WithCatalog(cat), local.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to start replica: %w", err)
	}

	self := ir.DerivePrincipal(config.DefaultSeed)
	funds := 10 * factory.DefaultCreateCycles
	if s.Funds != nil {
		funds = *s.Funds
	}
	if funds > 0 {
		if err := replica.Fund(ctx, self, funds); err != nil {
			return nil, fmt.Errorf("failed to fund factory: %w", err)
		}
	}

	prefix := s.RequestID
	if prefix == "" {
		prefix = "req"
	}

	rt := newFaultRuntime(replica.Agent(self), s.Faults)
	ids := testutil.NewFixedRequestID(prefix)

	orchOpts := []factory.Option{factory.WithIDGenerator(ids), factory.WithLogger(logger)}
	if s.Options.CreateCycles > 0 {
		orchOpts = append(orchOpts, factory.WithCreateCycles(s.Options.CreateCycles))
	}
	if s.Options.HandOff != nil {
		orchOpts = append(orchOpts, factory.WithHandOff(*s.Options.HandOff))
	}
	if s.Options.CleanupOnFailure != nil {
		orchOpts = append(orchOpts, factory.WithCleanupOnFailure(*s.Options.CleanupOnFailure))
	}

	proxyOpts := []proxy.Option{proxy.WithIDGenerator(ids), proxy.WithLogger(logger)}
	if s.Options.VerifyModuleKind != nil {
		proxyOpts = append(proxyOpts, proxy.WithVerifyModuleKind(*s.Options.VerifyModuleKind))
	}

	return &Harness{
		store:         st,
		catalog:       cat,
		orch:          factory.NewOrchestrator(rt, cat, orchOpts...),
		proxy:         proxy.New(rt, proxy.NewTable(cat.Modules()), proxyOpts...),
		logger:        logger,
		requestPrefix: prefix,
	}, nil
}

func loadCatalog(dir string) (*registry.Catalog, error) {
	if dir == "" {
		cat, err := registry.Default()
		if err != nil {
			return nil, fmt.Errorf("failed to load built-in modules: %w", err)
		}
		return cat, nil
	}
	cat, err := registry.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load modules from %s: %w", dir, err)
	}
	return cat, nil
}

// requestID returns the request id of the 1-based step n.
func (h *Harness) requestID(n int) string {
	return fmt.Sprintf("%s-%d", h.requestPrefix, n)
}

// executeFlow runs all flow steps and validates expect clauses.
//
// Each step:
// 1. Resolves placeholders in its args and decodes them into a request
// 2. Runs the request under a fixed request id
// 3. Reads back the replica's call log for that request id
// 4. Records invocation, calls and completion in the trace
// 5. Validates the expect clause against the completion
func (h *Harness) executeFlow(ctx context.Context, steps []FlowStep, result *Result) error {
	for i, step := range steps {
		n := i + 1
		reqID := h.requestID(n)
		stepCtx := flow.WithRequestID(ctx, reqID)

		resolved, err := h.resolve(step.Args)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", n, err)
		}
		args, _ := resolved.(map[string]any)

		var (
			caller     string
			outputCase string
			res        map[string]any
		)
		switch step.Invoke {
		case InvokeCreate:
			p, err := h.resolveCaller(step.Caller)
			if err != nil {
				return fmt.Errorf("flow step %d: %w", n, err)
			}
			caller = p.String()
			var req ir.CreateRequest
			if err := decodeArgs(args, &req); err != nil {
				return fmt.Errorf("flow step %d: %w", n, err)
			}
			outputCase, res = h.create(stepCtx, p, req)
		case InvokeMint:
			var req ir.MintRequest
			if err := decodeArgs(args, &req); err != nil {
				return fmt.Errorf("flow step %d: %w", n, err)
			}
			outputCase, res = h.mint(stepCtx, req)
		default:
			return fmt.Errorf("flow step %d: unknown invoke %q", n, step.Invoke)
		}

		result.AddInvocationTrace(n, step.Invoke, caller, step.Args)

		calls, err := h.store.ReadCalls(ctx, reqID)
		if err != nil {
			return fmt.Errorf("flow step %d: failed to read call log: %w", n, err)
		}
		for _, c := range calls {
			result.AddCallTrace(n, c.Method, c.Target.String(), c.Outcome, c.Message, c.Seq)
		}

		result.AddCompletionTrace(n, outputCase, res)

		if step.Expect != nil {
			for _, msg := range h.checkExpect(n, step.Expect, outputCase, res) {
				result.AddError(msg)
			}
		}

		h.logger.Info("flow step completed",
			"step", n,
			"invoke", step.Invoke,
			"request_id", reqID,
			"calls", len(calls),
			"output_case", outputCase,
		)
	}
	return nil
}

func (h *Harness) create(ctx context.Context, caller ir.Principal, req ir.CreateRequest) (string, map[string]any) {
	col, err := h.orch.CreateCollection(ctx, caller, req)
	if err != nil {
		res := map[string]any{"message": err.Error()}
		var fe *factory.Error
		if errors.As(err, &fe) {
			res["stage"] = string(fe.Stage)
			if fe.Unit != ir.ManagementPrincipal {
				res["unit"] = fe.Unit.String()
				res["orphaned"] = fe.Orphaned
			}
		}
		return CaseErr, res
	}

	h.units = append(h.units, col.Unit)
	return CaseOK, map[string]any{
		"canister_id": col.Unit.String(),
		"wasm_name":   col.Module,
		"ownership":   col.Ownership.String(),
	}
}

func (h *Harness) mint(ctx context.Context, req ir.MintRequest) (string, map[string]any) {
	out := h.proxy.Mint(ctx, req)
	if out.Kind == ir.OutcomeOK {
		return CaseOK, map[string]any{"id": out.ID.String()}
	}
	return string(out.Kind), map[string]any{"message": out.Message}
}

// checkExpect compares a completion against an expect clause.
func (h *Harness) checkExpect(step int, expect *ExpectClause, outputCase string, res map[string]any) []string {
	var errs []string
	if expect.Case != outputCase {
		errs = append(errs, fmt.Sprintf("flow step %d: expected case %s, got %s (%v)", step, expect.Case, outputCase, res))
		return errs
	}

	if expect.Message != "" {
		msg, _ := res["message"].(string)
		if !strings.Contains(msg, expect.Message) {
			errs = append(errs, fmt.Sprintf("flow step %d: expected message containing %q, got %q", step, expect.Message, msg))
		}
	}

	if len(expect.Result) > 0 {
		want, err := h.resolve(expect.Result)
		if err != nil {
			return append(errs, fmt.Sprintf("flow step %d: expect: %v", step, err))
		}
		if wantMap, _ := want.(map[string]any); !matchArgs(res, wantMap) {
			errs = append(errs, fmt.Sprintf("flow step %d: expected result %v, got %v", step, expect.Result, res))
		}
	}
	return errs
}

// decodeArgs decodes step args into a request the way the HTTP API decodes
// a request body.
func decodeArgs(args map[string]any, v any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return nil
}

// resolve replaces placeholders in strings nested anywhere in v.
func (h *Harness) resolve(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return h.resolveString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			r, err := h.resolve(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			r, err := h.resolve(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolveString expands "@name" to the principal derived from name and
// "$unitN" to the N-th unit created so far.
func (h *Harness) resolveString(s string) (string, error) {
	switch {
	case strings.HasPrefix(s, "@"):
		return ir.DerivePrincipal(s[1:]).String(), nil
	case strings.HasPrefix(s, "$unit"):
		n, err := strconv.Atoi(s[len("$unit"):])
		if err != nil || n < 1 {
			return "", fmt.Errorf("invalid unit reference %q", s)
		}
		if n > len(h.units) {
			return "", fmt.Errorf("%s is not defined: %d unit(s) created so far", s, len(h.units))
		}
		return h.units[n-1].String(), nil
	default:
		return s, nil
	}
}

// resolveCaller turns a step's caller into a principal.
func (h *Harness) resolveCaller(caller string) (ir.Principal, error) {
	switch caller {
	case "":
		return ir.DerivePrincipal(DefaultCaller), nil
	case "anonymous":
		return ir.AnonymousPrincipal, nil
	}
	text, err := h.resolveString(caller)
	if err != nil {
		return ir.Principal{}, err
	}
	if p, err := ir.ParsePrincipal(text); err == nil {
		return p, nil
	}
	return ir.DerivePrincipal(text), nil
}
