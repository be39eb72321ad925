package harness

// Trace event types.
const (
	EventInvocation = "invocation"
	EventCall       = "call"
	EventCompletion = "completion"
)

// TraceEvent is one entry of a scenario trace: a step's invocation, a
// runtime call the step caused, or the step's completion.
type TraceEvent struct {
	Type       string         `json:"type"`
	Step       int            `json:"step"`
	Action     string         `json:"action,omitempty"`
	Caller     string         `json:"caller,omitempty"`
	Target     string         `json:"target,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Outcome    string         `json:"outcome,omitempty"`
	Message    string         `json:"message,omitempty"`
	OutputCase string         `json:"output_case,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	Seq        int64          `json:"seq,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds invocations, runtime calls and completions in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Units lists the units created by the scenario, in creation order.
	Units []string `json:"units,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocationTrace adds a step's invocation to the trace.
func (r *Result) AddInvocationTrace(step int, action, caller string, args map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventInvocation,
		Step:   step,
		Action: action,
		Caller: caller,
		Args:   args,
	})
}

// AddCallTrace adds one runtime call made on behalf of a step.
func (r *Result) AddCallTrace(step int, method, target, outcome, message string, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventCall,
		Step:    step,
		Action:  method,
		Target:  target,
		Outcome: outcome,
		Message: message,
		Seq:     seq,
	})
}

// AddCompletionTrace adds a step's completion to the trace.
func (r *Result) AddCompletionTrace(step int, outputCase string, result map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:       EventCompletion,
		Step:       step,
		OutputCase: outputCase,
		Result:     result,
	})
}

// Completion returns the completion event of step, if there is one.
func (r *Result) Completion(step int) (TraceEvent, bool) {
	for _, ev := range r.Trace {
		if ev.Type == EventCompletion && ev.Step == step {
			return ev, true
		}
	}
	return TraceEvent{}, false
}
