package harness

// Step outcomes recorded in the trace.
const (
	OutcomeOK     = "ok"
	OutcomeDenied = "denied"
	OutcomeError  = "error"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Step    int            `json:"step"`
	As      string         `json:"as"`
	Op      string         `json:"op"`
	URI     string         `json:"uri,omitempty"`
	Outcome string         `json:"outcome"`
	Error   string         `json:"error,omitempty"` // error code
	Result  map[string]any `json:"result,omitempty"`

	// Changes lists the addresses observers were notified of, relative to
	// the authority.
	Changes []string `json:"changes,omitempty"`

	err error
}

// Err returns the error the step failed with, if any.
func (e TraceEvent) Err() error {
	return e.err
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses match.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
