package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an expectation fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Field    string // Expectation that failed, e.g. "count"
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "expect %s failed\n", e.Field)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

func mismatch(field string, expected, actual any) error {
	return &AssertionError{Field: field, Expected: fmt.Sprint(expected), Actual: fmt.Sprint(actual)}
}

// checkExpect compares a step's outcome with its expectation. A step
// without an expectation must not fail.
func checkExpect(event TraceEvent, exp *Expect) []error {
	if exp == nil {
		if event.Outcome == OutcomeError {
			return []error{fmt.Errorf("unexpected error [%s]: %v", event.Error, event.err)}
		}
		return nil
	}

	if exp.Error != "" {
		if event.Error != exp.Error {
			return []error{mismatch("error", exp.Error, describeOutcome(event))}
		}
		return nil
	}
	if event.Outcome == OutcomeError {
		return []error{fmt.Errorf("unexpected error [%s]: %v", event.Error, event.err)}
	}

	var errs []error
	if exp.Denied && event.Outcome != OutcomeDenied {
		errs = append(errs, mismatch("denied", OutcomeDenied, event.Outcome))
	}
	if exp.Count != nil {
		got, ok := event.Result["count"]
		if !ok || !valuesEqual(*exp.Count, got) {
			errs = append(errs, mismatch("count", *exp.Count, got))
		}
	}
	if exp.URI != "" && event.Result["uri"] != exp.URI {
		errs = append(errs, mismatch("uri", exp.URI, event.Result["uri"]))
	}
	if exp.URIEmpty && event.Result["uri"] != "" {
		errs = append(errs, mismatch("uri_empty", `""`, event.Result["uri"]))
	}
	if exp.Rows != nil {
		if err := matchRows(exp.Rows, event.Result["rows"]); err != nil {
			errs = append(errs, err)
		}
	}
	if exp.Profile != nil {
		got, _ := event.Result["profile"].(map[string]any)
		if field, ok := matchSubset(exp.Profile, got); !ok {
			errs = append(errs, mismatch("profile."+field, exp.Profile[field], got[field]))
		}
	}
	return errs
}

func describeOutcome(event TraceEvent) string {
	if event.Outcome == OutcomeError {
		return fmt.Sprintf("error %s", event.Error)
	}
	return event.Outcome
}

// matchRows checks rows read against the expected rows in order.
func matchRows(expected []map[string]any, actual any) error {
	rows, _ := actual.([]any)
	if len(rows) != len(expected) {
		return mismatch("rows", fmt.Sprintf("%d row(s)", len(expected)), fmt.Sprintf("%d row(s)", len(rows)))
	}
	for i, want := range expected {
		got, _ := rows[i].(map[string]any)
		if field, ok := matchSubset(want, got); !ok {
			return mismatch(fmt.Sprintf("rows[%d].%s", i, field), want[field], got[field])
		}
	}
	return nil
}

// matchSubset reports whether every field of want is present in got with
// an equal value. On mismatch it returns the first differing field in
// key order.
func matchSubset(want, got map[string]any) (string, bool) {
	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v, ok := got[k]
		if !ok || !valuesEqual(want[k], v) {
			return k, false
		}
	}
	return "", true
}

// valuesEqual compares scenario values with stored ones. Numbers compare
// by value regardless of their Go type.
func valuesEqual(want, got any) bool {
	wf, wNum := number(want)
	gf, gNum := number(got)
	if wNum || gNum {
		return wNum && gNum && wf == gf
	}
	if want == nil || got == nil {
		return want == nil && got == nil
	}
	return fmt.Sprint(want) == fmt.Sprint(got)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
