package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/healthstore/internal/coordinator"
)

// Scenario defines a conformance test scenario: a sequence of steps run
// against a fresh store, each optionally checked against an expectation.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`
}

// Step is one operation of a scenario.
type Step struct {
	// As is the caller the step runs as. Defaults to the store owner.
	As string `yaml:"as,omitempty"`

	// Op is the operation, one of the Op* constants.
	Op string `yaml:"op"`

	// URI is the address relative to the authority.
	URI string `yaml:"uri,omitempty"`

	// Values is the payload of insert, update and profile_set.
	Values map[string]any `yaml:"values,omitempty"`

	// Rows is the payload of bulk.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Selection of a query.
	Where      string   `yaml:"where,omitempty"`
	Args       []any    `yaml:"args,omitempty"`
	Projection []string `yaml:"projection,omitempty"`
	Sort       string   `yaml:"sort,omitempty"`

	// Entry written by grant.
	Caller     string `yaml:"caller,omitempty"`
	Metric     string `yaml:"metric,omitempty"`
	Permission string `yaml:"permission,omitempty"`

	// Operations of a batch. Their URIs are relative too.
	Operations []coordinator.Operation `yaml:"operations,omitempty"`

	// Expect is checked after the step runs. Without it the step must
	// not fail.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Count is the affected, inserted or read row count.
	Count *int64 `yaml:"count,omitempty"`

	// Rows are matched in order against the rows read. Each expected row
	// is a subset of the returned row; the number of rows must match.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// URI is the relative address returned by an insert.
	URI string `yaml:"uri,omitempty"`

	// URIEmpty expects an insert to return no address.
	URIEmpty bool `yaml:"uri_empty,omitempty"`

	// Error is the expected error code.
	Error string `yaml:"error,omitempty"`

	// Denied expects the write to be dropped by an access policy.
	Denied bool `yaml:"denied,omitempty"`

	// Profile is a subset of the profile read by profile_get.
	Profile map[string]any `yaml:"profile,omitempty"`
}

// Step operations.
const (
	OpInsert       = "insert"
	OpUpdate       = "update"
	OpDelete       = "delete"
	OpQuery        = "query"
	OpBulk         = "bulk"
	OpGrant        = "grant"
	OpBatch        = "batch"
	OpProfileSet   = "profile_set"
	OpProfileReset = "profile_reset"
	OpProfileGet   = "profile_get"
)

var addressedOps = []string{OpInsert, OpUpdate, OpDelete, OpQuery, OpBulk}

var knownOps = append(slices.Clone(addressedOps), OpGrant, OpBatch, OpProfileSet, OpProfileReset, OpProfileGet)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "expects:" vs "expect:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
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
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateStep validates a single step based on its operation.
func validateStep(index int, st *Step) error {
	if st.Op == "" {
		return fmt.Errorf("steps[%d]: op is required", index)
	}
	if !slices.Contains(knownOps, st.Op) {
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}
	if slices.Contains(addressedOps, st.Op) && st.URI == "" {
		return fmt.Errorf("steps[%d]: uri is required for %s", index, st.Op)
	}

	switch st.Op {
	case OpInsert, OpUpdate, OpProfileSet:
		if st.Values == nil {
			return fmt.Errorf("steps[%d]: values is required for %s", index, st.Op)
		}
	case OpBulk:
		if len(st.Rows) == 0 {
			return fmt.Errorf("steps[%d]: rows is required for bulk", index)
		}
	case OpGrant:
		if st.Caller == "" || st.Metric == "" || st.Permission == "" {
			return fmt.Errorf("steps[%d]: caller, metric and permission are required for grant", index)
		}
	case OpBatch:
		if len(st.Operations) == 0 {
			return fmt.Errorf("steps[%d]: operations is required for batch", index)
		}
		for j, op := range st.Operations {
			if op.URI == "" {
				return fmt.Errorf("steps[%d].operations[%d]: uri is required", index, j)
			}
			if op.Kind == coordinator.OpQuery {
				return fmt.Errorf("steps[%d].operations[%d]: op must be insert, update or delete", index, j)
			}
		}
	}

	if e := st.Expect; e != nil {
		if e.URI != "" && e.URIEmpty {
			return fmt.Errorf("steps[%d].expect: uri and uri_empty are exclusive", index)
		}
		if e.Count != nil && *e.Count < coordinator.DeniedCount {
			return fmt.Errorf("steps[%d].expect: count %d is out of range", index, *e.Count)
		}
	}
	return nil
}
