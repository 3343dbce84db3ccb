// Package policy reads the default access policies applied on first boot.
//
// Policies are a CUE document checked against an embedded schema:
//
//	version: 1
//	packages: {
//		"com.example.app": {
//			body_mass_index: "read"
//			"1003":          "none"
//		}
//	}
//
// Metrics are metric names or numeric ids. Permissions are none, read,
// write or all.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/healthstore/internal/access"
	"github.com/roach88/healthstore/internal/record"
)

// Version is the only document version understood.
const Version = 1

//go:embed schema.cue
var schemaSource string

// Error codes.
const (
	ErrCodeSyntax     = "SYNTAX"
	ErrCodeSchema     = "SCHEMA"
	ErrCodeVersion    = "UNSUPPORTED_VERSION"
	ErrCodeMetric     = "UNKNOWN_METRIC"
	ErrCodePermission = "UNKNOWN_PERMISSION"
	ErrCodeUnreadable = "UNREADABLE"
)

// Error is a malformed policy document.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadFile reads and parses the policy document at path.
func LoadFile(path string) ([]access.Entry, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeUnreadable, Message: err.Error()}
	}
	return Parse(path, src)
}

// Parse parses a policy document. Entries are ordered by caller, then
// metric.
func Parse(filename string, src []byte) ([]access.Entry, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile policy schema: %w", err)
	}

	doc := ctx.CompileBytes(src, cue.Filename(filename))
	if err := doc.Err(); err != nil {
		return nil, cueError(ErrCodeSyntax, err)
	}
	v := schema.LookupPath(cue.ParsePath("#Policies")).Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(ErrCodeSchema, err)
	}

	versionVal := v.LookupPath(cue.ParsePath("version"))
	version, err := versionVal.Int64()
	if err != nil {
		return nil, cueError(ErrCodeSchema, err)
	}
	if version != Version {
		return nil, &Error{
			Code:    ErrCodeVersion,
			Message: fmt.Sprintf("unsupported access policy version %d, expected %d", version, Version),
			Pos:     doc.LookupPath(cue.ParsePath("version")).Pos(),
		}
	}

	var entries []access.Entry
	callers, err := v.LookupPath(cue.ParsePath("packages")).Fields()
	if err != nil {
		// packages is optional.
		return entries, nil
	}
	for callers.Next() {
		caller := callers.Selector().Unquoted()
		metrics, err := callers.Value().Fields()
		if err != nil {
			return nil, cueError(ErrCodeSchema, err)
		}
		for metrics.Next() {
			e, err := entry(caller, metrics.Selector().Unquoted(), metrics.Value())
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Caller != entries[j].Caller {
			return entries[i].Caller < entries[j].Caller
		}
		return entries[i].Metric < entries[j].Metric
	})
	return entries, nil
}

func entry(caller, metricLabel string, v cue.Value) (access.Entry, error) {
	metric, err := record.ParseMetric(metricLabel)
	if err != nil {
		return access.Entry{}, &Error{Code: ErrCodeMetric, Message: err.Error(), Pos: v.Pos()}
	}
	name, err := v.String()
	if err != nil {
		return access.Entry{}, cueError(ErrCodeSchema, err)
	}
	perm, err := access.ParsePermission(name)
	if err != nil {
		return access.Entry{}, &Error{Code: ErrCodePermission, Message: err.Error(), Pos: v.Pos()}
	}
	return access.Entry{Caller: caller, Metric: metric, Permission: perm}, nil
}

// cueError converts the first CUE error into an *Error with its position.
func cueError(code string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Code: code, Message: err.Error()}
	}
	first := errs[0]
	e := &Error{Code: code, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}
