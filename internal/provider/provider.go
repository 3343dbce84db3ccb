// Package provider implements the addressed facades of the store: one
// Records facade per record category, the Access facade for permission
// entries and the Profile facade for the medical profile singleton.
//
// Facades implement coordinator.Handler. They never open transactions; the
// coordinator hands them the open *store.Tx. Every facade follows the same
// order for a request:
//
//  1. parse the address
//  2. check caller-supplied fragments with the token checker
//  3. check the payload (mutations only)
//  4. consult the permission gate; a denied request is a no-op
//  5. run the statement
//
// Steps 1 to 3 run in Verify and may fail. Step 4 never fails for policy
// reasons.
package provider

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/healthstore/internal/coordinator"
	"github.com/roach88/healthstore/internal/record"
	"github.com/roach88/healthstore/internal/sqlcheck"
)

// Deps are the collaborators shared by every facade.
type Deps struct {
	// Authority is the first segment of every address served.
	Authority string

	// Owner is the privileged caller allowed to manage access entries.
	Owner string

	// Checker validates caller-supplied predicates, sort orders and
	// projections.
	Checker *sqlcheck.Checker

	// Clock stamps records inserted without a time. Defaults to the
	// system clock.
	Clock coordinator.Clock

	Logger *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Authority == "" {
		d.Authority = DefaultAuthority
	}
	if d.Checker == nil {
		d.Checker = sqlcheck.New(nil)
	}
	if d.Clock == nil {
		d.Clock = systemClock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// checkQuery validates the caller-supplied parts of q against the token
// checker and the table's columns.
func checkQuery(checker *sqlcheck.Checker, q coordinator.QueryRequest, columns []string) error {
	if err := checker.EnsureNoInvalidTokens(q.Where); err != nil {
		return err
	}
	if err := checker.EnsureNoInvalidTokens(q.SortOrder); err != nil {
		return err
	}
	if err := checker.EnsureProjection(q.Projection); err != nil {
		return err
	}
	for _, col := range q.Projection {
		if !slices.Contains(columns, col) {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, col)
		}
	}
	return nil
}

// projection returns the requested columns, or every column when none
// were requested.
func projection(q coordinator.QueryRequest, columns []string) []string {
	if len(q.Projection) > 0 {
		return q.Projection
	}
	return columns
}

func hasSelection(req coordinator.Request) bool {
	return req.Where != "" || len(req.Args) > 0
}

// sameMetric reports whether the _metric of v, if present, is m.
func sameMetric(v record.Values, key string, m record.Metric) (bool, error) {
	n, ok, err := v.Int(key)
	if err != nil || !ok {
		return !ok, err
	}
	return record.Metric(n) == m, nil
}
