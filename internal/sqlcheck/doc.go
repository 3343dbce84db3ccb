// Package sqlcheck validates caller-supplied SQL fragments before they reach
// the embedded engine.
//
// Callers may pass a selection (a WHERE-style predicate), a sort order and a
// projection (column names). None of these can be parameterized, so each is
// scanned with a small tokenizer modelled on SQLite's own and rejected when
// it names something a caller must never see:
//
//   - any identifier starting with the reserved internal prefix "x_"
//   - any identifier on the denylist (table and view names, "select")
//   - a statement separator (";") anywhere in the fragment
//   - an unterminated quote or comment
//
// Projection entries must additionally be exactly one identifier, which
// keeps expressions out of column-name position.
//
// The checker never rewrites its input. A fragment either passes unchanged or
// fails with an *InvalidInputError that carries the offending token and the
// original fragment.
//
// Example:
//
//	c := sqlcheck.New([]string{"access", "profile", "select"})
//	if err := c.EnsureNoInvalidTokens(selection); err != nil {
//	    return err
//	}
package sqlcheck
