package validate

import (
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/healthstore/internal/record"
)

// Field checks shared by every chain. Each check passes when the field is
// absent; required fields are checked by the caller.

func nonNegative(v record.Values, col string) error {
	f, ok, err := v.Float(col)
	if err != nil {
		return invalid(col, v[col], "must be a number")
	}
	if ok && f < 0 {
		return invalid(col, v[col], "must not be negative")
	}
	return nil
}

func within(v record.Values, col string, lo, hi float64) error {
	f, ok, err := v.Float(col)
	if err != nil {
		return invalid(col, v[col], "must be a number")
	}
	if ok && (f < lo || f > hi) {
		return invalid(col, v[col], "must be between %g and %g", lo, hi)
	}
	return nil
}

func nonNegativeInt(v record.Values, col string) error {
	n, ok, err := v.Int(col)
	if err != nil {
		return invalid(col, v[col], "must be an integer")
	}
	if ok && n < 0 {
		return invalid(col, v[col], "must not be negative")
	}
	return nil
}

// enumerated accepts integers in [lo, hi].
func enumerated(v record.Values, col string, lo, hi int64) error {
	n, ok, err := v.Int(col)
	if err != nil {
		return invalid(col, v[col], "must be an integer")
	}
	if ok && (n < lo || n > hi) {
		return invalid(col, v[col], "must be between %d and %d", lo, hi)
	}
	return nil
}

// flags accepts bit sets that fit in bits bits.
func flags(v record.Values, col string, bits uint) error {
	n, ok, err := v.Int(col)
	if err != nil {
		return invalid(col, v[col], "must be an integer")
	}
	if ok && (n < 0 || n >= int64(1)<<bits) {
		return invalid(col, v[col], "must fit in %d bits", bits)
	}
	return nil
}

// text NFC-normalizes a free-text field in place.
func text(v record.Values, col string) error {
	s, ok, err := v.Text(col)
	if err != nil {
		return invalid(col, v[col], "must be text")
	}
	if ok {
		v[col] = norm.NFC.String(s)
	}
	return nil
}

// knownColumns rejects keys outside allowed. Keys become column names, so
// this also keeps arbitrary identifiers out of generated statements.
func knownColumns(v record.Values, allowed []string) error {
	set := make(map[string]bool, len(allowed))
	for _, col := range allowed {
		set[col] = true
	}
	for _, key := range v.Keys() {
		if !set[key] {
			return invalid(key, v[key], "unknown column")
		}
	}
	return nil
}

func all(checks ...error) error {
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}
