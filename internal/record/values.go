package record

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// Values is a flat key/value payload for one row.
//
// Values arrive from JSON, YAML, the command line and the engine, so the
// typed accessors accept every numeric shape those sources produce:
// Go integers, float64 (JSON numbers), json.Number and numeric strings.
// A nil value is treated as absent.
type Values map[string]any

// Has reports whether key is present with a non-nil value.
func (v Values) Has(key string) bool {
	val, ok := v[key]
	return ok && val != nil
}

// Int returns the value of key as int64.
// The boolean is false when the key is absent.
// Floats with a fractional part are rejected.
func (v Values) Int(key string) (int64, bool, error) {
	val, ok := v[key]
	if !ok || val == nil {
		return 0, false, nil
	}
	n, err := toInt(val)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// Float returns the value of key as float64.
func (v Values) Float(key string) (float64, bool, error) {
	val, ok := v[key]
	if !ok || val == nil {
		return 0, false, nil
	}
	f, err := toFloat(val)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return f, true, nil
}

// Text returns the value of key as a string.
func (v Values) Text(key string) (string, bool, error) {
	val, ok := v[key]
	if !ok || val == nil {
		return "", false, nil
	}
	switch s := val.(type) {
	case string:
		return s, true, nil
	case []byte:
		return string(s), true, nil
	case fmt.Stringer:
		return s.String(), true, nil
	}
	return "", true, fmt.Errorf("%s: expected text, got %T", key, val)
}

// Clone returns a shallow copy of v.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Keys returns the keys of v in sorted order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func toInt(val any) (int64, error) {
	switch n := val.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("integer overflow: %d", n)
		}
		return int64(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, fmt.Errorf("integer overflow: %d", n)
		}
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n.String())
		}
		return floatToInt(f)
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", n)
		}
		return floatToInt(f)
	}
	return 0, fmt.Errorf("expected integer, got %T", val)
}

func floatToInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %v", f)
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("integer overflow: %v", f)
	}
	return int64(f), nil
}

func toFloat(val any) (float64, error) {
	switch n := val.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return f, nil
	}
	i, err := toInt(val)
	if err != nil {
		return 0, fmt.Errorf("expected number, got %T", val)
	}
	return float64(i), nil
}
