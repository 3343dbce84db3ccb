// Package querysql builds parameterized SQLite statements for single-table
// reads and writes.
//
// Values are always bound as parameters, never interpolated. Identifiers
// (table and column names) are checked against a strict pattern and
// double-quoted. Predicates and sort orders are passed through verbatim:
// they are either generated by the store itself or have already been
// accepted by package sqlcheck.
package querysql

import (
	"fmt"
	"sort"
	"strings"
)

// Select describes a single-table read.
type Select struct {
	Table   string
	Columns []string // empty selects every column
	Where   string
	Args    []any
	OrderBy string
	Limit   int // zero means no limit
}

// CompileSelect converts q to SQL and its parameters.
func CompileSelect(q Select) (string, []any, error) {
	table, err := QuoteIdent(q.Table)
	if err != nil {
		return "", nil, fmt.Errorf("compile select: %w", err)
	}

	cols := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			if quoted[i], err = QuoteIdent(c); err != nil {
				return "", nil, fmt.Errorf("compile select: %w", err)
			}
		}
		cols = strings.Join(quoted, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, table)
	if q.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(q.Where)
	}
	if q.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.OrderBy)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String(), q.Args, nil
}

// CompileInsert builds an INSERT for values. Columns are emitted in sorted
// order so the statement text is deterministic.
func CompileInsert(table string, values map[string]any) (string, []any, error) {
	return compileInsert("INSERT", table, values)
}

// CompileReplace is CompileInsert with INSERT OR REPLACE semantics: a row
// colliding on a unique key is replaced.
func CompileReplace(table string, values map[string]any) (string, []any, error) {
	return compileInsert("INSERT OR REPLACE", table, values)
}

func compileInsert(verb, table string, values map[string]any) (string, []any, error) {
	t, err := QuoteIdent(table)
	if err != nil {
		return "", nil, fmt.Errorf("compile insert: %w", err)
	}
	if len(values) == 0 {
		return fmt.Sprintf("%s INTO %s DEFAULT VALUES", verb, t), nil, nil
	}

	cols, params, err := columnsAndParams(values)
	if err != nil {
		return "", nil, fmt.Errorf("compile insert: %w", err)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	sql := fmt.Sprintf("%s INTO %s (%s) VALUES (%s)", verb, t, strings.Join(cols, ", "), marks)
	return sql, params, nil
}

// CompileUpdate builds an UPDATE setting values on rows matching where.
// The SET parameters precede args.
func CompileUpdate(table string, values map[string]any, where string, args []any) (string, []any, error) {
	t, err := QuoteIdent(table)
	if err != nil {
		return "", nil, fmt.Errorf("compile update: %w", err)
	}
	if len(values) == 0 {
		return "", nil, fmt.Errorf("compile update: no values to set")
	}

	cols, params, err := columnsAndParams(values)
	if err != nil {
		return "", nil, fmt.Errorf("compile update: %w", err)
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}

	sql := fmt.Sprintf("UPDATE %s SET %s", t, strings.Join(sets, ", "))
	if where != "" {
		sql += " WHERE " + where
	}
	return sql, append(params, args...), nil
}

// CompileDelete builds a DELETE of rows matching where.
func CompileDelete(table, where string, args []any) (string, []any, error) {
	t, err := QuoteIdent(table)
	if err != nil {
		return "", nil, fmt.Errorf("compile delete: %w", err)
	}
	sql := "DELETE FROM " + t
	if where != "" {
		sql += " WHERE " + where
	}
	return sql, args, nil
}

// And joins non-empty predicates, parenthesizing each.
func And(predicates ...string) string {
	var kept []string
	for _, p := range predicates {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 1 {
		return kept[0]
	}
	for i, p := range kept {
		kept[i] = "(" + p + ")"
	}
	return strings.Join(kept, " AND ")
}

// QuoteIdent validates name as a plain identifier and double-quotes it.
func QuoteIdent(name string) (string, error) {
	if !isIdent(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return `"` + name + `"`, nil
}

func columnsAndParams(values map[string]any) ([]string, []any, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]string, len(keys))
	params := make([]any, len(keys))
	for i, k := range keys {
		q, err := QuoteIdent(k)
		if err != nil {
			return nil, nil, err
		}
		cols[i] = q
		params[i] = values[k]
	}
	return cols, params, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch == '_':
		case ch >= '0' && ch <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
