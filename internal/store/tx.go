package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/healthstore/internal/querysql"
	"github.com/roach88/healthstore/internal/record"
)

// Querier runs single-table reads. Both *Store and *Tx implement it.
type Querier interface {
	Query(ctx context.Context, q querysql.Select) (*Rows, error)
}

// Rows is a fully materialized result set. Sealed columns are already
// decrypted.
type Rows struct {
	Columns []string
	Data    [][]any
}

// EmptyRows returns a result with the given columns and no rows.
func EmptyRows(columns []string) *Rows {
	return &Rows{Columns: append([]string(nil), columns...), Data: [][]any{}}
}

// Len returns the number of rows.
func (r *Rows) Len() int {
	return len(r.Data)
}

// Record returns row i as a Values map keyed by column.
func (r *Rows) Record(i int) record.Values {
	v := make(record.Values, len(r.Columns))
	for j, col := range r.Columns {
		v[col] = r.Data[i][j]
	}
	return v
}

// Records returns every row as Values.
func (r *Rows) Records() []record.Values {
	out := make([]record.Values, r.Len())
	for i := range r.Data {
		out[i] = r.Record(i)
	}
	return out
}

// Query implements Querier outside any transaction.
func (s *Store) Query(ctx context.Context, q querysql.Select) (*Rows, error) {
	return s.query(ctx, s.db, q)
}

// Tx is an open write transaction.
type Tx struct {
	tx *sql.Tx
	s  *Store
}

// BeginTx starts a transaction. Callers must Commit or Rollback it.
func (s *Store) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx, s: s}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. It is a no-op after Commit.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Query implements Querier inside the transaction.
func (t *Tx) Query(ctx context.Context, q querysql.Select) (*Rows, error) {
	return t.s.query(ctx, t.tx, q)
}

// Insert adds one row and returns its rowid.
func (t *Tx) Insert(ctx context.Context, table string, values record.Values) (int64, error) {
	return t.insert(ctx, querysql.CompileInsert, table, values)
}

// Replace adds one row, replacing any row with the same unique key.
func (t *Tx) Replace(ctx context.Context, table string, values record.Values) (int64, error) {
	return t.insert(ctx, querysql.CompileReplace, table, values)
}

func (t *Tx) insert(ctx context.Context, compile func(string, map[string]any) (string, []any, error), table string, values record.Values) (int64, error) {
	stmt, args, err := compile(table, values)
	if err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	return id, nil
}

// Update sets values on rows matching where and returns the number of
// rows changed.
func (t *Tx) Update(ctx context.Context, table string, values record.Values, where string, args []any) (int64, error) {
	stmt, params, err := querysql.CompileUpdate(table, values, where, args)
	if err != nil {
		return 0, err
	}
	return t.exec(ctx, "update "+table, stmt, params)
}

// Delete removes rows matching where and returns how many were removed.
func (t *Tx) Delete(ctx context.Context, table, where string, args []any) (int64, error) {
	stmt, params, err := querysql.CompileDelete(table, where, args)
	if err != nil {
		return 0, err
	}
	return t.exec(ctx, "delete from "+table, stmt, params)
}

func (t *Tx) exec(ctx context.Context, op, stmt string, args []any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) query(ctx context.Context, db queryer, q querysql.Select) (*Rows, error) {
	stmt, args, err := querysql.CompileSelect(q)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Table, err)
	}

	out := &Rows{Columns: cols, Data: [][]any{}}
	for rows.Next() {
		row := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Table, err)
		}
		for i, v := range row {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			}
		}
		out.Data = append(out.Data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.Table, err)
	}
	return out, nil
}
