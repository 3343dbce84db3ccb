// Package access stores per-caller, per-metric permissions and answers
// permission checks.
//
// A caller with no entry for a metric is fully permitted. Callers that
// are denied never see an error: reads come back empty and writes are
// no-ops, so a denied caller cannot tell "denied" from "no data".
package access

import (
	"context"
	"fmt"

	"github.com/roach88/healthstore/internal/querysql"
	"github.com/roach88/healthstore/internal/record"
	"github.com/roach88/healthstore/internal/store"
)

// Entry is one row of the access table.
type Entry struct {
	Caller     string        `json:"caller" yaml:"caller"`
	Metric     record.Metric `json:"metric" yaml:"metric"`
	Permission Permission    `json:"permission" yaml:"permission"`
}

// Values returns e as an access table row.
func (e Entry) Values() record.Values {
	return record.Values{
		record.ColAccessCaller:      e.Caller,
		record.ColAccessMetric:      int64(e.Metric),
		record.ColAccessPermissions: int64(e.Permission),
	}
}

// EntryFromValues reads an access table row. A missing permission means All.
func EntryFromValues(v record.Values) (Entry, error) {
	caller, _, err := v.Text(record.ColAccessCaller)
	if err != nil {
		return Entry{}, err
	}
	metric, _, err := v.Int(record.ColAccessMetric)
	if err != nil {
		return Entry{}, err
	}
	perm, ok, err := v.Int(record.ColAccessPermissions)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		perm = int64(All)
	}
	return Entry{Caller: caller, Metric: record.Metric(metric), Permission: Permission(perm)}, nil
}

// Store answers permission checks against the access table. Inside a
// transaction, build it over the *store.Tx so reads see pending writes.
type Store struct {
	q store.Querier
}

// NewStore returns a Store reading through q.
func NewStore(q store.Querier) *Store {
	return &Store{q: q}
}

// Permissions returns the permission of caller on metric. Without an
// entry the caller has All.
func (s *Store) Permissions(ctx context.Context, caller string, metric record.Metric) (Permission, error) {
	rows, err := s.q.Query(ctx, querysql.Select{
		Table:   record.AccessTable,
		Columns: []string{record.ColAccessPermissions},
		Where:   record.ColAccessCaller + " = ? AND " + record.ColAccessMetric + " = ?",
		Args:    []any{caller, int64(metric)},
	})
	if err != nil {
		return None, fmt.Errorf("read permissions: %w", err)
	}
	if rows.Len() == 0 {
		return All, nil
	}
	perm, _, err := rows.Record(0).Int(record.ColAccessPermissions)
	if err != nil {
		return None, fmt.Errorf("read permissions: %w", err)
	}
	return Permission(perm), nil
}

// Permitted reports whether caller holds every bit of want on metric.
func (s *Store) Permitted(ctx context.Context, caller string, metric record.Metric, want Permission) (bool, error) {
	have, err := s.Permissions(ctx, caller, metric)
	if err != nil {
		return false, err
	}
	return have.Has(want), nil
}

// CanRead reports whether caller may read metric.
func (s *Store) CanRead(ctx context.Context, caller string, metric record.Metric) (bool, error) {
	return s.Permitted(ctx, caller, metric, Read)
}

// CanWrite reports whether caller may write metric.
func (s *Store) CanWrite(ctx context.Context, caller string, metric record.Metric) (bool, error) {
	return s.Permitted(ctx, caller, metric, Write)
}

// List returns the entries for caller, or every entry when caller is
// empty, ordered by caller then metric.
func (s *Store) List(ctx context.Context, caller string) ([]Entry, error) {
	q := querysql.Select{
		Table:   record.AccessTable,
		Columns: record.AccessColumns(),
		OrderBy: record.ColAccessCaller + " ASC, " + record.ColAccessMetric + " ASC",
	}
	if caller != "" {
		q.Where = record.ColAccessCaller + " = ?"
		q.Args = []any{caller}
	}
	rows, err := s.q.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}

	entries := make([]Entry, 0, rows.Len())
	for _, v := range rows.Records() {
		e, err := EntryFromValues(v)
		if err != nil {
			return nil, fmt.Errorf("list permissions: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Set writes e, replacing any entry for the same caller and metric.
func Set(ctx context.Context, tx *store.Tx, e Entry) error {
	if _, err := tx.Replace(ctx, record.AccessTable, e.Values()); err != nil {
		return fmt.Errorf("set permission: %w", err)
	}
	return nil
}

// Remove deletes the entry for caller and metric, restoring the default.
func Remove(ctx context.Context, tx *store.Tx, caller string, metric record.Metric) (int64, error) {
	n, err := tx.Delete(ctx, record.AccessTable,
		record.ColAccessCaller+" = ? AND "+record.ColAccessMetric+" = ?",
		[]any{caller, int64(metric)})
	if err != nil {
		return 0, fmt.Errorf("remove permission: %w", err)
	}
	return n, nil
}
