package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/healthstore/internal/access"
	"github.com/roach88/healthstore/internal/coordinator"
	"github.com/roach88/healthstore/internal/querysql"
	"github.com/roach88/healthstore/internal/record"
	"github.com/roach88/healthstore/internal/store"
	"github.com/roach88/healthstore/internal/validate"
)

const (
	whereByCaller       = record.ColAccessCaller + " = ?"
	whereByCallerMetric = record.ColAccessCaller + " = ? AND " + record.ColAccessMetric + " = ?"
	defaultAccessSort   = record.ColAccessCaller + " ASC, " + record.ColAccessMetric + " ASC"
)

// Access is the facade of the access table. Only the owner may change or
// read entries; requests from anyone else are denied like any other
// denied request.
type Access struct {
	deps      Deps
	validator validate.Validator
	logger    *slog.Logger
}

var _ coordinator.Handler = (*Access)(nil)

// NewAccess returns the access facade.
func NewAccess(deps Deps) *Access {
	deps = deps.withDefaults()
	return &Access{
		deps:      deps,
		validator: validate.Access(),
		logger:    deps.Logger.With("facade", accessSegment),
	}
}

func (f *Access) address(uri string) (Address, error) {
	a, err := ParseAddress(uri)
	if err != nil {
		return Address{}, err
	}
	if a.Space != SpaceAccess || a.Authority != f.deps.Authority {
		return Address{}, coordinator.InvalidAddress(uri, "not an access address")
	}
	return a, nil
}

// Verify implements coordinator.Handler. Inserts go to the access root
// and replace any entry for the same caller and metric; updates address
// one entry and may only change its permissions.
func (f *Access) Verify(_ context.Context, op coordinator.OpKind, req coordinator.Request) (record.Values, error) {
	a, err := f.address(req.URI)
	if err != nil {
		return nil, err
	}
	switch op {
	case coordinator.OpInsert:
		if a.Caller != "" {
			return nil, coordinator.Unsupported(req.URI, "insert entries at the access root")
		}
		v := req.Values.Clone()
		if err := f.validator.Validate(v); err != nil {
			return nil, err
		}
		return v, nil

	case coordinator.OpUpdate:
		if hasSelection(req) {
			return nil, selectionNotAllowed(req.URI)
		}
		if !a.IsItem() {
			return nil, coordinator.Unsupported(req.URI, "update requires an entry address")
		}
		v := req.Values.Clone()
		if v == nil {
			v = record.Values{}
		}
		if caller, ok, _ := v.Text(record.ColAccessCaller); ok && caller != a.Caller {
			return nil, fmt.Errorf("%w: %s of %s", ErrImmutableField, record.ColAccessCaller, req.URI)
		}
		if same, err := sameMetric(v, record.ColAccessMetric, a.Metric); err != nil || !same {
			return nil, fmt.Errorf("%w: %s of %s", ErrImmutableField, record.ColAccessMetric, req.URI)
		}
		v[record.ColAccessCaller] = a.Caller
		v[record.ColAccessMetric] = int64(a.Metric)
		if err := f.validator.Validate(v); err != nil {
			return nil, err
		}
		return record.Values{record.ColAccessPermissions: v[record.ColAccessPermissions]}, nil

	case coordinator.OpDelete:
		if hasSelection(req) {
			return nil, selectionNotAllowed(req.URI)
		}
		return nil, nil
	}
	return nil, coordinator.Unsupported(req.URI, op.String()+" cannot be verified")
}

func (f *Access) isOwner(ctx context.Context) bool {
	if coordinator.Caller(ctx) == f.deps.Owner {
		return true
	}
	f.logger.Debug("access management denied", "caller", coordinator.Caller(ctx))
	return false
}

// InsertInTx implements coordinator.Handler.
func (f *Access) InsertInTx(ctx context.Context, tx *store.Tx, uri string, values record.Values) (string, error) {
	a, err := f.address(uri)
	if err != nil {
		return "", err
	}
	if !f.isOwner(ctx) {
		return "", nil
	}
	e, err := access.EntryFromValues(values)
	if err != nil {
		return "", err
	}
	if err := access.Set(ctx, tx, e); err != nil {
		return "", err
	}
	a.Caller = e.Caller
	a.Metric = e.Metric
	return a.String(), nil
}

// UpdateInTx implements coordinator.Handler.
func (f *Access) UpdateInTx(ctx context.Context, tx *store.Tx, uri string, values record.Values) (int64, error) {
	a, err := f.address(uri)
	if err != nil {
		return 0, err
	}
	if !f.isOwner(ctx) {
		return coordinator.DeniedCount, nil
	}
	return tx.Update(ctx, record.AccessTable, values, whereByCallerMetric, []any{a.Caller, int64(a.Metric)})
}

// DeleteInTx implements coordinator.Handler. Deleting an entry restores
// the default for that caller and metric; deleting a caller or the root
// removes every entry below it.
func (f *Access) DeleteInTx(ctx context.Context, tx *store.Tx, uri string) (int64, error) {
	a, err := f.address(uri)
	if err != nil {
		return 0, err
	}
	if !f.isOwner(ctx) {
		return coordinator.DeniedCount, nil
	}
	switch {
	case a.IsItem():
		return access.Remove(ctx, tx, a.Caller, a.Metric)
	case a.Caller != "":
		return tx.Delete(ctx, record.AccessTable, whereByCaller, []any{a.Caller})
	}
	return tx.Delete(ctx, record.AccessTable, "", nil)
}

// Query implements coordinator.Handler.
func (f *Access) Query(ctx context.Context, db store.Querier, q coordinator.QueryRequest) (*store.Rows, error) {
	a, err := f.address(q.URI)
	if err != nil {
		return nil, err
	}
	columns := record.AccessColumns()
	if err := checkQuery(f.deps.Checker, q, columns); err != nil {
		return nil, err
	}
	if !f.isOwner(ctx) {
		return store.EmptyRows(projection(q, columns)), nil
	}

	var (
		pred string
		args []any
	)
	switch {
	case a.IsItem():
		pred, args = whereByCallerMetric, []any{a.Caller, int64(a.Metric)}
	case a.Caller != "":
		pred, args = whereByCaller, []any{a.Caller}
	}
	sort := q.SortOrder
	if sort == "" {
		sort = defaultAccessSort
	}
	return db.Query(ctx, querysql.Select{
		Table:   record.AccessTable,
		Columns: projection(q, columns),
		Where:   querysql.And(q.Where, pred),
		Args:    append(append([]any{}, q.Args...), args...),
		OrderBy: sort,
	})
}

// NotifyURI implements coordinator.Handler.
func (f *Access) NotifyURI(string) string {
	return f.deps.Authority + "/" + accessSegment
}
