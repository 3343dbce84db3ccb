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

// Generated predicates and the default sort of record queries.
const (
	whereByMetric   = record.ColMetric + " = ?"
	whereByMetricID = record.ColMetric + " = ? AND " + record.ColID + " = ?"
	defaultSort     = record.ColTime + " DESC"
)

// Records is the facade of one record category.
type Records struct {
	category  record.Category
	deps      Deps
	validator validate.Validator
	logger    *slog.Logger
}

var _ coordinator.Handler = (*Records)(nil)

// NewRecords returns the facade serving category.
func NewRecords(category record.Category, deps Deps) *Records {
	deps = deps.withDefaults()
	return &Records{
		category:  category,
		deps:      deps,
		validator: validate.Records(),
		logger:    deps.Logger.With("category", category.String()),
	}
}

// Category returns the category served.
func (r *Records) Category() record.Category {
	return r.category
}

func (r *Records) address(uri string) (Address, error) {
	a, err := ParseAddress(uri)
	if err != nil {
		return Address{}, err
	}
	if a.Space != SpaceRecords || a.Category != r.category || a.Authority != r.deps.Authority {
		return Address{}, coordinator.InvalidAddress(uri, "not a "+r.category.String()+" address")
	}
	return a, nil
}

// where returns the generated predicate selecting a.
func where(a Address) (string, []any) {
	if a.ID > 0 {
		return whereByMetricID, []any{int64(a.Metric), a.ID}
	}
	return whereByMetric, []any{int64(a.Metric)}
}

// Verify implements coordinator.Handler.
func (r *Records) Verify(_ context.Context, op coordinator.OpKind, req coordinator.Request) (record.Values, error) {
	a, err := r.address(req.URI)
	if err != nil {
		return nil, err
	}
	switch op {
	case coordinator.OpInsert:
		return r.verifyInsert(a, req)
	case coordinator.OpUpdate:
		return r.verifyUpdate(a, req)
	case coordinator.OpDelete:
		if hasSelection(req) {
			return nil, selectionNotAllowed(req.URI)
		}
		return nil, nil
	}
	return nil, coordinator.Unsupported(req.URI, op.String()+" cannot be verified")
}

func (r *Records) verifyInsert(a Address, req coordinator.Request) (record.Values, error) {
	if a.ID > 0 {
		return nil, coordinator.Unsupported(req.URI, "insert requires a metric address")
	}
	v := req.Values.Clone()
	if err := r.validator.Validate(v); err != nil {
		return nil, err
	}
	same, err := sameMetric(v, record.ColMetric, a.Metric)
	if err != nil || !same {
		return nil, metricMismatch(req.URI, v[record.ColMetric], a.Metric)
	}
	v[record.ColMetric] = int64(a.Metric)
	if !v.Has(record.ColTime) {
		v[record.ColTime] = r.deps.Clock.Now().UnixMilli()
	}
	return v, nil
}

func (r *Records) verifyUpdate(a Address, req coordinator.Request) (record.Values, error) {
	if hasSelection(req) {
		return nil, selectionNotAllowed(req.URI)
	}
	v := req.Values.Clone()
	if v == nil {
		v = record.Values{}
	}
	// The rules are picked by metric, so the address supplies it when the
	// payload does not.
	if same, err := sameMetric(v, record.ColMetric, a.Metric); err != nil || !same {
		return nil, fmt.Errorf("%w: %s of %s", ErrImmutableField, record.ColMetric, req.URI)
	}
	v[record.ColMetric] = int64(a.Metric)

	if err := r.validator.Validate(v); err != nil {
		return nil, err
	}
	if id, ok, _ := v.Int(record.ColID); ok && id != a.ID {
		return nil, fmt.Errorf("%w: %s of %s", ErrImmutableField, record.ColID, req.URI)
	}
	delete(v, record.ColID)
	delete(v, record.ColMetric)
	if len(v) == 0 {
		return nil, &validate.ValidationError{Reason: "update payload is empty"}
	}
	return v, nil
}

// permitted looks up the caller's permission on the address's metric. The
// access table is owner-only, so the lookup runs only while the store acts
// as itself. Write checks must also run inside the transaction so they see
// entries the batch has not committed yet.
func (r *Records) permitted(ctx context.Context, q store.Querier, a Address, want access.Permission) (bool, error) {
	caller := coordinator.Caller(ctx)
	if coordinator.Effective(ctx) != coordinator.Self {
		return false, fmt.Errorf("%w: %s check for %s", ErrIdentityNotCleared, want, caller)
	}
	if want.Has(access.Write) && !coordinator.InBatch(ctx) {
		return false, fmt.Errorf("%w: %s check for %s outside a transaction", ErrIdentityNotCleared, want, caller)
	}
	ok, err := access.NewStore(q).Permitted(ctx, caller, a.Metric, want)
	if err == nil && !ok {
		r.logger.Debug("access denied", "caller", caller, "metric", a.Metric.String(), "want", want.String())
	}
	return ok, err
}

func (r *Records) canWrite(ctx context.Context, tx *store.Tx, a Address) (bool, error) {
	return r.permitted(ctx, tx, a, access.Write)
}

// InsertInTx implements coordinator.Handler.
func (r *Records) InsertInTx(ctx context.Context, tx *store.Tx, uri string, values record.Values) (string, error) {
	a, err := r.address(uri)
	if err != nil {
		return "", err
	}
	if ok, err := r.canWrite(ctx, tx, a); err != nil || !ok {
		return "", err
	}
	id, err := tx.Insert(ctx, r.category.Table(), values)
	if err != nil {
		return "", err
	}
	return a.WithID(id).String(), nil
}

// UpdateInTx implements coordinator.Handler.
func (r *Records) UpdateInTx(ctx context.Context, tx *store.Tx, uri string, values record.Values) (int64, error) {
	a, err := r.address(uri)
	if err != nil {
		return 0, err
	}
	if ok, err := r.canWrite(ctx, tx, a); err != nil || !ok {
		return coordinator.DeniedCount, err
	}
	pred, args := where(a)
	return tx.Update(ctx, r.category.Table(), values, pred, args)
}

// DeleteInTx implements coordinator.Handler.
func (r *Records) DeleteInTx(ctx context.Context, tx *store.Tx, uri string) (int64, error) {
	a, err := r.address(uri)
	if err != nil {
		return 0, err
	}
	if ok, err := r.canWrite(ctx, tx, a); err != nil || !ok {
		return coordinator.DeniedCount, err
	}
	pred, args := where(a)
	return tx.Delete(ctx, r.category.Table(), pred, args)
}

// Query implements coordinator.Handler. The caller's selection is ANDed in
// front of the generated one; metric-wide reads default to newest first.
func (r *Records) Query(ctx context.Context, db store.Querier, q coordinator.QueryRequest) (*store.Rows, error) {
	a, err := r.address(q.URI)
	if err != nil {
		return nil, err
	}
	columns := r.category.Columns()
	if err := checkQuery(r.deps.Checker, q, columns); err != nil {
		return nil, err
	}

	ok, err := r.permitted(ctx, db, a, access.Read)
	if err != nil {
		return nil, err
	}
	if !ok {
		return store.EmptyRows(projection(q, columns)), nil
	}

	pred, args := where(a)
	sort := q.SortOrder
	if sort == "" && a.ID == 0 {
		sort = defaultSort
	}
	return db.Query(ctx, querysql.Select{
		Table:   r.category.Table(),
		Columns: projection(q, columns),
		Where:   querysql.And(q.Where, pred),
		Args:    append(append([]any{}, q.Args...), args...),
		OrderBy: sort,
	})
}

// NotifyURI implements coordinator.Handler.
func (r *Records) NotifyURI(uri string) string {
	a, err := ParseAddress(uri)
	if err != nil {
		return r.deps.Authority + "/" + r.category.Path()
	}
	return a.root()
}
