package provider

import (
	"context"

	"github.com/roach88/healthstore/internal/coordinator"
	"github.com/roach88/healthstore/internal/querysql"
	"github.com/roach88/healthstore/internal/record"
	"github.com/roach88/healthstore/internal/store"
	"github.com/roach88/healthstore/internal/validate"
)

// Profile is the facade of the medical profile singleton. An insert
// replaces the profile, a delete resets it. The table never holds more
// than one row.
type Profile struct {
	deps      Deps
	validator validate.Validator
}

var _ coordinator.Handler = (*Profile)(nil)

// NewProfile returns the profile facade.
func NewProfile(deps Deps) *Profile {
	return &Profile{deps: deps.withDefaults(), validator: validate.Profile()}
}

func (p *Profile) address(uri string) (Address, error) {
	a, err := ParseAddress(uri)
	if err != nil {
		return Address{}, err
	}
	if a.Space != SpaceProfile || a.Authority != p.deps.Authority {
		return Address{}, coordinator.InvalidAddress(uri, "not the profile address")
	}
	return a, nil
}

// Verify implements coordinator.Handler.
func (p *Profile) Verify(_ context.Context, op coordinator.OpKind, req coordinator.Request) (record.Values, error) {
	if _, err := p.address(req.URI); err != nil {
		return nil, err
	}
	switch op {
	case coordinator.OpInsert:
		v := req.Values.Clone()
		if err := p.validator.Validate(v); err != nil {
			return nil, err
		}
		return v, nil
	case coordinator.OpDelete:
		if hasSelection(req) {
			return nil, selectionNotAllowed(req.URI)
		}
		return nil, nil
	}
	return nil, coordinator.Unsupported(req.URI, "the profile is replaced with insert, not "+op.String())
}

// InsertInTx implements coordinator.Handler.
func (p *Profile) InsertInTx(ctx context.Context, tx *store.Tx, uri string, values record.Values) (string, error) {
	a, err := p.address(uri)
	if err != nil {
		return "", err
	}
	if _, err := tx.Delete(ctx, record.ProfileTable, "", nil); err != nil {
		return "", err
	}
	if _, err := tx.Insert(ctx, record.ProfileTable, values); err != nil {
		return "", err
	}
	return a.String(), nil
}

// UpdateInTx implements coordinator.Handler.
func (p *Profile) UpdateInTx(_ context.Context, _ *store.Tx, uri string, _ record.Values) (int64, error) {
	return 0, coordinator.Unsupported(uri, "the profile is replaced with insert")
}

// DeleteInTx implements coordinator.Handler.
func (p *Profile) DeleteInTx(ctx context.Context, tx *store.Tx, uri string) (int64, error) {
	if _, err := p.address(uri); err != nil {
		return 0, err
	}
	return tx.Delete(ctx, record.ProfileTable, "", nil)
}

// Query implements coordinator.Handler. It returns zero or one row; a
// caller-supplied selection or sort order is rejected.
func (p *Profile) Query(ctx context.Context, db store.Querier, q coordinator.QueryRequest) (*store.Rows, error) {
	if _, err := p.address(q.URI); err != nil {
		return nil, err
	}
	columns := record.ProfileColumns()
	if err := checkQuery(p.deps.Checker, q, columns); err != nil {
		return nil, err
	}
	if q.Where != "" || len(q.Args) > 0 || q.SortOrder != "" {
		return nil, selectionNotAllowed(q.URI)
	}
	return db.Query(ctx, querysql.Select{
		Table:   record.ProfileTable,
		Columns: projection(q, columns),
		Limit:   1,
	})
}

// NotifyURI implements coordinator.Handler.
func (p *Profile) NotifyURI(string) string {
	return p.deps.Authority + "/" + profileSegment
}
