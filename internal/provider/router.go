package provider

import (
	"github.com/roach88/healthstore/internal/coordinator"
	"github.com/roach88/healthstore/internal/record"
)

// Router resolves addresses to the facade serving them.
type Router struct {
	authority string
	records   map[record.Category]*Records
	access    *Access
	profile   *Profile
}

var _ coordinator.Resolver = (*Router)(nil)

// NewRouter builds every facade over deps.
func NewRouter(deps Deps) *Router {
	deps = deps.withDefaults()
	r := &Router{
		authority: deps.Authority,
		records:   make(map[record.Category]*Records),
		access:    NewAccess(deps),
		profile:   NewProfile(deps),
	}
	for _, c := range record.Categories() {
		r.records[c] = NewRecords(c, deps)
	}
	return r
}

// Authority returns the authority served.
func (r *Router) Authority() string {
	return r.authority
}

// Resolve implements coordinator.Resolver.
func (r *Router) Resolve(uri string) (coordinator.Handler, error) {
	a, err := ParseAddress(uri)
	if err != nil {
		return nil, err
	}
	if a.Authority != r.authority {
		return nil, coordinator.InvalidAddress(uri, "unknown authority "+a.Authority)
	}
	switch a.Space {
	case SpaceAccess:
		return r.access, nil
	case SpaceProfile:
		return r.profile, nil
	}
	return r.records[a.Category], nil
}

// RecordsURI returns the address of every record of metric.
func (r *Router) RecordsURI(metric record.Metric) string {
	return RecordsAddress(r.authority, metric).String()
}

// RecordURI returns the address of record id of metric.
func (r *Router) RecordURI(metric record.Metric, id int64) string {
	return RecordsAddress(r.authority, metric).WithID(id).String()
}

// AccessURI returns the access root, or the entry of caller and metric.
func (r *Router) AccessURI(caller string, metric record.Metric) string {
	a := Address{Authority: r.authority, Space: SpaceAccess, Caller: caller, Metric: metric}
	return a.String()
}

// ProfileURI returns the profile address.
func (r *Router) ProfileURI() string {
	return Address{Authority: r.authority, Space: SpaceProfile}.String()
}
