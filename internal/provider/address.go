package provider

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/healthstore/internal/coordinator"
	"github.com/roach88/healthstore/internal/record"
)

// DefaultAuthority is the authority segment of every address unless the
// store is configured otherwise.
const DefaultAuthority = "org.lineageos.mod.health"

// Address path segments outside the record categories.
const (
	accessSegment  = "access"
	profileSegment = "profile"
)

// Space is the address space an address belongs to.
type Space int

const (
	SpaceRecords Space = iota
	SpaceAccess
	SpaceProfile
)

// String implements fmt.Stringer.
func (s Space) String() string {
	switch s {
	case SpaceRecords:
		return "records"
	case SpaceAccess:
		return accessSegment
	case SpaceProfile:
		return profileSegment
	}
	return fmt.Sprintf("Space(%d)", int(s))
}

// Address is a parsed request address.
//
// Record addresses are <authority>/<category>/<metric>[/<id>]. Access
// addresses are <authority>/access[/<caller>[/<metric>]]. The profile is
// addressed as <authority>/profile.
type Address struct {
	Authority string
	Space     Space

	// Category is set for record addresses.
	Category record.Category

	// Metric is set for record addresses and access item addresses,
	// Unknown otherwise.
	Metric record.Metric

	// ID is the record id of a single-record address, 0 for the whole
	// metric.
	ID int64

	// Caller is set for access addresses below the root.
	Caller string
}

// RecordsAddress returns the address of every record of metric.
func RecordsAddress(authority string, metric record.Metric) Address {
	c, _ := metric.Category()
	return Address{Authority: authority, Space: SpaceRecords, Category: c, Metric: metric}
}

// WithID returns the address of record id of a's metric.
func (a Address) WithID(id int64) Address {
	a.ID = id
	return a
}

// IsItem reports whether a names a single row: a record by id or one
// access entry.
func (a Address) IsItem() bool {
	switch a.Space {
	case SpaceRecords:
		return a.ID > 0
	case SpaceAccess:
		return a.Caller != "" && a.Metric != record.Unknown
	}
	return false
}

// String formats a with numeric metric segments.
func (a Address) String() string {
	var b strings.Builder
	b.WriteString(a.Authority)
	switch a.Space {
	case SpaceRecords:
		fmt.Fprintf(&b, "/%s/%d", a.Category.Path(), int(a.Metric))
		if a.ID > 0 {
			fmt.Fprintf(&b, "/%d", a.ID)
		}
	case SpaceAccess:
		b.WriteString("/" + accessSegment)
		if a.Caller != "" {
			b.WriteString("/" + a.Caller)
			if a.Metric != record.Unknown {
				fmt.Fprintf(&b, "/%d", int(a.Metric))
			}
		}
	case SpaceProfile:
		b.WriteString("/" + profileSegment)
	}
	return b.String()
}

// root returns the address observers of a are notified on: the category
// for records, the whole space otherwise.
func (a Address) root() string {
	switch a.Space {
	case SpaceRecords:
		return a.Authority + "/" + a.Category.Path()
	case SpaceAccess:
		return a.Authority + "/" + accessSegment
	}
	return a.Authority + "/" + profileSegment
}

// ParseAddress parses uri. Metric segments may be numeric ids or metric
// names. Failures are coordinator InvalidAddress errors.
func ParseAddress(uri string) (Address, error) {
	segments := strings.Split(strings.TrimSuffix(uri, "/"), "/")
	if len(segments) < 2 || segments[0] == "" {
		return Address{}, coordinator.InvalidAddress(uri, "expected <authority>/<path>")
	}
	for _, s := range segments {
		if s == "" {
			return Address{}, coordinator.InvalidAddress(uri, "empty path segment")
		}
	}
	a := Address{Authority: segments[0], Metric: record.Unknown}
	rest := segments[1:]

	switch rest[0] {
	case profileSegment:
		if len(rest) != 1 {
			return Address{}, coordinator.InvalidAddress(uri, "profile takes no sub-path")
		}
		a.Space = SpaceProfile
		return a, nil

	case accessSegment:
		a.Space = SpaceAccess
		if len(rest) > 3 {
			return Address{}, coordinator.InvalidAddress(uri, "expected access[/<caller>[/<metric>]]")
		}
		if len(rest) > 1 {
			a.Caller = rest[1]
		}
		if len(rest) > 2 {
			m, err := record.ParseMetric(rest[2])
			if err != nil {
				return Address{}, coordinator.InvalidAddress(uri, err.Error())
			}
			a.Metric = m
		}
		return a, nil
	}

	c, err := record.ParseCategory(rest[0])
	if err != nil {
		return Address{}, coordinator.InvalidAddress(uri, err.Error())
	}
	if len(rest) < 2 || len(rest) > 3 {
		return Address{}, coordinator.InvalidAddress(uri, "expected <category>/<metric>[/<id>]")
	}
	m, err := record.ParseMetric(rest[1])
	if err != nil {
		return Address{}, coordinator.InvalidAddress(uri, err.Error())
	}
	if !c.Contains(m) {
		return Address{}, coordinator.InvalidAddress(uri, fmt.Sprintf("metric %s is not a %s metric", m, c))
	}
	a.Space = SpaceRecords
	a.Category = c
	a.Metric = m
	if len(rest) == 3 {
		id, err := strconv.ParseInt(rest[2], 10, 64)
		if err != nil || id < 1 {
			return Address{}, coordinator.InvalidAddress(uri, fmt.Sprintf("invalid record id %q", rest[2]))
		}
		a.ID = id
	}
	return a, nil
}
