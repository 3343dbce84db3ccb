package validate

import (
	"strings"

	"github.com/roach88/healthstore/internal/record"
)

// Permission bounds. Mirrors access.None and access.All, which cannot be
// imported here without a cycle.
const (
	minPermission = 0
	maxPermission = 3
)

// Access returns the validator applied to access policy entries. Entries
// carry no version; they are always checked against the current rules.
func Access() *Chain {
	return &Chain{
		name: "access",
		steps: []step{
			{since: record.VersionActinium, check: accessActinium},
		},
	}
}

func accessActinium(v record.Values) error {
	if err := knownColumns(v, record.AccessColumns()); err != nil {
		return err
	}

	raw := v[record.ColAccessMetric]
	n, ok, err := v.Int(record.ColAccessMetric)
	if err != nil || !ok || n <= int64(record.Unknown) || !record.Metric(n).Valid() {
		return invalid(record.ColAccessMetric, raw, "must be a known metric")
	}

	raw = v[record.ColAccessPermissions]
	p, ok, err := v.Int(record.ColAccessPermissions)
	if err != nil || !ok || p < minPermission || p > maxPermission {
		return invalid(record.ColAccessPermissions, raw, "must be between %d and %d", minPermission, maxPermission)
	}

	raw = v[record.ColAccessCaller]
	caller, ok, err := v.Text(record.ColAccessCaller)
	if err != nil || !ok || !strings.Contains(caller, ".") {
		return invalid(record.ColAccessCaller, raw, "must be a dotted caller identity")
	}
	return nil
}
