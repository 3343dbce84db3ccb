// Package validate checks and normalizes mutation payloads before they reach
// storage.
//
// Every payload may declare the schema version it was written against in
// its _version field. The field is always removed from the payload. When it
// is absent the minimum supported version is assumed; when it names a
// version this build does not know, validation fails closed with an
// *UnsupportedVersionError. Rules are then picked from the highest version
// the chain implements that is not newer than the declared one.
//
// Rule violations fail with a *ValidationError naming the field and the
// offending value. Nothing is silently dropped, with one exception: a
// non-positive record id means "not yet assigned" and is stripped so that
// storage allocates one.
package validate

import (
	"github.com/roach88/healthstore/internal/record"
)

// Validator checks a payload and may normalize it in place.
type Validator interface {
	Validate(v record.Values) error
}

// rules validates a payload against one schema version.
type rules func(v record.Values) error

type step struct {
	since record.Version
	check rules
}

// Chain dispatches a payload to the rules of its declared version.
type Chain struct {
	name string

	// steps is ordered newest first.
	steps []step

	// versioned is false for payloads that never carry _version.
	versioned bool
}

// Validate implements Validator.
func (c *Chain) Validate(v record.Values) error {
	if v == nil {
		return &ValidationError{Reason: c.name + " payload cannot be nil"}
	}
	version := record.CurrentVersion
	if c.versioned {
		var err error
		version, err = pullVersion(v)
		if err != nil {
			return err
		}
	}
	for _, s := range c.steps {
		if version >= s.since {
			return s.check(v)
		}
	}
	return &UnsupportedVersionError{Version: version}
}

// pullVersion reads and removes _version from v.
func pullVersion(v record.Values) (record.Version, error) {
	raw := v[record.ColVersion]
	n, ok, err := v.Int(record.ColVersion)
	delete(v, record.ColVersion)
	if err != nil {
		return 0, invalid(record.ColVersion, raw, "must be an integer")
	}
	if !ok {
		return record.MinVersion, nil
	}
	version := record.Version(n)
	if version < record.MinVersion || version > record.CurrentVersion {
		return 0, &UnsupportedVersionError{Version: version}
	}
	return version, nil
}
