package keystore

import (
	"errors"
	"fmt"
)

// ErrSecurity is matched by every *SecurityError.
var ErrSecurity = errors.New("security failure")

// ErrNoKey is returned by a Facility when the alias holds no key.
var ErrNoKey = errors.New("no key for alias")

// SecurityError reports missing or corrupt key material. It is fatal: the
// store cannot be opened and no recovery path re-derives a lost key.
type SecurityError struct {
	Op  string
	Err error
}

func (e *SecurityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("security: %s: %v", e.Op, e.Err)
	}
	return "security: " + e.Op
}

func (e *SecurityError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrSecurity) match.
func (e *SecurityError) Is(target error) bool {
	return target == ErrSecurity
}

// IsSecurityError reports whether err is or wraps a *SecurityError.
func IsSecurityError(err error) bool {
	var se *SecurityError
	return errors.As(err, &se)
}
