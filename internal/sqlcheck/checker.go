package sqlcheck

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// ReservedPrefix marks identifiers used internally by the store. It is
// always denied, regardless of the denylist. Must be lowercase.
const ReservedPrefix = "x_"

// SubqueryKeyword is the literal that begins a sub-query.
const SubqueryKeyword = "select"

// ErrInvalidInput is matched by every *InvalidInputError.
var ErrInvalidInput = errors.New("invalid input")

// InvalidInputError reports a rejected fragment.
type InvalidInputError struct {
	// Reason is a short description of the failure.
	Reason string

	// Token is the offending identifier, empty for structural failures.
	Token string

	// Fragment is the original, unmodified input.
	Fragment string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%s in %s", e.Reason, e.Fragment)
}

// Is makes errors.Is(err, ErrInvalidInput) match.
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// IsInvalidInput reports whether err is or wraps an *InvalidInputError.
func IsInvalidInput(err error) bool {
	var ie *InvalidInputError
	return errors.As(err, &ie)
}

// Checker validates fragments against a fixed denylist.
// A Checker is immutable and safe for concurrent use.
type Checker struct {
	denied map[string]struct{}
}

// New builds a Checker. Denylist entries are case-folded.
func New(denylist []string) *Checker {
	c := &Checker{denied: make(map[string]struct{}, len(denylist))}
	for _, tok := range denylist {
		c.denied[fold(tok)] = struct{}{}
	}
	return c
}

// Denied reports whether token is on the denylist or carries the reserved prefix.
func (c *Checker) Denied(token string) bool {
	folded := fold(token)
	if strings.HasPrefix(folded, ReservedPrefix) {
		return true
	}
	_, ok := c.denied[folded]
	return ok
}

// EnsureNoInvalidTokens fails on the first denied identifier in fragment.
func (c *Checker) EnsureNoInvalidTokens(fragment string) error {
	return scan(fragment, modeAny, func(token string) error {
		return c.checkToken(token, fragment)
	})
}

// EnsureSingleTokenOnly fails unless fragment is exactly one allowed identifier.
func (c *Checker) EnsureSingleTokenOnly(fragment string) error {
	found := false
	err := scan(fragment, modeSingleToken, func(token string) error {
		if found {
			return &InvalidInputError{Reason: "Multiple tokens detected", Token: token, Fragment: fragment}
		}
		found = true
		return c.checkToken(token, fragment)
	})
	if err != nil {
		return err
	}
	if !found {
		return &InvalidInputError{Reason: "Token not found", Fragment: fragment}
	}
	return nil
}

// EnsureProjection validates every column of a projection.
func (c *Checker) EnsureProjection(columns []string) error {
	for _, col := range columns {
		if err := c.EnsureSingleTokenOnly(col); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkToken(token, fragment string) error {
	if c.Denied(token) {
		return &InvalidInputError{
			Reason:   "Detected disallowed token: " + token,
			Token:    token,
			Fragment: fragment,
		}
	}
	return nil
}

// fold case-folds s. A Caser holds state, so one is made per call.
func fold(s string) string {
	return cases.Fold().String(s)
}
