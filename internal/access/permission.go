package access

import (
	"fmt"
	"strconv"
	"strings"
)

// Permission is a bitmask of the operations a caller may perform on one
// metric.
type Permission int

const (
	None  Permission = 0
	Read  Permission = 1 << 0
	Write Permission = 1 << 1
	All              = Read | Write
)

// Has reports whether every bit of q is set in p.
func (p Permission) Has(q Permission) bool {
	return p&q == q
}

// Valid reports whether p is one of None, Read, Write or All.
func (p Permission) Valid() bool {
	return p >= None && p <= All
}

// String implements fmt.Stringer.
func (p Permission) String() string {
	switch p {
	case None:
		return "none"
	case Read:
		return "read"
	case Write:
		return "write"
	case All:
		return "all"
	}
	return fmt.Sprintf("Permission(%d)", int(p))
}

// ParsePermission accepts a permission name or its numeric value.
func ParsePermission(s string) (Permission, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return None, nil
	case "read":
		return Read, nil
	case "write":
		return Write, nil
	case "all":
		return All, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !Permission(n).Valid() {
		return None, fmt.Errorf("invalid permission %q", s)
	}
	return Permission(n), nil
}
