package coordinator

import (
	"errors"
	"fmt"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

// ErrorCode categorizes coordinator errors.
type ErrorCode string

const (
	// ErrCodeInvalidAddress indicates a URI that no facade serves.
	ErrCodeInvalidAddress ErrorCode = "INVALID_ADDRESS"

	// ErrCodeUnsupported indicates an operation the addressed facade does
	// not support, such as updating a collection that only allows inserts.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED"

	// ErrCodeStorage indicates an engine failure. The transaction was
	// rolled back.
	ErrCodeStorage ErrorCode = "STORAGE"

	// ErrCodeNoCaller indicates a request without a caller identity.
	ErrCodeNoCaller ErrorCode = "NO_CALLER"
)

// Error is returned for addressing, support and storage failures.
// Validation, token and security failures keep their own types.
type Error struct {
	Code    ErrorCode
	Message string
	URI     string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.URI != "" {
		msg += " (uri=" + e.URI + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidAddress returns an error for a URI no facade serves.
func InvalidAddress(uri, reason string) *Error {
	return &Error{Code: ErrCodeInvalidAddress, Message: reason, URI: uri}
}

// Unsupported returns an error for an operation the facade rejects.
func Unsupported(uri, reason string) *Error {
	return &Error{Code: ErrCodeUnsupported, Message: reason, URI: uri}
}

func storageError(op string, err error) *Error {
	return &Error{Code: ErrCodeStorage, Message: op, Err: err}
}

// IsInvalidAddress returns true if the error is an unknown address error.
// Uses errors.As to handle wrapped errors.
func IsInvalidAddress(err error) bool {
	return hasCode(err, ErrCodeInvalidAddress)
}

// IsUnsupported returns true if the error is an unsupported operation error.
func IsUnsupported(err error) bool {
	return hasCode(err, ErrCodeUnsupported)
}

// IsStorageError returns true if the error is an engine failure.
func IsStorageError(err error) bool {
	return hasCode(err, ErrCodeStorage)
}

// IsNoCaller returns true if the request carried no caller identity.
func IsNoCaller(err error) bool {
	return hasCode(err, ErrCodeNoCaller)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// classify wraps engine errors as storage errors and passes every other
// error through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return storageError(op, err)
	}
	return err
}
