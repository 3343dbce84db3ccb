package healthstore

import (
	"errors"

	"github.com/roach88/healthstore/internal/coordinator"
	"github.com/roach88/healthstore/internal/keystore"
	"github.com/roach88/healthstore/internal/policy"
	"github.com/roach88/healthstore/internal/provider"
	"github.com/roach88/healthstore/internal/sqlcheck"
	"github.com/roach88/healthstore/internal/validate"
)

// Error codes reported for failed requests.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeUnsupportedVersion = "UNSUPPORTED_VERSION"
	CodeValidation         = "VALIDATION"
	CodeBadRequest         = "BAD_REQUEST"
	CodeSecurity           = "SECURITY"
	CodeUnknown            = "ERROR"
)

// ErrorCode classifies err into a stable machine-readable code. Coordinator
// errors keep their own code; policy errors are prefixed with POLICY_.
func ErrorCode(err error) string {
	var ce *coordinator.Error
	var pe *policy.Error
	switch {
	case err == nil:
		return ""
	case sqlcheck.IsInvalidInput(err):
		return CodeInvalidInput
	case validate.IsUnsupportedVersion(err):
		return CodeUnsupportedVersion
	case validate.IsValidationError(err):
		return CodeValidation
	case provider.IsClientError(err):
		return CodeBadRequest
	case keystore.IsSecurityError(err):
		return CodeSecurity
	case errors.As(err, &pe):
		return "POLICY_" + pe.Code
	case errors.As(err, &ce):
		return string(ce.Code)
	}
	return CodeUnknown
}
