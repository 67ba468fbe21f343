package errors

import "strings"

// ErrorCode is a string representation of a specific error condition.  The
// prefix before the underscore names the module that raised it.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal        ErrorCode = "COMMON_001"
	ErrCodeBadRequest      ErrorCode = "COMMON_002"
	ErrCodeNotFound        ErrorCode = "COMMON_005"
	ErrCodeConflict        ErrorCode = "COMMON_006"
	ErrCodeUnavailable     ErrorCode = "COMMON_008"
	ErrCodeSerialization   ErrorCode = "COMMON_011"
	ErrCodeCacheError      ErrorCode = "COMMON_013"
	ErrCodeExternalService ErrorCode = "COMMON_014"
	ErrCodeCanceled        ErrorCode = "COMMON_017"
)

// Configuration Error Codes
const (
	ErrCodeSolverExecutable ErrorCode = "CONFIG_001"
	ErrCodeInvalidConfig    ErrorCode = "CONFIG_002"
)

// Solver Error Codes
const (
	ErrCodeSolverProtocol ErrorCode = "SOLVER_001"
	ErrCodeSolverIO       ErrorCode = "SOLVER_002"
	ErrCodeSolverClosed   ErrorCode = "SOLVER_003"
)

// Molecule Data Error Codes
const (
	ErrCodeMissingAttribute  ErrorCode = "DATA_001"
	ErrCodeUnknownAtomType   ErrorCode = "DATA_002"
	ErrCodeMalformedInput    ErrorCode = "DATA_003"
	ErrCodeUnsupportedFormat ErrorCode = "DATA_004"
)

// Repository Error Codes
const (
	ErrCodeInvariantViolation ErrorCode = "REPO_001"
	ErrCodeNotTraceable       ErrorCode = "REPO_002"
	ErrCodeNoCanonizer        ErrorCode = "REPO_003"
)

// Archive Error Codes
const (
	ErrCodeArchiveRead  ErrorCode = "ARCH_001"
	ErrCodeArchiveWrite ErrorCode = "ARCH_002"
)

// Short aliases used at call sites.
const (
	CodeOK      = ErrorCode("OK")
	CodeUnknown = ErrorCode("UNKNOWN")

	CodeInternal       = ErrCodeInternal
	CodeInvalidParam   = ErrCodeBadRequest
	CodeNotFound       = ErrCodeNotFound
	CodeConflict       = ErrCodeConflict
	CodeUnavailable    = ErrCodeUnavailable
	CodeSerialization  = ErrCodeSerialization
	CodeCacheError     = ErrCodeCacheError
	CodeStorageError   = ErrCodeExternalService
	CodeCanceled       = ErrCodeCanceled
	CodeSolverExec     = ErrCodeSolverExecutable
	CodeInvalidConfig  = ErrCodeInvalidConfig
	CodeSolverProtocol = ErrCodeSolverProtocol
	CodeSolverIO       = ErrCodeSolverIO
	CodeSolverClosed   = ErrCodeSolverClosed

	CodeMissingAttribute  = ErrCodeMissingAttribute
	CodeUnknownAtomType   = ErrCodeUnknownAtomType
	CodeMalformedInput    = ErrCodeMalformedInput
	CodeUnsupportedFormat = ErrCodeUnsupportedFormat

	CodeInvariantViolation = ErrCodeInvariantViolation
	CodeNotTraceable       = ErrCodeNotTraceable
	CodeNoCanonizer        = ErrCodeNoCanonizer

	CodeArchiveRead  = ErrCodeArchiveRead
	CodeArchiveWrite = ErrCodeArchiveWrite
)

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:        "internal error",
	ErrCodeBadRequest:      "invalid parameter",
	ErrCodeNotFound:        "not found",
	ErrCodeConflict:        "conflict",
	ErrCodeUnavailable:     "service unavailable",
	ErrCodeSerialization:   "serialization failed",
	ErrCodeCacheError:      "cache error",
	ErrCodeExternalService: "external service error",
	ErrCodeCanceled:        "operation canceled",

	ErrCodeSolverExecutable: "solver executable missing or not executable",
	ErrCodeInvalidConfig:    "invalid configuration",

	ErrCodeSolverProtocol: "unexpected solver output",
	ErrCodeSolverIO:       "solver i/o failed",
	ErrCodeSolverClosed:   "solver channel closed",

	ErrCodeMissingAttribute:  "missing atom attribute",
	ErrCodeUnknownAtomType:   "unknown atom type",
	ErrCodeMalformedInput:    "malformed molecule input",
	ErrCodeUnsupportedFormat: "unsupported molecule format",

	ErrCodeInvariantViolation: "repository invariant violated",
	ErrCodeNotTraceable:       "repository is not traceable",
	ErrCodeNoCanonizer:        "repository has no canonizer",

	ErrCodeArchiveRead:  "failed to read archive",
	ErrCodeArchiveWrite: "failed to write archive",
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 1 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}

// IsFatal reports whether errors with the given code must abort the
// enclosing operation without any retry.  Only solver I/O failures are
// recoverable, and only by respawning the solver before the next request.
func IsFatal(code ErrorCode) bool {
	return code != ErrCodeSolverIO
}
