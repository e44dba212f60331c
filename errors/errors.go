// Package errors provides the structured error type shared by every mangrove package.
//
// Each failure carries a machine-readable Code. Errors compare equal under errors.Is
// when their codes match, so callers can test against the exported sentinels no
// matter how deeply the error was wrapped:
//
//	if errors.Is(err, apperrors.ErrNotConnected) {
//	    // call Connect first
//	}
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an error that carries no mangrove code.
	CodeUnknown Code = "UNKNOWN"
	// CodeUnknownService means the catalog does not recognize a service name.
	CodeUnknownService Code = "UNKNOWN_SERVICE"
	// CodeInvalidConfiguration means a region specification is malformed.
	CodeInvalidConfiguration Code = "INVALID_CONFIGURATION"
	// CodeRegionNotDeclared means a region is not part of the current region set.
	CodeRegionNotDeclared Code = "REGION_NOT_DECLARED"
	// CodeNotConnected means a region was read before it was submitted for dial-out.
	CodeNotConnected Code = "NOT_CONNECTED"
	// CodeConnectivityFailure wraps a dial-out failure reported by the collaborator.
	CodeConnectivityFailure Code = "CONNECTIVITY_FAILURE"
)

// Sentinels for errors.Is comparisons.
var (
	ErrUnknownService       = New(CodeUnknownService, "unknown service")
	ErrInvalidConfiguration = New(CodeInvalidConfiguration, "invalid configuration")
	ErrRegionNotDeclared    = New(CodeRegionNotDeclared, "region not declared")
	ErrNotConnected         = New(CodeNotConnected, "not connected")
	ErrConnectivityFailure  = New(CodeConnectivityFailure, "connectivity failure")
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Human-readable message
	Metadata map[string]string // Service, region and similar context
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "mangrove error"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithMetadata creates a domain error with metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithMetadata creates a domain error with both metadata and a cause.
func WrapWithMetadata(code Code, message string, metadata map[string]string, cause error) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
		Cause:    cause,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) && e != nil {
		return e.Code
	}
	return CodeUnknown
}
