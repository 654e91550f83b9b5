// Package errors provides structured error types for the placemat engine.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI and the pipeline
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures
//   - SOLVER_*: Analytical solver failures
//   - PLACEMENT_* / OCCUPANCY_* / MACRO_*: Placement-state consistency failures
//   - NOC_*: Network-on-chip cost model failures
//
// Consistency failures are fatal: they indicate a bug in incremental state
// maintenance or an unroutable traffic configuration, and callers must abort
// the run rather than retry.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidPlacement, "block %d has no site", blk)
//	if errors.Is(err, errors.ErrCodeInvalidPlacement) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeSolverDivergence, origErr, "iteration %d", iter)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput     Code = "INVALID_INPUT"
	ErrCodeInvalidNetlist   Code = "INVALID_NETLIST"
	ErrCodeInvalidGrid      Code = "INVALID_GRID"
	ErrCodeInvalidPlacement Code = "INVALID_PLACEMENT"
	ErrCodeInvalidConfig    Code = "INVALID_CONFIG"

	// Analytical solver errors
	ErrCodeSolverDivergence Code = "SOLVER_DIVERGENCE"

	// Fatal consistency errors. These indicate a bug in incremental cost or
	// occupancy maintenance and abort the whole placement run.
	ErrCodePlacementInconsistent Code = "PLACEMENT_INCONSISTENT"
	ErrCodeOccupancyViolation    Code = "OCCUPANCY_VIOLATION"
	ErrCodeMacroViolation        Code = "MACRO_VIOLATION"

	// Network-on-chip cost model errors
	ErrCodeNocRoutingCycle Code = "NOC_ROUTING_CYCLE"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsFatal reports whether err carries a code that must abort the whole
// placement run. Fatal codes are never retried: they mean either the
// incremental bookkeeping diverged from reality or the NoC traffic
// configuration cannot be routed at all.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case ErrCodePlacementInconsistent, ErrCodeOccupancyViolation,
		ErrCodeMacroViolation, ErrCodeNocRoutingCycle:
		return true
	}
	return false
}
