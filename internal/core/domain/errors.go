package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a recovery store error with a structured error code.
type DomainError struct {
	Code    string // Error code (e.g., "RC-IO-5000")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithDetailsf is WithDetails with fmt.Sprintf formatting.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Storage Errors (IO)
// ============================================================================

var (
	// ErrIO indicates a create, write, flush or rename failure on the backup root.
	ErrIO = NewDomainError("RC-IO-5000", "backup i/o failure")
)

// ============================================================================
// Process Errors (PROC)
// ============================================================================

var (
	// ErrLivenessProbe indicates the platform liveness probe could not run.
	// Sessions whose probe fails are classified as not running.
	ErrLivenessProbe = NewDomainError("RC-PROC-5001", "liveness probe failed")

	// ErrProbeUnsupported indicates the platform has no liveness probe.
	ErrProbeUnsupported = NewDomainError("RC-PROC-5010", "liveness probe not supported on this platform")
)

// ============================================================================
// Format Errors (FMT)
// ============================================================================

var (
	// ErrFormat indicates a document header is missing, truncated or invalid.
	ErrFormat = NewDomainError("RC-FMT-4220", "backup format invalid")

	// ErrVersionMismatch indicates a header written by an unsupported format version.
	ErrVersionMismatch = NewDomainError("RC-FMT-4221", "backup format version not supported")
)

// ============================================================================
// Session Errors (SESS)
// ============================================================================

var (
	// ErrCorruptSession indicates both the liveness marker and the activity
	// log of a session directory are unreadable.
	ErrCorruptSession = NewDomainError("RC-SESS-4220", "session directory corrupt")

	// ErrSessionNotFound indicates the requested session directory does not exist.
	ErrSessionNotFound = NewDomainError("RC-SESS-4040", "session not found")

	// ErrSessionConflict indicates the session directory belongs to another pid.
	ErrSessionConflict = NewDomainError("RC-SESS-4090", "session owned by another process")

	// ErrSessionClosed indicates an operation on a released session.
	ErrSessionClosed = NewDomainError("RC-SESS-4100", "session closed")
)

// ============================================================================
// Backup Errors (BAK)
// ============================================================================

var (
	// ErrBackupNotFound indicates the backup directory no longer exists.
	ErrBackupNotFound = NewDomainError("RC-BAK-4040", "backup not found")
)

// ============================================================================
// Document Errors (DOC)
// ============================================================================

var (
	// ErrInvalidDocument indicates a document that cannot be encoded.
	ErrInvalidDocument = NewDomainError("RC-DOC-4000", "invalid document")
)
