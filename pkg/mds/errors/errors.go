// Package errors provides the error taxonomy of the metadata authority.
// This is a leaf package with no internal dependencies so that every
// component (lease, session, replica, recovery) and the transports can share
// the same codes without import cycles.
//
// Import graph: errors <- block <- lease, session, replica <- recovery <- mds
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred.
//
// ErrorCode implements error so that callers can match on a code directly:
//
//	if errors.Is(err, mdserrors.ErrCloseConflict) { ... }
type ErrorCode int

const (
	// ErrAlreadyLeased indicates another holder owns a live lease on the file.
	ErrAlreadyLeased ErrorCode = iota + 1

	// ErrNotLeaseHolder indicates the caller does not hold the lease it
	// tried to renew or release.
	ErrNotLeaseHolder

	// ErrNoActiveSession indicates the file has no write session that accepts
	// the operation.
	ErrNoActiveSession

	// ErrCloseConflict indicates close was rejected because the file was
	// renamed or deleted, the lease was lost, or recovery is in flight.
	// The session stays under construction and the lease is retained.
	ErrCloseConflict

	// ErrRecoveryMismatch indicates a second finalize with a different
	// block identity. This signals a protocol bug.
	ErrRecoveryMismatch

	// ErrNoViableReplica indicates no replica answered during recovery.
	ErrNoViableReplica

	// ErrRecoveryFailed indicates no replica accepted the new generation stamp.
	ErrRecoveryFailed

	// ErrNotFound indicates the requested file, block or node is unknown.
	ErrNotFound

	// ErrInvalidArgument indicates an invalid argument was provided.
	ErrInvalidArgument

	// ErrStaleGenStamp indicates a replica operation carried a generation
	// stamp older than the one already applied.
	ErrStaleGenStamp

	// ErrUnrecoverable indicates recovery exhausted its attempts for a file.
	ErrUnrecoverable

	// ErrAlreadyExists indicates a namespace path is already bound.
	ErrAlreadyExists
)

// String returns a human-readable name for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrAlreadyLeased:
		return "AlreadyLeased"
	case ErrNotLeaseHolder:
		return "NotLeaseHolder"
	case ErrNoActiveSession:
		return "NoActiveSession"
	case ErrCloseConflict:
		return "CloseConflict"
	case ErrRecoveryMismatch:
		return "RecoveryMismatch"
	case ErrNoViableReplica:
		return "NoViableReplica"
	case ErrRecoveryFailed:
		return "RecoveryFailed"
	case ErrNotFound:
		return "NotFound"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrStaleGenStamp:
		return "StaleGenStamp"
	case ErrUnrecoverable:
		return "Unrecoverable"
	case ErrAlreadyExists:
		return "AlreadyExists"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

// Error implements the error interface.
func (e ErrorCode) Error() string {
	return e.String()
}

// ParseCode returns the code with the given name, or 0 if unknown.
// It is the inverse of String and is used by transports that carry the
// code by name.
func ParseCode(name string) ErrorCode {
	for c := ErrAlreadyLeased; c <= ErrAlreadyExists; c++ {
		if c.String() == name {
			return c
		}
	}
	return 0
}

// MDSError represents an authority error with an error code.
type MDSError struct {
	Code    ErrorCode
	Message string
	FileID  uint64
}

// Error implements the error interface.
func (e *MDSError) Error() string {
	if e.FileID != 0 {
		return fmt.Sprintf("%s: %s (file: %d)", e.Code, e.Message, e.FileID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on the error code, so both an ErrorCode and another *MDSError
// with the same code compare equal.
func (e *MDSError) Is(target error) bool {
	switch t := target.(type) {
	case ErrorCode:
		return e.Code == t
	case *MDSError:
		return e.Code == t.Code
	}
	return false
}

// CodeOf extracts the error code from err, or 0 if err carries none.
func CodeOf(err error) ErrorCode {
	var mdsErr *MDSError
	if stderrors.As(err, &mdsErr) {
		return mdsErr.Code
	}
	var code ErrorCode
	if stderrors.As(err, &code) {
		return code
	}
	return 0
}

// New creates an error with the given code and message.
func New(code ErrorCode, fileID uint64, format string, args ...any) *MDSError {
	return &MDSError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		FileID:  fileID,
	}
}

// ============================================================================
// Factory Functions
// ============================================================================

// NewAlreadyLeasedError creates an AlreadyLeased error naming the current holder.
func NewAlreadyLeasedError(fileID uint64, holder string) *MDSError {
	return New(ErrAlreadyLeased, fileID, "lease held by %q", holder)
}

// NewNotLeaseHolderError creates a NotLeaseHolder error.
func NewNotLeaseHolderError(fileID uint64, caller string) *MDSError {
	return New(ErrNotLeaseHolder, fileID, "%q does not hold the lease", caller)
}

// NewNoActiveSessionError creates a NoActiveSession error.
func NewNoActiveSessionError(fileID uint64, reason string) *MDSError {
	return New(ErrNoActiveSession, fileID, "no active write session: %s", reason)
}

// NewCloseConflictError creates a CloseConflict error.
func NewCloseConflictError(fileID uint64, reason string) *MDSError {
	return New(ErrCloseConflict, fileID, "close rejected: %s", reason)
}

// NewRecoveryMismatchError creates a RecoveryMismatch error.
func NewRecoveryMismatchError(fileID uint64, have, want string) *MDSError {
	return New(ErrRecoveryMismatch, fileID, "already finalized as %s, refusing %s", have, want)
}

// NewNoViableReplicaError creates a NoViableReplica error.
func NewNoViableReplicaError(fileID, blockID uint64) *MDSError {
	return New(ErrNoViableReplica, fileID, "no replica reported block %d", blockID)
}

// NewRecoveryFailedError creates a RecoveryFailed error.
func NewRecoveryFailedError(fileID, blockID uint64, reason string) *MDSError {
	return New(ErrRecoveryFailed, fileID, "recovery of block %d failed: %s", blockID, reason)
}

// NewNotFoundError creates a NotFound error.
func NewNotFoundError(fileID uint64, resourceType string) *MDSError {
	return New(ErrNotFound, fileID, "%s not found", resourceType)
}

// NewInvalidArgumentError creates an InvalidArgument error.
func NewInvalidArgumentError(fileID uint64, message string) *MDSError {
	return &MDSError{Code: ErrInvalidArgument, Message: message, FileID: fileID}
}

// NewStaleGenStampError creates a StaleGenStamp error.
func NewStaleGenStampError(blockID, have, got uint64) *MDSError {
	return New(ErrStaleGenStamp, 0, "block %d is at generation stamp %d, got %d", blockID, have, got)
}

// NewUnrecoverableError creates an Unrecoverable error.
func NewUnrecoverableError(fileID uint64, attempts int) *MDSError {
	return New(ErrUnrecoverable, fileID, "recovery gave up after %d attempts", attempts)
}

// NewAlreadyExistsError creates an AlreadyExists error for a namespace path.
func NewAlreadyExistsError(path string) *MDSError {
	return New(ErrAlreadyExists, 0, "path %q already exists", path)
}

// ============================================================================
// Error Type Checking Helpers
// ============================================================================

// IsConflict returns true for errors that a caller resolves by waiting or
// retrying rather than by fixing its request.
func IsConflict(err error) bool {
	switch CodeOf(err) {
	case ErrAlreadyLeased, ErrCloseConflict, ErrNotLeaseHolder:
		return true
	}
	return false
}

// IsNotFound returns true if the error is a NotFound error.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrNotFound
}
