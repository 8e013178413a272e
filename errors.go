package mediadrv

import "github.com/ehrlich-b/go-mediadrv/internal/gpu"

// Error is a structured driver error carrying the failing operation, the
// function type involved and a high-level code.
type Error = gpu.Error

// ErrorCode is a high-level error category.
type ErrorCode = gpu.Code

const (
	ErrCodeNullDependency   = gpu.CodeNullDependency
	ErrCodeNotFound         = gpu.CodeNotFound
	ErrCodeInvalidHandle    = gpu.CodeInvalidHandle
	ErrCodeInvalidParameter = gpu.CodeInvalidParameter
	ErrCodeCreationFailed   = gpu.CodeCreationFailed
	ErrCodeUninitialized    = gpu.CodeUninitialized
	ErrCodeUnimplemented    = gpu.CodeUnimplemented
	ErrCodeNoCurrentContext = gpu.CodeNoCurrentContext
	ErrCodeCapacityExceeded = gpu.CodeCapacityExceeded
	ErrCodeOutOfMemory      = gpu.CodeOutOfMemory
	ErrCodeDeviceError      = gpu.CodeDeviceError
)

// Status is a sentinel error matching any *Error of the same code under
// errors.Is.
type Status = gpu.Status

const (
	ErrNullDependency   = gpu.ErrNullDependency
	ErrNotFound         = gpu.ErrNotFound
	ErrInvalidHandle    = gpu.ErrInvalidHandle
	ErrInvalidParameter = gpu.ErrInvalidParameter
	ErrCreationFailed   = gpu.ErrCreationFailed
	ErrUninitialized    = gpu.ErrUninitialized
	ErrUnimplemented    = gpu.ErrUnimplemented
	ErrNoCurrentContext = gpu.ErrNoCurrentContext
	ErrCapacityExceeded = gpu.ErrCapacityExceeded
	ErrOutOfMemory      = gpu.ErrOutOfMemory
	ErrDeviceError      = gpu.ErrDeviceError
)

// NewError creates a new structured error
func NewError(op string, code ErrorCode, msg string) *Error {
	return gpu.NewError(op, code, msg)
}

// WrapError wraps an existing error with driver context, mapping OS errno
// values onto codes.
func WrapError(op string, inner error) *Error {
	return gpu.WrapError(op, inner)
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	return gpu.IsCode(err, code)
}
