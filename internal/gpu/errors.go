package gpu

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// Error is a structured driver error carrying the failing operation and a
// high-level code.
type Error struct {
	Op    string     // Operation that failed (e.g., "CREATE_CONTEXT", "SURFACE_COPY")
	Func  string     // Function type involved ("" if not applicable)
	Code  Code       // High-level error category
	Errno unix.Errno // OS errno (0 if not applicable)
	Msg   string     // Human-readable message
	Inner error      // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}
	if e.Func != "" {
		parts = append(parts, "func="+e.Func)
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("mediadrv: %s (%s)", msg, strings.Join(parts, ", "))
	}
	return "mediadrv: " + msg
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches sentinel statuses and other structured errors by code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if s, ok := target.(Status); ok {
		return e.Code == Code(s)
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// Code represents high-level error categories
type Code string

const (
	CodeNullDependency   Code = "null dependency"
	CodeNotFound         Code = "not found"
	CodeInvalidHandle    Code = "invalid handle"
	CodeInvalidParameter Code = "invalid parameter"
	CodeCreationFailed   Code = "creation failed"
	CodeUninitialized    Code = "uninitialized"
	CodeUnimplemented    Code = "unimplemented"
	CodeNoCurrentContext Code = "no current context"
	CodeCapacityExceeded Code = "capacity exceeded"
	CodeOutOfMemory      Code = "insufficient memory"
	CodeDeviceError      Code = "device error"
)

// Status is a sentinel error usable with errors.Is against any *Error of
// the same code.
type Status string

func (s Status) Error() string {
	return "mediadrv: " + string(s)
}

const (
	ErrNullDependency   Status = Status(CodeNullDependency)
	ErrNotFound         Status = Status(CodeNotFound)
	ErrInvalidHandle    Status = Status(CodeInvalidHandle)
	ErrInvalidParameter Status = Status(CodeInvalidParameter)
	ErrCreationFailed   Status = Status(CodeCreationFailed)
	ErrUninitialized    Status = Status(CodeUninitialized)
	ErrUnimplemented    Status = Status(CodeUnimplemented)
	ErrNoCurrentContext Status = Status(CodeNoCurrentContext)
	ErrCapacityExceeded Status = Status(CodeCapacityExceeded)
	ErrOutOfMemory      Status = Status(CodeOutOfMemory)
	ErrDeviceError      Status = Status(CodeDeviceError)
)

// NewError creates a new structured error
func NewError(op string, code Code, msg string) *Error {
	return &Error{
		Op:   op,
		Code: code,
		Msg:  msg,
	}
}

// NewFuncError creates an error scoped to a function type
func NewFuncError(op string, f FuncType, code Code, msg string) *Error {
	return &Error{
		Op:   op,
		Func: f.String(),
		Code: code,
		Msg:  msg,
	}
}

// WrapError wraps an existing error with driver context
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	var ge *Error
	if errors.As(inner, &ge) {
		return &Error{
			Op:    op,
			Func:  ge.Func,
			Code:  ge.Code,
			Errno: ge.Errno,
			Msg:   ge.Msg,
			Inner: ge.Inner,
		}
	}

	var errno unix.Errno
	if errors.As(inner, &errno) {
		return &Error{
			Op:    op,
			Code:  mapErrnoToCode(errno),
			Errno: errno,
			Msg:   inner.Error(),
			Inner: inner,
		}
	}

	return &Error{
		Op:    op,
		Code:  CodeDeviceError,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// mapErrnoToCode maps OS errno values to driver error codes
func mapErrnoToCode(errno unix.Errno) Code {
	switch errno {
	case unix.ENOENT:
		return CodeNotFound
	case unix.EBADF:
		return CodeInvalidHandle
	case unix.EINVAL, unix.E2BIG:
		return CodeInvalidParameter
	case unix.ENOMEM, unix.ENOSPC:
		return CodeOutOfMemory
	case unix.ENOSYS, unix.EOPNOTSUPP:
		return CodeUnimplemented
	default:
		return CodeDeviceError
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code Code) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code == code
	}
	return false
}

// CodeOf returns the code of a structured error, or "" for other errors.
func CodeOf(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}
