package gpu

import (
	"errors"
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
)

func TestStructuredError(t *testing.T) {
	err := NewError("CREATE_CONTEXT", CodeInvalidParameter, "unknown function type")

	if err.Op != "CREATE_CONTEXT" {
		t.Errorf("Expected Op=CREATE_CONTEXT, got %s", err.Op)
	}

	if err.Code != CodeInvalidParameter {
		t.Errorf("Expected Code=CodeInvalidParameter, got %s", err.Code)
	}

	expected := "mediadrv: unknown function type (op=CREATE_CONTEXT)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestFuncError(t *testing.T) {
	err := NewFuncError("SET_CONTEXT", FuncRender, CodeNotFound, "")

	expected := "mediadrv: not found (op=SET_CONTEXT, func=render)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestWrapError(t *testing.T) {
	err := WrapError("LOCK", unix.ENOMEM)

	if err.Code != CodeOutOfMemory {
		t.Errorf("Expected Code=CodeOutOfMemory, got %s", err.Code)
	}

	if err.Errno != unix.ENOMEM {
		t.Errorf("Expected Errno=ENOMEM, got %v", err.Errno)
	}

	if !errors.Is(err, unix.ENOMEM) {
		t.Error("Expected wrapped error to satisfy errors.Is for ENOMEM")
	}
}

func TestWrapErrorKeepsStructuredCode(t *testing.T) {
	inner := NewError("ALLOCATE", CodeCreationFailed, "driver refused")
	err := WrapError("REALLOCATE", fmt.Errorf("outer: %w", inner))

	if err.Op != "REALLOCATE" {
		t.Errorf("Expected Op=REALLOCATE, got %s", err.Op)
	}
	if err.Code != CodeCreationFailed {
		t.Errorf("Expected Code=CodeCreationFailed, got %s", err.Code)
	}
}

func TestWrapErrorPlain(t *testing.T) {
	err := WrapError("SUBMIT", errors.New("ring hung"))
	if err.Code != CodeDeviceError {
		t.Errorf("Expected Code=CodeDeviceError, got %s", err.Code)
	}
	if WrapError("SUBMIT", nil) != nil {
		t.Error("WrapError(nil) should be nil")
	}
}

func TestSentinelErrors(t *testing.T) {
	structuredErr := &Error{Code: CodeNotFound}

	if !errors.Is(structuredErr, ErrNotFound) {
		t.Error("Structured error should match sentinel via errors.Is")
	}
	if errors.Is(structuredErr, ErrInvalidHandle) {
		t.Error("Structured error should not match a different sentinel")
	}

	if ErrNotFound.Error() != "mediadrv: not found" {
		t.Errorf("Expected sentinel error message, got %q", ErrNotFound.Error())
	}

	wrapped := fmt.Errorf("pipeline: %w", NewError("DESTROY_CONTEXT", CodeNotFound, "missing"))
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("fmt-wrapped structured error should match sentinel")
	}
}

func TestErrnoMapping(t *testing.T) {
	tests := []struct {
		errno unix.Errno
		code  Code
	}{
		{unix.ENOENT, CodeNotFound},
		{unix.EBADF, CodeInvalidHandle},
		{unix.EINVAL, CodeInvalidParameter},
		{unix.E2BIG, CodeInvalidParameter},
		{unix.ENOMEM, CodeOutOfMemory},
		{unix.ENOSPC, CodeOutOfMemory},
		{unix.ENOSYS, CodeUnimplemented},
		{unix.EIO, CodeDeviceError},
	}

	for _, tt := range tests {
		t.Run(tt.errno.Error(), func(t *testing.T) {
			if got := mapErrnoToCode(tt.errno); got != tt.code {
				t.Errorf("mapErrnoToCode(%v) = %s, want %s", tt.errno, got, tt.code)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	err := NewError("VERIFY", CodeCapacityExceeded, "too large")

	if !IsCode(err, CodeCapacityExceeded) {
		t.Error("IsCode should return true for matching code")
	}
	if IsCode(err, CodeDeviceError) {
		t.Error("IsCode should return false for non-matching code")
	}
	if IsCode(nil, CodeCapacityExceeded) {
		t.Error("IsCode should return false for nil error")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("CodeOf should be empty for unstructured errors")
	}
}
