package mthread

import (
	"errors"
	"fmt"
)

// ErrorCode is a high-level error category: fatal init errors, placement
// errors, invalid arguments, shutdown. Invariant breaks are not reported
// as errors (see internal/assert).
type ErrorCode string

const (
	ErrCodeNoLiveKThread  ErrorCode = "no live k-thread"
	ErrCodeAffinityFailed ErrorCode = "cpu affinity failed"
	ErrCodeTimerArmFailed ErrorCode = "timer arm failed"
	ErrCodeInvalidGroup   ErrorCode = "invalid group id"
	ErrCodeShutdown       ErrorCode = "shutdown"
)

// Error is a structured scheduler error: which operation failed, which
// CPU and u-thread group it concerns (if any), the category, and any
// wrapped cause.
type Error struct {
	Op    string
	CPU   int
	Group int
	Code  ErrorCode
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	switch {
	case e.CPU >= 0 && e.Group >= 0:
		return fmt.Sprintf("mthread: %s: %s (op=%s cpu=%d group=%d)", e.Code, msg, e.Op, e.CPU, e.Group)
	case e.CPU >= 0:
		return fmt.Sprintf("mthread: %s: %s (op=%s cpu=%d)", e.Code, msg, e.Op, e.CPU)
	default:
		return fmt.Sprintf("mthread: %s: %s (op=%s)", e.Code, msg, e.Op)
	}
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError creates a structured error with no CPU/group context.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, CPU: -1, Group: -1, Code: code, Msg: msg}
}

// NewCPUError creates a structured error scoped to a CPU.
func NewCPUError(op string, cpu int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, CPU: cpu, Group: -1, Code: code, Msg: msg}
}

// NewGroupError creates a structured error scoped to a CPU and group
// (placement failures).
func NewGroupError(op string, cpu, group int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, CPU: cpu, Group: group, Code: code, Msg: msg}
}

// WrapError wraps an existing error with scheduler context.
func WrapError(op string, code ErrorCode, inner error) *Error {
	if inner == nil {
		return nil
	}
	return &Error{Op: op, CPU: -1, Group: -1, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
