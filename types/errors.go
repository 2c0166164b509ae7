package types

import (
	"errors"
	"fmt"
)

// ErrorCode is the normalized failure class of an engine operation
type ErrorCode string

const (
	// CodeInvalidParameter is bad caller input (unsupported source, unknown mode, bad regex)
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	// CodeResponseTimeout means no prompt matched before the deadline
	CodeResponseTimeout ErrorCode = "RESPONSE_TIMEOUT"
	// CodeDeviceError means the device returned an error pattern
	CodeDeviceError ErrorCode = "DEVICE_ERROR"
	// CodePrivilegeEscalationFailed means a mode transition could not be confirmed
	CodePrivilegeEscalationFailed ErrorCode = "PRIVILEGE_ESCALATION_FAILED"
	// CodeTransportClosed means the byte stream died mid-operation
	CodeTransportClosed ErrorCode = "TRANSPORT_CLOSED"
	// CodeUnknown is anything that is not an engine error
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Sentinels for errors.Is matching against an *Error of the same code
var (
	ErrInvalidParameter          = errors.New("invalid parameter")
	ErrResponseTimeout           = errors.New("response timeout")
	ErrDeviceError               = errors.New("device error")
	ErrPrivilegeEscalationFailed = errors.New("privilege escalation failed")
	ErrTransportClosed           = errors.New("transport closed")
)

var sentinels = map[ErrorCode]error{
	CodeInvalidParameter:          ErrInvalidParameter,
	CodeResponseTimeout:           ErrResponseTimeout,
	CodeDeviceError:               ErrDeviceError,
	CodePrivilegeEscalationFailed: ErrPrivilegeEscalationFailed,
	CodeTransportClosed:           ErrTransportClosed,
}

// Error is the typed failure surfaced by the executor, session and facade
type Error struct {
	Code ErrorCode

	// Op is the operation that failed (execute, ensure_mode, get_config, ...)
	Op string

	// Command is the command in flight, if any
	Command string

	// Text is the literal device diagnostic for DeviceError, or a description otherwise
	Text string

	// Output is whatever was captured before the failure
	Output string

	// Err is the underlying cause
	Err error
}

func (e *Error) Error() string {
	reason := string(e.Code)
	if s, ok := sentinels[e.Code]; ok {
		reason = s.Error()
	}
	msg := e.Op + ": " + reason
	if e.Command != "" {
		msg += fmt.Sprintf(" (command %q)", e.Command)
	}
	if e.Text != "" {
		msg += ": " + e.Text
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the same code
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}

// NewError builds an *Error
func NewError(code ErrorCode, op, command, text string, cause error) *Error {
	return &Error{Code: code, Op: op, Command: command, Text: text, Err: cause}
}

// InvalidParameter is a shortcut for caller input errors
func InvalidParameter(op, format string, args ...interface{}) *Error {
	return &Error{Code: CodeInvalidParameter, Op: op, Text: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// DeviceText returns the literal device diagnostic carried by err, if any
func DeviceText(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeDeviceError {
		return e.Text
	}
	return ""
}
