package cliconf

// Re-export the types sub-package so callers only need the root import

import (
	"github.com/nanoncore/nano-cliconf/types"
)

type (
	Mode             = types.Mode
	CommandRequest   = types.CommandRequest
	CommandResult    = types.CommandResult
	Capabilities     = types.Capabilities
	DeviceOperations = types.DeviceOperations
	DeviceConfig     = types.DeviceConfig
	Transport        = types.Transport
	TransportKind    = types.TransportKind
	Error            = types.Error
	ErrorCode        = types.ErrorCode
)

const (
	ModeUnprivileged  = types.ModeUnprivileged
	ModePrivileged    = types.ModePrivileged
	ModeConfiguration = types.ModeConfiguration

	TransportSSH       = types.TransportSSH
	TransportExpectSSH = types.TransportExpectSSH
	TransportSpawn     = types.TransportSpawn
	TransportMock      = types.TransportMock

	CodeInvalidParameter          = types.CodeInvalidParameter
	CodeResponseTimeout           = types.CodeResponseTimeout
	CodeDeviceError               = types.CodeDeviceError
	CodePrivilegeEscalationFailed = types.CodePrivilegeEscalationFailed
	CodeTransportClosed           = types.CodeTransportClosed
)

var (
	ErrInvalidParameter          = types.ErrInvalidParameter
	ErrResponseTimeout           = types.ErrResponseTimeout
	ErrDeviceError               = types.ErrDeviceError
	ErrPrivilegeEscalationFailed = types.ErrPrivilegeEscalationFailed
	ErrTransportClosed           = types.ErrTransportClosed

	InvalidParameter = types.InvalidParameter
	CodeOf           = types.CodeOf
	DeviceText       = types.DeviceText
	Commands         = types.Commands
)
