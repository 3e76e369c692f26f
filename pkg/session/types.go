// Package session implements the device session controller: the aggregate
// state machine that coordinates a CBS authentication worker and a
// telemetry messenger behind one device lifecycle and one event stream.
package session

import "errors"

// DeviceState is the aggregate state of a device session.
type DeviceState uint8

const (
	DeviceStopped DeviceState = iota
	DeviceStarting
	DeviceStarted
	DeviceStopping
	DeviceErrorAuth
	DeviceErrorAuthTimeout
	DeviceErrorMsg
)

func (s DeviceState) String() string {
	switch s {
	case DeviceStopped:
		return "STOPPED"
	case DeviceStarting:
		return "STARTING"
	case DeviceStarted:
		return "STARTED"
	case DeviceStopping:
		return "STOPPING"
	case DeviceErrorAuth:
		return "ERROR_AUTH"
	case DeviceErrorAuthTimeout:
		return "ERROR_AUTH_TIMEOUT"
	case DeviceErrorMsg:
		return "ERROR_MSG"
	default:
		return "UNKNOWN"
	}
}

// IsError reports whether s is one of the three terminal-until-destroy
// error states.
func (s DeviceState) IsError() bool {
	switch s {
	case DeviceErrorAuth, DeviceErrorAuthTimeout, DeviceErrorMsg:
		return true
	default:
		return false
	}
}

// AuthState is the cached state of the authenticator child.
type AuthState uint8

const (
	AuthStopped AuthState = iota
	AuthStarting
	AuthStarted
	AuthError
)

func (s AuthState) String() string {
	switch s {
	case AuthStopped:
		return "STOPPED"
	case AuthStarting:
		return "STARTING"
	case AuthStarted:
		return "STARTED"
	case AuthError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// AuthErrorCode classifies why the authenticator reported AuthError.
type AuthErrorCode uint8

const (
	AuthErrorNone AuthErrorCode = iota
	AuthErrorAuthFailed
	AuthErrorAuthTimeout
)

func (c AuthErrorCode) String() string {
	switch c {
	case AuthErrorNone:
		return "NONE"
	case AuthErrorAuthFailed:
		return "AUTH_FAILED"
	case AuthErrorAuthTimeout:
		return "AUTH_TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// MsgState is the cached state of the messenger child.
type MsgState uint8

const (
	MsgStopped MsgState = iota
	MsgStarting
	MsgStarted
	MsgStopping
	MsgError
)

func (s MsgState) String() string {
	switch s {
	case MsgStopped:
		return "STOPPED"
	case MsgStarting:
		return "STARTING"
	case MsgStarted:
		return "STARTED"
	case MsgStopping:
		return "STOPPING"
	case MsgError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// AuthMode selects the authentication scheme for a device session.
type AuthMode uint8

const (
	AuthModeCBS AuthMode = iota
	AuthModeX509
)

func (m AuthMode) String() string {
	switch m {
	case AuthModeCBS:
		return "CBS"
	case AuthModeX509:
		return "X509"
	default:
		return "UNKNOWN"
	}
}

// SendResult is the caller-facing outcome of a submitted D2C message.
type SendResult uint8

const (
	SendOK SendResult = iota
	SendCannotParse
	SendFailSending
	SendTimeout
	SendDeviceDestroyed
	SendErrorUnknown
)

func (r SendResult) String() string {
	switch r {
	case SendOK:
		return "OK"
	case SendCannotParse:
		return "CANNOT_PARSE"
	case SendFailSending:
		return "FAIL_SENDING"
	case SendTimeout:
		return "TIMEOUT"
	case SendDeviceDestroyed:
		return "DEVICE_DESTROYED"
	case SendErrorUnknown:
		return "ERROR_UNKNOWN"
	default:
		return "UNKNOWN"
	}
}

// MessengerResult is the messenger-vocabulary outcome reported by the
// messenger's send-completion adapter, translated into a SendResult by the
// Send-Task Tracker.
type MessengerResult uint8

const (
	MessengerResultOK MessengerResult = iota
	MessengerResultCannotParse
	MessengerResultFailSending
	MessengerResultTimeout
	MessengerResultDestroyed
)

// Verdict is the caller-facing disposition verdict for an inbound message.
type Verdict uint8

const (
	VerdictNone Verdict = iota
	VerdictAccepted
	VerdictRejected
	VerdictReleased
)

func (v Verdict) String() string {
	switch v {
	case VerdictNone:
		return "NONE"
	case VerdictAccepted:
		return "ACCEPTED"
	case VerdictRejected:
		return "REJECTED"
	case VerdictReleased:
		return "RELEASED"
	default:
		return "UNKNOWN"
	}
}

// SendStatus reports whether the messenger has outstanding sends in flight.
type SendStatus uint8

const (
	SendStatusIdle SendStatus = iota
	SendStatusBusy
)

func (s SendStatus) String() string {
	switch s {
	case SendStatusIdle:
		return "IDLE"
	case SendStatusBusy:
		return "BUSY"
	default:
		return "UNKNOWN"
	}
}

// SendCompleteFunc is invoked exactly once per submitted message.
type SendCompleteFunc func(msg []byte, result SendResult, ctx any)

// C2DMessageFunc is invoked per inbound message while subscribed. It
// returns the caller's disposition verdict for that message.
type C2DMessageFunc func(msg []byte, info *DispositionInfo, ctx any) Verdict

// Sentinel errors returned by Controller operations. None of these alter
// aggregate state except where noted at the call site.
var (
	ErrInvalidConfig        = errors.New("session: invalid device configuration")
	ErrWrongState           = errors.New("session: operation not valid in current state")
	ErrMissingSessionHandle = errors.New("session: session handle is required")
	ErrMissingCBSHandle     = errors.New("session: cbs handle is required under CBS auth mode")
	ErrNilArgument          = errors.New("session: required argument is nil")
	ErrRetryNotSupported    = errors.New("session: retry policy is not supported at this layer")
	ErrUnknownOption        = errors.New("session: unknown option name")
	ErrOptionNotCBS         = errors.New("session: option requires CBS auth mode")
	ErrDestroyed            = errors.New("session: controller has been destroyed")
)
