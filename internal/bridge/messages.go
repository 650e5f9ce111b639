package bridge

import (
	"time"

	"github.com/Dlizzz/catspaw/internal/avr"
)

// Command names, the last segment of catspaw/command/avr/{command}.
const (
	CommandPower   = "power"
	CommandVolume  = "volume"
	CommandMute    = "mute"
	CommandRefresh = "refresh"
)

// CommandMessage is the payload of an AVR command topic. Fields unused
// by a command are ignored.
type CommandMessage struct {
	// ID is echoed in the acknowledgement.
	ID string `json:"id,omitempty"`

	// State is the power target: "on", "off" or "status".
	State string `json:"state,omitempty"`

	// Action is the volume direction: "up" or "down".
	Action string `json:"action,omitempty"`

	// Amount is dB, or a percentage when Ratio is set. Zero with Ratio
	// unset means one native step.
	Amount float64 `json:"amount,omitempty"`
	Ratio  bool    `json:"ratio,omitempty"`
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

// Ack statuses.
const (
	// AckAccepted: the command ran and the receiver answered.
	AckAccepted AckStatus = "accepted"

	// AckFailed: the command was rejected or the receiver failed.
	AckFailed AckStatus = "failed"
)

// Error codes for command failures.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeProtocolError     = "PROTOCOL_ERROR"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// AckMessage answers one command.
// Topic: catspaw/ack/avr/{command}
type AckMessage struct {
	CommandID string    `json:"command_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Status    AckStatus `json:"status"`

	// Message is the human-readable outcome, the same text the HTTP API
	// returns.
	Message string `json:"message"`

	State *avr.State `json:"state,omitempty"`
	Error *AckError  `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateMessage is published on every controller event.
// Topic: catspaw/state/avr
// QoS: configured, Retained: Yes
type StateMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Command   string    `json:"command,omitempty"`
	State     avr.State `json:"state"`
}

// SystemPowerMessage is the payload of catspaw/command/system/power.
type SystemPowerMessage struct {
	Event string `json:"event"`
}

// codeForKind maps a receiver failure kind to an ack error code.
func codeForKind(k avr.Kind) string {
	switch k {
	case avr.KindNetworkTimeout:
		return ErrCodeTimeout
	case avr.KindCommunication:
		return ErrCodeDeviceUnreachable
	case avr.KindProtocolMismatch:
		return ErrCodeProtocolError
	default:
		return ErrCodeBridgeError
	}
}
