package avr

import "errors"

// Domain-specific errors for receiver communication.
var (
	// ErrNetworkTimeout: the network gate, the connect loop or the reply
	// wait exceeded its bound.
	ErrNetworkTimeout = errors.New("avr: network timeout")

	// ErrCommunication: transport-level failure (refused, reset, non-2xx).
	ErrCommunication = errors.New("avr: communication error")

	// ErrProtocolMismatch: a reply arrived but does not match the
	// expected pattern or schema.
	ErrProtocolMismatch = errors.New("avr: protocol mismatch")

	// ErrNotConnected is the cause when I/O is attempted on a closed
	// Connection.
	ErrNotConnected = errors.New("avr: not connected")

	// ErrUnknownCommand is returned for an id missing from the catalog.
	ErrUnknownCommand = errors.New("avr: unknown command")

	// ErrCallShape is returned when a fire-and-forget command is executed
	// or a confirmed command is sent without reading its reply.
	ErrCallShape = errors.New("avr: command used with the wrong call shape")

	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("avr: controller closed")
)

// Kind classifies an error into the receiver failure taxonomy.
type Kind int

// Failure kinds.
const (
	KindNone Kind = iota
	KindNetworkTimeout
	KindCommunication
	KindProtocolMismatch
	KindOther
)

// String returns the kind name used in logs and API payloads.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNetworkTimeout:
		return "network_timeout"
	case KindCommunication:
		return "communication_error"
	case KindProtocolMismatch:
		return "protocol_mismatch"
	default:
		return "other"
	}
}

// KindOf returns the failure kind wrapped by err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNetworkTimeout):
		return KindNetworkTimeout
	case errors.Is(err, ErrCommunication):
		return KindCommunication
	case errors.Is(err, ErrProtocolMismatch):
		return KindProtocolMismatch
	default:
		return KindOther
	}
}
