package bridge

import "errors"

// Domain errors for the MQTT bridge.
var (
	// ErrInvalidCommand is returned for an unknown command topic.
	ErrInvalidCommand = errors.New("bridge: invalid command")

	// ErrInvalidPayload is returned when a payload cannot be decoded or
	// carries out-of-range values.
	ErrInvalidPayload = errors.New("bridge: invalid payload")
)
