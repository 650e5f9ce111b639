package avr

import (
	"context"
	"fmt"
	"time"
)

// PowerState is the last known receiver power state.
type PowerState int

// Power states.
const (
	PowerStateUnknown PowerState = iota
	PowerStateOn
	PowerStateOff
)

// String returns "unknown", "on" or "off".
func (p PowerState) String() string {
	switch p {
	case PowerStateOn:
		return "on"
	case PowerStateOff:
		return "off"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (p PowerState) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a state name.
func (p *PowerState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "on":
		*p = PowerStateOn
	case "off":
		*p = PowerStateOff
	case "unknown", "":
		*p = PowerStateUnknown
	default:
		return fmt.Errorf("avr: invalid power state %q", text)
	}
	return nil
}

// State is the observable controller state. Values are snapshots.
type State struct {
	// Volume is the display string, e.g. "-12.5 dB" or "-.- dB".
	Volume string `json:"volume"`

	// Level is the last raw level read, 0 when unknown.
	Level int `json:"level"`

	Muted bool       `json:"muted"`
	Power PowerState `json:"power"`

	// LastError describes the most recent failed command; cleared by the
	// next success.
	LastError     string `json:"last_error,omitempty"`
	LastErrorKind string `json:"last_error_kind,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// EventType names a state notification.
type EventType string

// Event types.
const (
	EventVolumeChanged EventType = "volume_changed"
	EventPowerChanged  EventType = "power_changed"
	EventMuteChanged   EventType = "mute_changed"
	EventError         EventType = "error"
)

// Event is delivered to subscribers after a command changes the state.
type Event struct {
	Type    EventType
	Command CommandID
	State   State
	Err     error
}

// Outcome is the caller-visible result of a controller operation. A
// failed operation has OK false and leaves the state unchanged.
type Outcome struct {
	Command CommandID `json:"-"`
	OK      bool      `json:"ok"`
	Message string    `json:"message"`
	Kind    Kind      `json:"-"`

	// Power is set by power queries; PowerStateUnknown on failure.
	Power PowerState `json:"-"`

	State State `json:"state"`
}

// CommandRecord describes one finished controller operation.
type CommandRecord struct {
	Command  CommandID
	Detail   string
	Source   string
	OK       bool
	Err      error
	Duration time.Duration
	State    State
}

// CommandRecorder receives every finished operation (history, metrics).
// Implementations must return promptly.
type CommandRecorder interface {
	RecordCommand(ctx context.Context, rec CommandRecord)
}

// Recorders fans a record out to several recorders.
type Recorders []CommandRecorder

// RecordCommand implements CommandRecorder.
func (rs Recorders) RecordCommand(ctx context.Context, rec CommandRecord) {
	for _, r := range rs {
		if r != nil {
			r.RecordCommand(ctx, rec)
		}
	}
}

type sourceKey struct{}

// WithSource tags ctx with the caller surface ("api", "mqtt", "console").
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the caller surface, or "internal".
func SourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return "internal"
}
