package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Dlizzz/catspaw/internal/avr"
	"github.com/Dlizzz/catspaw/internal/display"
	"github.com/Dlizzz/catspaw/internal/infrastructure/mqtt"
	"github.com/Dlizzz/catspaw/internal/power"
)

// MQTT source tag recorded with every command issued by the bridge.
const Source = "mqtt"

// powerTimeout bounds one system power event; the TV settle window and
// two receiver commands fit well inside it.
const powerTimeout = 30 * time.Second

// MQTTClient is the interface for MQTT operations.
// Satisfied by *mqtt.Client.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	QoS() byte
}

// Controller is the receiver surface driven by the bridge.
// Satisfied by *avr.Controller.
type Controller interface {
	State() avr.State
	PowerOn(ctx context.Context) avr.Outcome
	PowerOff(ctx context.Context) avr.Outcome
	QueryPower(ctx context.Context) avr.Outcome
	VolumeSet(ctx context.Context, adj avr.Adjustment) avr.Outcome
	MuteToggle(ctx context.Context) avr.Outcome
	Refresh(ctx context.Context) avr.Outcome
}

// PowerHandler handles host power events. Satisfied by *power.Manager.
type PowerHandler interface {
	Handle(ctx context.Context, ev power.Event) (power.Result, error)
}

// Logger is the logging surface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options holds configuration for creating a bridge.
type Options struct {
	MQTT       MQTTClient
	Controller Controller

	// Power is optional; without it system power messages are ignored.
	Power PowerHandler

	Logger Logger
}

// Bridge translates MQTT commands into controller calls and publishes
// controller state.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt       MQTTClient
	controller Controller
	power      PowerHandler
	logger     Logger
	topics     mqtt.Topics

	// Shutdown coordination
	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
	mu        sync.Mutex
	stopped   bool
}

// New creates a bridge. Call Start to subscribe.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}

	ctx, cancel := context.WithCancel(avr.WithSource(context.Background(), Source))
	return &Bridge{
		mqtt:       opts.MQTT,
		controller: opts.Controller,
		power:      opts.Power,
		logger:     opts.Logger,
		ctx:        ctx,
		ctxCancel:  cancel,
	}, nil
}

// Start subscribes to the command topics and publishes the current
// state.
func (b *Bridge) Start() error {
	commandTopic := b.topics.AllAVRCommands()
	if err := b.mqtt.Subscribe(commandTopic, b.mqtt.QoS(), b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", commandTopic)

	if b.power != nil {
		powerTopic := b.topics.SystemPower()
		if err := b.mqtt.Subscribe(powerTopic, b.mqtt.QoS(), b.handleSystemPower); err != nil {
			return fmt.Errorf("subscribe to system power: %w", err)
		}
		b.logger.Info("subscribed to system power", "topic", powerTopic)
	}

	b.publishState(StateMessage{
		Timestamp: time.Now().UTC(),
		Event:     "snapshot",
		State:     b.controller.State(),
	})
	return nil
}

// Stop unsubscribes, cancels in-flight commands and waits for them.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		b.mu.Unlock()

		for _, topic := range []string{b.topics.AllAVRCommands(), b.topics.SystemPower()} {
			if err := b.mqtt.Unsubscribe(topic); err != nil {
				b.logger.Debug("unsubscribe failed", "topic", topic, "error", err)
			}
		}
		b.ctxCancel()
		b.wg.Wait()
		b.logger.Info("mqtt bridge stopped")
	})
}

// Observe is an avr.Controller subscriber publishing the retained state.
func (b *Bridge) Observe(ev avr.Event) {
	b.publishState(StateMessage{
		Timestamp: time.Now().UTC(),
		Event:     string(ev.Type),
		Command:   ev.Command.String(),
		State:     ev.State,
	})
}

// PublishPopup is a display.Sink publishing popup visibility.
func (b *Bridge) PublishPopup(v display.Visibility) {
	if err := b.publishJSON(b.topics.UIVolumePopup(), v, false); err != nil {
		b.logger.Warn("failed to publish popup", "error", err)
	}
}

// handleCommand runs on a paho goroutine; the controller call happens
// in a tracked goroutine so slow receivers do not stall delivery.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	command := mqtt.LastSegment(topic)

	var msg CommandMessage
	if err := decode(payload, &msg); err != nil {
		b.publishAck(newFailedAck(command, "", ErrCodeInvalidParameters, err))
		return err
	}

	run, err := b.commandFunc(command, msg)
	if err != nil {
		code := ErrCodeInvalidParameters
		if errors.Is(err, ErrInvalidCommand) {
			code = ErrCodeInvalidCommand
		}
		b.publishAck(newFailedAck(command, msg.ID, code, err))
		return err
	}

	if !b.track() {
		return nil
	}
	go func() {
		defer b.wg.Done()
		out := run(b.ctx)
		b.publishAck(ackFromOutcome(command, msg.ID, out))
	}()
	return nil
}

// commandFunc validates msg and returns the controller call for command.
func (b *Bridge) commandFunc(command string, msg CommandMessage) (func(context.Context) avr.Outcome, error) {
	switch command {
	case CommandPower:
		switch strings.ToLower(msg.State) {
		case "on":
			return b.controller.PowerOn, nil
		case "off":
			return b.controller.PowerOff, nil
		case "status", "":
			return b.controller.QueryPower, nil
		default:
			return nil, fmt.Errorf("%w: power state %q", ErrInvalidPayload, msg.State)
		}

	case CommandVolume:
		dir, err := avr.ParseDirection(msg.Action)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		if msg.Amount < 0 {
			return nil, fmt.Errorf("%w: negative amount %g", ErrInvalidPayload, msg.Amount)
		}
		adj := avr.Adjustment{Direction: dir, Amount: msg.Amount, Ratio: msg.Ratio}
		return func(ctx context.Context) avr.Outcome {
			return b.controller.VolumeSet(ctx, adj)
		}, nil

	case CommandMute:
		return b.controller.MuteToggle, nil

	case CommandRefresh:
		return b.controller.Refresh, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}
}

func (b *Bridge) handleSystemPower(_ string, payload []byte) error {
	var msg SystemPowerMessage
	if err := decode(payload, &msg); err != nil {
		return err
	}
	ev, err := power.ParseEvent(msg.Event)
	if err != nil {
		return err
	}

	if !b.track() {
		return nil
	}
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(b.ctx, powerTimeout)
		defer cancel()
		if _, err := b.power.Handle(ctx, ev); err != nil {
			b.logger.Error("system power event failed", "event", string(ev), "error", err)
		}
	}()
	return nil
}

// track reserves a worker slot; false once the bridge is stopping.
func (b *Bridge) track() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return false
	}
	b.wg.Add(1)
	return true
}

func (b *Bridge) publishState(msg StateMessage) {
	if err := b.publishJSON(b.topics.AVRState(), msg, true); err != nil {
		b.logger.Warn("failed to publish state", "error", err)
	}
}

func (b *Bridge) publishAck(ack AckMessage) {
	if err := b.publishJSON(b.topics.AVRAck(ack.Command), ack, false); err != nil {
		b.logger.Warn("failed to publish ack", "command", ack.Command, "error", err)
	}
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	return b.mqtt.Publish(topic, data, b.mqtt.QoS(), retained)
}

func ackFromOutcome(command, id string, out avr.Outcome) AckMessage {
	state := out.State
	ack := AckMessage{
		CommandID: id,
		Timestamp: time.Now().UTC(),
		Command:   command,
		Status:    AckAccepted,
		Message:   out.Message,
		State:     &state,
	}
	if !out.OK {
		ack.Status = AckFailed
		ack.Error = &AckError{Code: codeForKind(out.Kind), Message: out.Message}
	}
	return ack
}

func newFailedAck(command, id, code string, err error) AckMessage {
	return AckMessage{
		CommandID: id,
		Timestamp: time.Now().UTC(),
		Command:   command,
		Status:    AckFailed,
		Message:   err.Error(),
		Error:     &AckError{Code: code, Message: err.Error()},
	}
}

// decode accepts an empty payload as the zero value.
func decode(payload []byte, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
