// Package power reacts to host suspend and resume.
//
// On resume the TV and then the receiver are switched on; on suspend
// both are switched off in the same order. Each device is handled
// independently: a TV failure does not keep the receiver from being
// switched, and the reverse.
package power

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Dlizzz/catspaw/internal/avr"
	"github.com/Dlizzz/catspaw/internal/process"
)

// Event is a host power transition.
type Event string

// Power events.
const (
	EventSuspend Event = "suspend"
	EventResume  Event = "resume"
)

// Errors returned by the manager.
var (
	ErrUnknownEvent     = errors.New("power: unknown event")
	ErrNoSuspendCommand = errors.New("power: no suspend command configured")
	ErrSuspendPending   = errors.New("power: suspend already pending")
)

// ParseEvent accepts "suspend" and "resume" in any case.
func ParseEvent(s string) (Event, error) {
	switch Event(strings.ToLower(strings.TrimSpace(s))) {
	case EventSuspend:
		return EventSuspend, nil
	case EventResume:
		return EventResume, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
	}
}

// TV is the display driven over CEC.
type TV interface {
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
}

// Receiver is the AVR controller surface used here.
type Receiver interface {
	PowerOn(ctx context.Context) avr.Outcome
	PowerOff(ctx context.Context) avr.Outcome
}

// Runner executes a host command. process.Run satisfies it.
type Runner func(ctx context.Context, argv []string) (string, error)

// Logger is the logging surface used by Manager.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Manager.
type Options struct {
	// SuspendCommand puts the host to sleep, e.g. ["systemctl", "suspend"].
	SuspendCommand []string

	// SuspendDelay is waited before SuspendCommand runs so that the
	// caller's reply can leave first.
	SuspendDelay time.Duration

	// Runner defaults to process.Run.
	Runner Runner

	Logger Logger
}

// Result reports what happened to each device.
type Result struct {
	Event    Event  `json:"event"`
	TVErr    string `json:"tv_error,omitempty"`
	Receiver string `json:"receiver"`
	OK       bool   `json:"ok"`
}

// Manager switches the TV and receiver on host power events.
//
// Thread Safety:
//   - Handle and Suspend are safe for concurrent use.
//   - At most one Suspend is pending at a time.
type Manager struct {
	tv       TV
	receiver Receiver
	opts     Options

	mu      sync.Mutex
	pending bool
	wg      sync.WaitGroup
}

// NewManager creates a Manager. tv may be nil when CEC is disabled.
func NewManager(tv TV, receiver Receiver, opts Options) *Manager {
	if opts.Runner == nil {
		opts.Runner = process.Run
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	return &Manager{tv: tv, receiver: receiver, opts: opts}
}

// Handle applies ev to the TV and then the receiver.
func (m *Manager) Handle(ctx context.Context, ev Event) (Result, error) {
	res := Result{Event: ev, OK: true}

	var tvFn func(context.Context) error
	var recvFn func(context.Context) avr.Outcome
	switch ev {
	case EventResume:
		recvFn = m.receiver.PowerOn
		if m.tv != nil {
			tvFn = m.tv.PowerOn
		}
	case EventSuspend:
		recvFn = m.receiver.PowerOff
		if m.tv != nil {
			tvFn = m.tv.PowerOff
		}
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownEvent, ev)
	}

	if tvFn != nil {
		if err := tvFn(ctx); err != nil {
			res.OK = false
			res.TVErr = err.Error()
			m.opts.Logger.Warn("tv power command failed", "event", string(ev), "error", err)
		}
	}

	out := recvFn(ctx)
	res.Receiver = out.Message
	if !out.OK {
		res.OK = false
		m.opts.Logger.Warn("receiver power command failed",
			"event", string(ev),
			"kind", out.Kind.String(),
			"message", out.Message,
		)
	}

	m.opts.Logger.Info("power event handled", "event", string(ev), "ok", res.OK)
	return res, nil
}

// Suspend schedules the host suspend command and returns immediately.
// The command runs after SuspendDelay unless ctx is cancelled first, so
// ctx must outlive the request that asked for the suspend.
func (m *Manager) Suspend(ctx context.Context) error {
	if len(m.opts.SuspendCommand) == 0 {
		return ErrNoSuspendCommand
	}

	m.mu.Lock()
	if m.pending {
		m.mu.Unlock()
		return ErrSuspendPending
	}
	m.pending = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			m.pending = false
			m.mu.Unlock()
		}()

		timer := time.NewTimer(m.opts.SuspendDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			m.opts.Logger.Info("host suspend cancelled")
			return
		case <-timer.C:
		}

		m.opts.Logger.Info("suspending host", "command", strings.Join(m.opts.SuspendCommand, " "))
		if out, err := m.opts.Runner(ctx, m.opts.SuspendCommand); err != nil {
			m.opts.Logger.Error("host suspend failed", "error", err, "output", out)
		}
	}()
	return nil
}

// Wait blocks until a pending Suspend has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
