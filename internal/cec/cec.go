// Package cec drives a TV over HDMI-CEC through a cec-client process.
//
// cec-client runs for the life of the daemon and reads one command per
// line on stdin: "on <addr>" wakes the device at logical address addr,
// "standby <addr>" puts it to sleep. Address 0 is the TV.
package cec

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("cec: closed")

// LineWriter sends one command line to cec-client. Satisfied by
// *process.Manager.
type LineWriter interface {
	WriteLine(line string) error
}

// Logger is the logging surface used by TV.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// Options configures a TV.
type Options struct {
	// LogicalAddress of the TV on the CEC bus. Default 0.
	LogicalAddress int

	// SettleWindow is the pause after each command before the bus is
	// used again.
	SettleWindow time.Duration

	Logger Logger
}

// TV powers a CEC device on and off.
//
// Thread Safety:
//   - Commands are serialised; each holds the bus for SettleWindow.
type TV struct {
	w      LineWriter
	opts   Options
	mu     sync.Mutex
	closed bool
}

// NewTV creates a TV writing to w.
func NewTV(w LineWriter, opts Options) *TV {
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	return &TV{w: w, opts: opts}
}

// PowerOn wakes the TV.
func (tv *TV) PowerOn(ctx context.Context) error {
	return tv.send(ctx, "on")
}

// PowerOff puts the TV in standby.
func (tv *TV) PowerOff(ctx context.Context) error {
	return tv.send(ctx, "standby")
}

// Close refuses further commands. The cec-client process is owned and
// stopped by its manager.
func (tv *TV) Close() error {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	tv.closed = true
	return nil
}

func (tv *TV) send(ctx context.Context, verb string) error {
	tv.mu.Lock()
	defer tv.mu.Unlock()

	if tv.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cec %s: %w", verb, err)
	}

	line := verb + " " + strconv.Itoa(tv.opts.LogicalAddress)
	if err := tv.w.WriteLine(line); err != nil {
		return fmt.Errorf("cec %s: %w", verb, err)
	}
	tv.opts.Logger.Info("cec command sent", "command", line)

	if tv.opts.SettleWindow > 0 {
		select {
		case <-time.After(tv.opts.SettleWindow):
		case <-ctx.Done():
		}
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
