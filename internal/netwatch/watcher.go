package netwatch

import (
	"context"
	"errors"
	"net"
	"sync"
)

// ErrUnsupported is returned by an event source that cannot subscribe to
// availability changes on this platform.
var ErrUnsupported = errors.New("netwatch: change notifications unsupported on this platform")

// Logger is the logging interface used by the watcher.
// Compatible with *logging.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// EventSource blocks until ctx is done, calling notify whenever the
// operating system reports a link or address change.
type EventSource func(ctx context.Context, notify func()) error

// WatcherOptions configures a Watcher. Zero values select the defaults.
type WatcherOptions struct {
	// Probe reports whether the host currently has a usable network.
	// Default: InterfacesUp.
	Probe func() bool

	// Events delivers change notifications. Default: the platform source.
	Events EventSource

	// Logger receives availability transitions.
	Logger Logger
}

// Watcher keeps a Gate in step with the host network.
type Watcher struct {
	gate   *Gate
	probe  func() bool
	events EventSource
	logger Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// NewWatcher creates a watcher for gate. Call Start to begin.
func NewWatcher(gate *Gate, opts WatcherOptions) *Watcher {
	w := &Watcher{
		gate:   gate,
		probe:  opts.Probe,
		events: opts.Events,
		logger: opts.Logger,
	}
	if w.probe == nil {
		w.probe = InterfacesUp
	}
	if w.events == nil {
		w.events = platformEvents
	}
	if w.logger == nil {
		w.logger = nopLogger{}
	}
	return w
}

// Start probes once to seed the gate, then follows change notifications
// in the background until Stop or ctx cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil || w.stopped {
		return errors.New("netwatch: watcher already started")
	}

	w.refresh()

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		err := w.events(runCtx, w.refresh)
		switch {
		case errors.Is(err, ErrUnsupported):
			w.logger.Warn("network change notifications unavailable, keeping initial state",
				"available", w.gate.Available())
		case err != nil && runCtx.Err() == nil:
			w.logger.Warn("network change subscription ended", "error", err)
		}
	}()
	return nil
}

// Stop ends the subscription and waits for the background goroutine.
// Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.stopped = true
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *Watcher) refresh() {
	available := w.probe()
	if w.gate.Update(available) {
		w.logger.Info("network availability changed", "available", available)
	} else {
		w.logger.Debug("network change notification", "available", available)
	}
}

// InterfacesUp reports whether any non-loopback interface is up and
// carries a unicast address that is not link-local.
func InterfacesUp() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && ipn.IP.IsGlobalUnicast() {
				return true
			}
		}
	}
	return false
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
