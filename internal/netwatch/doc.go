// Package netwatch tracks whether the host has a usable network and
// exposes that as a waitable gate.
//
// The Gate is level-triggered: a waiter that arrives after the network
// came up returns at once, and a waiter that is already blocked when the
// gate is set is always released. Nothing is lost between a wait call and
// a concurrent availability notification.
//
// The Watcher feeds the gate from the operating system. On Linux it
// listens to rtnetlink link and address notifications and re-probes the
// interfaces on each one; elsewhere it keeps the state found at start.
//
// Usage:
//
//	gate := netwatch.NewGate(false)
//	w := netwatch.NewWatcher(gate, netwatch.WatcherOptions{Logger: log})
//	if err := w.Start(ctx); err != nil { ... }
//	defer w.Stop()
//
//	if !gate.WaitAvailable(ctx, 5*time.Second) {
//	    return ErrNetworkTimeout
//	}
package netwatch
