package netwatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Gate is a level-triggered availability flag.
//
// Thread Safety:
//   - Set, Clear and Update may be called from a notification goroutine
//     while any number of goroutines wait.
//   - Available is a single atomic load.
type Gate struct {
	up atomic.Bool

	mu sync.Mutex
	// ready is closed while the gate is up and replaced when it goes down.
	ready chan struct{}
}

// NewGate creates a gate in the given initial state.
func NewGate(available bool) *Gate {
	g := &Gate{ready: make(chan struct{})}
	if available {
		g.up.Store(true)
		close(g.ready)
	}
	return g
}

// Set marks the network available and releases every waiter.
func (g *Gate) Set() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.up.Load() {
		return
	}
	g.up.Store(true)
	close(g.ready)
}

// Clear marks the network unavailable. Later waiters block until Set.
func (g *Gate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.up.Load() {
		return
	}
	g.up.Store(false)
	g.ready = make(chan struct{})
}

// Update sets or clears the gate and reports whether the state changed.
func (g *Gate) Update(available bool) bool {
	if g.up.Load() == available {
		return false
	}
	if available {
		g.Set()
	} else {
		g.Clear()
	}
	return true
}

// Available reports the current state without blocking.
func (g *Gate) Available() bool {
	return g.up.Load()
}

// Ready returns a channel that is closed once the gate is up. The channel
// belongs to the current down period; after a Clear a new one is issued.
func (g *Gate) Ready() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// WaitAvailable blocks until the gate is up, the timeout elapses or ctx
// is done.
//
// Parameters:
//   - ctx: Cancels the wait early
//   - timeout: Upper bound on the wait; <= 0 only checks the current state
//
// Returns:
//   - bool: true if the network is available
func (g *Gate) WaitAvailable(ctx context.Context, timeout time.Duration) bool {
	ready := g.Ready()
	select {
	case <-ready:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return true
	case <-timer.C:
		return g.Available()
	case <-ctx.Done():
		return false
	}
}
