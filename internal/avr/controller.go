package avr

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Controller defaults.
const (
	DefaultCommandTimeout = 10 * time.Second

	eventBuffer = 64
)

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	// CommandTimeout bounds one operation, including the wait for the
	// command slot. Default: DefaultCommandTimeout.
	CommandTimeout time.Duration

	// Recorder receives every finished operation. Optional.
	Recorder CommandRecorder

	Logger Logger
}

// Controller is the receiver façade used by every caller surface.
//
// Only one command runs at a time; later callers wait for the slot until
// their context or the command timeout expires. Device faults are
// logged, recorded and returned as a failed Outcome; they never escape
// as errors.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - State may be read from any goroutine at any time.
//   - Subscribers are called from a single dispatch goroutine in event
//     order and must not block.
type Controller struct {
	protocol *Protocol
	timeout  time.Duration
	recorder CommandRecorder
	logger   Logger

	// slot holds a token while a command is executing.
	slot chan struct{}

	life       context.Context
	lifeCancel context.CancelFunc
	closeMu    sync.RWMutex
	closed     bool
	inflight   sync.WaitGroup
	closeOnce  sync.Once

	stateMu sync.RWMutex
	state   State

	obsMu     sync.Mutex
	observers map[int]func(Event)
	nextObs   int

	events       chan Event
	dispatchDone chan struct{}
}

// NewController creates a controller over transport.
func NewController(transport Transport, opts ControllerOptions) *Controller {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}

	life, cancel := context.WithCancel(context.Background())
	c := &Controller{
		protocol:     NewProtocol(transport, opts.Logger),
		timeout:      opts.CommandTimeout,
		recorder:     opts.Recorder,
		logger:       opts.Logger,
		slot:         make(chan struct{}, 1),
		life:         life,
		lifeCancel:   cancel,
		state:        State{Volume: UnknownDisplay, UpdatedAt: time.Now()},
		observers:    make(map[int]func(Event)),
		events:       make(chan Event, eventBuffer),
		dispatchDone: make(chan struct{}),
	}
	go c.dispatch()
	return c
}

// State returns a snapshot of the observable state.
func (c *Controller) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Volume returns the current display volume string.
func (c *Controller) Volume() string {
	return c.State().Volume
}

// Subscribe registers fn for state events and returns a function that
// removes it.
func (c *Controller) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.obsMu.Lock()
			delete(c.observers, id)
			c.obsMu.Unlock()
		})
	}
}

// PowerOn switches the receiver on. The device does not confirm; query
// PowerStatus to observe the effect.
func (c *Controller) PowerOn(ctx context.Context) Outcome {
	return c.run(ctx, PowerOn, "", func(ctx context.Context, o *Outcome) error {
		if err := c.protocol.Send(ctx, PowerOn); err != nil {
			return err
		}
		o.Message = "Receiver power on sent"
		return nil
	})
}

// PowerOff puts the receiver in standby. Not confirmed by the device.
func (c *Controller) PowerOff(ctx context.Context) Outcome {
	return c.run(ctx, PowerOff, "", func(ctx context.Context, o *Outcome) error {
		if err := c.protocol.Send(ctx, PowerOff); err != nil {
			return err
		}
		o.Message = "Receiver power off sent"
		return nil
	})
}

// PowerStatus queries the power state. Any failure yields
// PowerStateUnknown.
func (c *Controller) PowerStatus(ctx context.Context) PowerState {
	return c.QueryPower(ctx).Power
}

// QueryPower is PowerStatus with the full outcome.
func (c *Controller) QueryPower(ctx context.Context) Outcome {
	return c.run(ctx, PowerStatus, "", func(ctx context.Context, o *Outcome) error {
		p, err := c.queryPower(ctx)
		if err != nil {
			return err
		}
		o.Power = p
		o.Message = "Receiver power is " + p.String()
		return nil
	})
}

// VolumeSet applies a relative change.
//
// A step adjustment uses the device's own up/down command. Otherwise the
// current level is read, the new level computed and clamped, and the
// absolute level sent. The read and the write happen within one command
// slot. On failure the volume state is left unchanged.
func (c *Controller) VolumeSet(ctx context.Context, adj Adjustment) Outcome {
	id := VolumeSet
	if adj.IsStep() {
		id = VolumeUp
		if adj.Direction == Down {
			id = VolumeDown
		}
	}

	return c.run(ctx, id, adj.String(), func(ctx context.Context, o *Outcome) error {
		if adj.IsStep() {
			level, err := c.queryLevel(ctx, id, "")
			if err != nil {
				return err
			}
			c.applyVolume(id, level)
		} else {
			current, err := c.queryLevel(ctx, VolumeGet, "")
			if err != nil {
				return err
			}
			target := ComputeAdjustment(current, adj)
			level, err := c.queryLevel(ctx, VolumeSet, FormatLevel(target))
			if err != nil {
				return err
			}
			c.logger.Debug("avr volume adjusted",
				"from", current, "to", level, "requested", target, "adjustment", adj.String())
			c.applyVolume(id, level)
		}
		o.Message = "Volume: " + c.Volume()
		return nil
	})
}

// VolumeUp raises the volume by one native step.
func (c *Controller) VolumeUp(ctx context.Context) Outcome {
	return c.VolumeSet(ctx, Adjustment{Direction: Up})
}

// VolumeDown lowers the volume by one native step.
func (c *Controller) VolumeDown(ctx context.Context) Outcome {
	return c.VolumeSet(ctx, Adjustment{Direction: Down})
}

// VolumeGet reads the current level and updates the display string.
func (c *Controller) VolumeGet(ctx context.Context) Outcome {
	return c.run(ctx, VolumeGet, "", func(ctx context.Context, o *Outcome) error {
		level, err := c.queryLevel(ctx, VolumeGet, "")
		if err != nil {
			return err
		}
		c.applyVolume(VolumeGet, level)
		o.Message = "Volume: " + c.Volume()
		return nil
	})
}

// MuteToggle flips muting. The device does not confirm and the mute
// state is not changed; a later MuteStatus or Refresh is authoritative.
func (c *Controller) MuteToggle(ctx context.Context) Outcome {
	return c.run(ctx, MuteToggle, "", func(ctx context.Context, o *Outcome) error {
		if err := c.protocol.Send(ctx, MuteToggle); err != nil {
			return err
		}
		o.Message = "Mute toggled"
		return nil
	})
}

// MuteStatus queries muting and updates the state.
func (c *Controller) MuteStatus(ctx context.Context) Outcome {
	return c.run(ctx, MuteStatus, "", func(ctx context.Context, o *Outcome) error {
		muted, err := c.queryMute(ctx)
		if err != nil {
			return err
		}
		c.applyMute(MuteStatus, muted)
		o.Message = "Mute is " + onOff(muted)
		return nil
	})
}

// Refresh re-reads power, and for a powered receiver volume and mute,
// within one command slot.
func (c *Controller) Refresh(ctx context.Context) Outcome {
	return c.run(ctx, Refresh, "", func(ctx context.Context, o *Outcome) error {
		p, err := c.queryPower(ctx)
		if err != nil {
			return err
		}
		o.Power = p
		if p != PowerStateOn {
			o.Message = "Receiver power is " + p.String()
			return nil
		}

		muted, err := c.queryMute(ctx)
		if err != nil {
			return err
		}
		level, err := c.queryLevel(ctx, VolumeGet, "")
		if err != nil {
			return err
		}
		c.applyMute(MuteStatus, muted)
		c.applyVolume(VolumeGet, level)
		o.Message = fmt.Sprintf("Receiver is on, volume %s", c.Volume())
		return nil
	})
}

// Close refuses new commands, cancels the one in flight, waits for it
// and stops event delivery. Safe to call more than once.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closed = true
		c.closeMu.Unlock()

		c.lifeCancel()
		c.inflight.Wait()

		close(c.events)
		<-c.dispatchDone
	})
	return nil
}

// opFunc performs the device exchange and fills the outcome message.
type opFunc func(ctx context.Context, o *Outcome) error

func (c *Controller) run(ctx context.Context, id CommandID, detail string, fn opFunc) Outcome {
	c.closeMu.RLock()
	if c.closed {
		c.closeMu.RUnlock()
		return Outcome{Command: id, Message: "Controller is closed", Kind: KindOther, State: c.State()}
	}
	c.inflight.Add(1)
	c.closeMu.RUnlock()
	defer c.inflight.Done()

	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	stop := context.AfterFunc(c.life, cancel)
	defer stop()

	start := time.Now()
	out := Outcome{Command: id}

	err := c.acquire(opCtx)
	if err == nil {
		err = fn(opCtx, &out)
		<-c.slot
	}
	elapsed := time.Since(start)

	if err != nil {
		out.OK = false
		out.Kind = KindOf(err)
		out.Power = PowerStateUnknown
		out.Message = failureMessage(id, err)
		c.applyError(id, err)
		c.logger.Error("avr command failed",
			"command", id.String(),
			"detail", detail,
			"kind", out.Kind.String(),
			"elapsed", elapsed.String(),
			"error", err,
		)
	} else {
		out.OK = true
		c.clearError()
		c.logger.Debug("avr command done",
			"command", id.String(),
			"detail", detail,
			"elapsed", elapsed.String(),
		)
	}
	out.State = c.State()

	if c.recorder != nil {
		c.recorder.RecordCommand(context.WithoutCancel(ctx), CommandRecord{
			Command:  id,
			Detail:   detail,
			Source:   SourceFrom(ctx),
			OK:       out.OK,
			Err:      err,
			Duration: elapsed,
			State:    out.State,
		})
	}
	return out
}

func (c *Controller) acquire(ctx context.Context) error {
	select {
	case c.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		if c.life.Err() != nil {
			return ErrClosed
		}
		return fmt.Errorf("%w: waiting for command slot: %w", ErrNetworkTimeout, ctx.Err())
	}
}

func (c *Controller) queryPower(ctx context.Context) (PowerState, error) {
	groups, err := c.protocol.Execute(ctx, PowerStatus, "")
	if err != nil {
		return PowerStateUnknown, err
	}
	p := PowerStateOff
	if groups[0] == "0" {
		p = PowerStateOn
	}
	c.applyPower(p)
	return p, nil
}

func (c *Controller) queryMute(ctx context.Context) (bool, error) {
	groups, err := c.protocol.Execute(ctx, MuteStatus, "")
	if err != nil {
		return false, err
	}
	return groups[0] == "0", nil
}

func (c *Controller) queryLevel(ctx context.Context, id CommandID, sub string) (int, error) {
	groups, err := c.protocol.Execute(ctx, id, sub)
	if err != nil {
		return 0, err
	}
	level, err := strconv.Atoi(groups[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %s: level %q: %w", ErrProtocolMismatch, id, groups[0], err)
	}
	if level != ClampLevel(level) {
		return 0, fmt.Errorf("%w: %s: level %d out of range", ErrProtocolMismatch, id, level)
	}
	return level, nil
}

func (c *Controller) applyVolume(id CommandID, level int) {
	c.stateMu.Lock()
	c.state.Level = level
	c.state.Volume = ToDisplay(level, c.state.Muted)
	c.state.UpdatedAt = time.Now()
	snap := c.state
	c.stateMu.Unlock()

	c.emit(Event{Type: EventVolumeChanged, Command: id, State: snap})
}

func (c *Controller) applyMute(id CommandID, muted bool) {
	c.stateMu.Lock()
	changed := c.state.Muted != muted
	c.state.Muted = muted
	c.state.Volume = ToDisplay(c.state.Level, muted)
	c.state.UpdatedAt = time.Now()
	snap := c.state
	c.stateMu.Unlock()

	if changed {
		c.emit(Event{Type: EventMuteChanged, Command: id, State: snap})
	}
}

func (c *Controller) applyPower(p PowerState) {
	c.stateMu.Lock()
	changed := c.state.Power != p
	c.state.Power = p
	c.state.UpdatedAt = time.Now()
	snap := c.state
	c.stateMu.Unlock()

	if changed {
		c.emit(Event{Type: EventPowerChanged, Command: PowerStatus, State: snap})
	}
}

func (c *Controller) applyError(id CommandID, err error) {
	c.stateMu.Lock()
	c.state.LastError = err.Error()
	c.state.LastErrorKind = KindOf(err).String()
	snap := c.state
	c.stateMu.Unlock()

	c.emit(Event{Type: EventError, Command: id, State: snap, Err: err})
}

func (c *Controller) clearError() {
	c.stateMu.Lock()
	c.state.LastError = ""
	c.state.LastErrorKind = ""
	c.stateMu.Unlock()
}

// emit queues an event without blocking the command path. The queue is
// only closed after every in-flight command has returned.
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("avr event dropped, subscribers too slow", "type", string(ev.Type))
	}
}

func (c *Controller) dispatch() {
	defer close(c.dispatchDone)
	for ev := range c.events {
		c.obsMu.Lock()
		fns := make([]func(Event), 0, len(c.observers))
		for _, fn := range c.observers {
			fns = append(fns, fn)
		}
		c.obsMu.Unlock()

		for _, fn := range fns {
			fn(ev)
		}
	}
}

func failureMessage(id CommandID, err error) string {
	var what string
	switch id {
	case VolumeSet, VolumeUp, VolumeDown, VolumeGet:
		what = "Volume unchanged"
	case PowerStatus:
		what = "Receiver power is unknown"
	case Refresh:
		what = "Receiver state is unknown"
	default:
		what = "Command " + id.String() + " not delivered"
	}

	switch {
	case errors.Is(err, ErrClosed):
		return what + ": controller is closed"
	case errors.Is(err, ErrNetworkTimeout):
		return what + ": receiver did not answer in time"
	case errors.Is(err, ErrCommunication):
		return what + ": receiver unreachable"
	case errors.Is(err, ErrProtocolMismatch):
		return what + ": unexpected reply from receiver"
	default:
		return what
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
