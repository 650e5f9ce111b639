// Package display decides when the volume popup is visible.
//
// Every volume change shows the popup at once and (re)starts a hide
// timer. The popup itself is drawn by sinks: the WebSocket hub and the
// MQTT bridge each receive the same show and hide notifications.
package display

import (
	"sync"
	"time"

	"github.com/Dlizzz/catspaw/internal/avr"
)

// DefaultHideAfter is how long the popup stays up after the last change.
const DefaultHideAfter = 2 * time.Second

// Visibility is one popup notification.
type Visibility struct {
	Visible bool      `json:"visible"`
	Volume  string    `json:"volume"`
	Muted   bool      `json:"muted"`
	At      time.Time `json:"at"`
}

// Sink receives popup notifications. Called without locks held, from
// the event goroutine on show and from a timer goroutine on hide.
type Sink func(Visibility)

// Popup is the volume popup timing policy.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Popup struct {
	hideAfter time.Duration
	sinks     []Sink

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	visible bool
	last    Visibility
	stopped bool
}

// NewPopup creates a popup. hideAfter <= 0 uses DefaultHideAfter.
func NewPopup(hideAfter time.Duration, sinks ...Sink) *Popup {
	if hideAfter <= 0 {
		hideAfter = DefaultHideAfter
	}
	return &Popup{hideAfter: hideAfter, sinks: sinks}
}

// AddSink registers another sink.
func (p *Popup) AddSink(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, s)
}

// Observe is an avr.Controller subscriber; volume and mute changes show
// the popup.
func (p *Popup) Observe(ev avr.Event) {
	switch ev.Type {
	case avr.EventVolumeChanged, avr.EventMuteChanged:
		p.Show(ev.State.Volume, ev.State.Muted)
	}
}

// Show displays volume now and arms the hide timer.
func (p *Popup) Show(volume string, muted bool) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.gen++
	gen := p.gen
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.hideAfter, func() { p.hide(gen) })
	p.visible = true
	p.last = Visibility{Visible: true, Volume: volume, Muted: muted, At: time.Now()}
	v, sinks := p.last, p.sinks
	p.mu.Unlock()

	notify(sinks, v)
}

// hide runs from the timer; a stale generation means Show re-armed it.
func (p *Popup) hide(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.stopped || !p.visible {
		p.mu.Unlock()
		return
	}
	p.visible = false
	p.timer = nil
	p.last.Visible = false
	p.last.At = time.Now()
	v, sinks := p.last, p.sinks
	p.mu.Unlock()

	notify(sinks, v)
}

// Stop cancels a pending hide. Later Show calls are ignored.
func (p *Popup) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func notify(sinks []Sink, v Visibility) {
	for _, s := range sinks {
		s(v)
	}
}
