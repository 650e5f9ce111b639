package display

import (
	"sync"
	"testing"
	"time"

	"github.com/Dlizzz/catspaw/internal/avr"
)

type sinkRecorder struct {
	mu  sync.Mutex
	got []Visibility
	ch  chan Visibility
}

func newSinkRecorder() *sinkRecorder {
	return &sinkRecorder{ch: make(chan Visibility, 16)}
}

func (r *sinkRecorder) sink(v Visibility) {
	r.mu.Lock()
	r.got = append(r.got, v)
	r.mu.Unlock()
	r.ch <- v
}

func (r *sinkRecorder) next(t *testing.T, timeout time.Duration) Visibility {
	t.Helper()
	select {
	case v := <-r.ch:
		return v
	case <-time.After(timeout):
		t.Fatal("no popup notification")
		return Visibility{}
	}
}

func (r *sinkRecorder) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case v := <-r.ch:
		t.Fatalf("unexpected notification %+v", v)
	case <-time.After(wait):
	}
}

func TestPopup_ShowThenHide(t *testing.T) {
	r := newSinkRecorder()
	p := NewPopup(30*time.Millisecond, r.sink)
	defer p.Stop()

	start := time.Now()
	p.Show("-25.5 dB", false)

	shown := r.next(t, time.Second)
	if !shown.Visible || shown.Volume != "-25.5 dB" {
		t.Errorf("show = %+v", shown)
	}
	hidden := r.next(t, time.Second)
	if hidden.Visible {
		t.Errorf("second notification visible = true")
	}
	if hidden.Volume != "-25.5 dB" {
		t.Errorf("hide volume = %q", hidden.Volume)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("hidden after %v, want >= 30ms", elapsed)
	}
}

func TestPopup_ShowRestartsTimer(t *testing.T) {
	r := newSinkRecorder()
	p := NewPopup(100*time.Millisecond, r.sink)
	defer p.Stop()

	p.Show("-30.0 dB", false)
	r.next(t, time.Second)
	time.Sleep(50 * time.Millisecond)
	p.Show("-29.5 dB", false)
	r.next(t, time.Second)

	// The first timer would have fired here.
	r.none(t, 70*time.Millisecond)

	hidden := r.next(t, time.Second)
	if hidden.Visible || hidden.Volume != "-29.5 dB" {
		t.Errorf("hide = %+v", hidden)
	}
}

func TestPopup_Stop(t *testing.T) {
	r := newSinkRecorder()
	p := NewPopup(20*time.Millisecond, r.sink)

	p.Show("-10.0 dB", false)
	r.next(t, time.Second)
	p.Stop()
	r.none(t, 60*time.Millisecond)

	p.Show("-9.5 dB", false)
	r.none(t, 20*time.Millisecond)
}

func TestPopup_Observe(t *testing.T) {
	tests := []struct {
		name  string
		event avr.EventType
		show  bool
	}{
		{"volume", avr.EventVolumeChanged, true},
		{"mute", avr.EventMuteChanged, true},
		{"power", avr.EventPowerChanged, false},
		{"error", avr.EventError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newSinkRecorder()
			p := NewPopup(time.Minute, r.sink)
			defer p.Stop()

			p.Observe(avr.Event{Type: tt.event, State: avr.State{Volume: avr.UnknownDisplay, Muted: true}})
			if tt.show {
				v := r.next(t, time.Second)
				if !v.Visible || !v.Muted || v.Volume != avr.UnknownDisplay {
					t.Errorf("show = %+v", v)
				}
				p.mu.Lock()
				visible := p.visible
				p.mu.Unlock()
				if !visible {
					t.Error("popup not marked visible after show")
				}
				return
			}
			r.none(t, 10*time.Millisecond)
		})
	}
}

func TestNewPopup_Default(t *testing.T) {
	if p := NewPopup(0); p.hideAfter != DefaultHideAfter {
		t.Errorf("hideAfter = %v, want %v", p.hideAfter, DefaultHideAfter)
	}
}
