package metrics

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/Dlizzz/catspaw/internal/avr"
)

type fakeWriter struct {
	calls []string
}

func (f *fakeWriter) WriteVolume(level int, db float64, muted bool, _ time.Time) {
	f.calls = append(f.calls, fmt.Sprintf("volume %d %.1f %v", level, db, muted))
}

func (f *fakeWriter) WritePower(state string, _ time.Time) {
	f.calls = append(f.calls, "power "+state)
}

func (f *fakeWriter) WriteCommand(command, source, kind string, ok bool, d time.Duration, _ time.Time) {
	f.calls = append(f.calls, fmt.Sprintf("command %s %s %q %v %s", command, source, kind, ok, d))
}

func TestRecorder(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w)

	r.RecordCommand(context.Background(), avr.CommandRecord{
		Command: avr.VolumeUp, Source: "api", OK: true, Duration: 40 * time.Millisecond,
	})
	r.RecordCommand(context.Background(), avr.CommandRecord{
		Command: avr.PowerStatus, Source: "mqtt", Err: fmt.Errorf("%w: eof", avr.ErrCommunication), Duration: time.Second,
	})
	r.Observe(avr.Event{Type: avr.EventVolumeChanged, State: avr.State{Level: 141}})
	r.Observe(avr.Event{Type: avr.EventMuteChanged, State: avr.State{Level: 141, Muted: true}})
	r.Observe(avr.Event{Type: avr.EventPowerChanged, State: avr.State{Power: avr.PowerStateOff}})
	r.Observe(avr.Event{Type: avr.EventError, Err: errors.New("ignored")})

	want := []string{
		`command volume_up api "" true 40ms`,
		`command power_status mqtt "communication_error" false 1s`,
		"volume 141 -10.0 false",
		"volume 141 -10.0 true",
		"power off",
	}
	if !reflect.DeepEqual(w.calls, want) {
		t.Errorf("calls =\n%v\nwant\n%v", w.calls, want)
	}
}
