// Package metrics turns controller activity into time-series points.
package metrics

import (
	"context"
	"time"

	"github.com/Dlizzz/catspaw/internal/avr"
)

// Writer is the time-series sink. Satisfied by *influxdb.Client.
type Writer interface {
	WriteVolume(level int, db float64, muted bool, at time.Time)
	WritePower(state string, at time.Time)
	WriteCommand(command, source, kind string, ok bool, duration time.Duration, at time.Time)
}

// Recorder writes one avr_command point per finished command and
// volume/power points on state events.
type Recorder struct {
	w Writer
}

// NewRecorder creates a Recorder over w.
func NewRecorder(w Writer) *Recorder {
	return &Recorder{w: w}
}

// RecordCommand implements avr.CommandRecorder.
func (r *Recorder) RecordCommand(_ context.Context, rec avr.CommandRecord) {
	kind := ""
	if rec.Err != nil {
		kind = avr.KindOf(rec.Err).String()
	}
	r.w.WriteCommand(rec.Command.String(), rec.Source, kind, rec.OK, rec.Duration, time.Now())
}

// Observe is an avr.Controller subscriber.
func (r *Recorder) Observe(ev avr.Event) {
	at := ev.State.UpdatedAt
	switch ev.Type {
	case avr.EventVolumeChanged, avr.EventMuteChanged:
		r.w.WriteVolume(ev.State.Level, avr.LevelToDB(ev.State.Level), ev.State.Muted, at)
	case avr.EventPowerChanged:
		r.w.WritePower(ev.State.Power.String(), at)
	}
}
