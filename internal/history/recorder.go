package history

import (
	"context"
	"time"

	"github.com/Dlizzz/catspaw/internal/avr"
)

// writeTimeout bounds one history insert.
const writeTimeout = 2 * time.Second

// Logger is the logging surface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

// Recorder writes controller records to a Repository. A failed insert
// is logged and dropped; it never affects the command.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// RecordCommand implements avr.CommandRecorder.
func (r *Recorder) RecordCommand(ctx context.Context, rec avr.CommandRecord) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	e := FromRecord(rec)
	if err := r.repo.Create(ctx, &e); err != nil && r.logger != nil {
		r.logger.Warn("command history write failed", "command", e.Command, "error", err)
	}
}

// FromRecord converts a controller record to an Entry.
func FromRecord(rec avr.CommandRecord) Entry {
	e := Entry{
		Command:    rec.Command.String(),
		Detail:     rec.Detail,
		Source:     rec.Source,
		OK:         rec.OK,
		Volume:     rec.State.Volume,
		Level:      rec.State.Level,
		Power:      rec.State.Power.String(),
		DurationMS: rec.Duration.Milliseconds(),
	}
	if rec.Err != nil {
		e.ErrorKind = avr.KindOf(rec.Err).String()
		e.Message = rec.Err.Error()
	}
	return e
}
