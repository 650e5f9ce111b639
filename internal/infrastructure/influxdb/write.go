package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementVolume  = "avr_volume"
	MeasurementPower   = "avr_power"
	MeasurementCommand = "avr_command"
)

// WriteVolume records a volume reading: the raw level, the level in dB
// and the mute flag.
func (c *Client) WriteVolume(level int, db float64, muted bool, at time.Time) {
	c.writePoint(MeasurementVolume, nil, map[string]any{
		"level": level,
		"db":    db,
		"muted": muted,
	}, at)
}

// WritePower records a power state ("on", "off" or "unknown").
func (c *Client) WritePower(state string, at time.Time) {
	c.writePoint(MeasurementPower, map[string]string{"state": state}, map[string]any{
		"on": state == "on",
	}, at)
}

// WriteCommand records one finished controller command.
//
// Parameters:
//   - command: Command name, used as a tag
//   - source: Issuing surface ("api", "mqtt", "console"), used as a tag
//   - kind: Failure kind, empty on success
//   - ok: Whether the command succeeded
//   - duration: Time spent including the wait for the command slot
func (c *Client) WriteCommand(command, source, kind string, ok bool, duration time.Duration, at time.Time) {
	tags := map[string]string{"command": command, "source": source}
	if kind != "" {
		tags["kind"] = kind
	}
	c.writePoint(MeasurementCommand, tags, map[string]any{
		"ok":          ok,
		"duration_ms": duration.Milliseconds(),
	}, at)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
