package avr

import (
	"encoding/json"
	"fmt"
)

// ZoneStatus is one output zone of the status document. Only power,
// volume and mute are interpreted; every other member is kept verbatim.
type ZoneStatus struct {
	Powered bool
	Level   int
	Muted   bool

	// Extra holds members such as "I" (inputs) and "C" whose meaning is
	// not known. They are preserved and never interpreted.
	Extra map[string]json.RawMessage
}

// DeviceStatus is the document served by StatusHandler.asp.
type DeviceStatus struct {
	Zones []ZoneStatus

	// Extra holds every top-level member except "Z" ("S", "B", "IL",
	// "MS", "DM", ...).
	Extra map[string]json.RawMessage
}

// UnmarshalJSON decodes a zone and keeps unknown members.
func (z *ZoneStatus) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var p, v, m int
	for _, f := range []struct {
		key string
		dst *int
	}{{"P", &p}, {"V", &v}, {"M", &m}} {
		msg, ok := raw[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(msg, f.dst); err != nil {
			return fmt.Errorf("zone member %q: %w", f.key, err)
		}
		delete(raw, f.key)
	}

	*z = ZoneStatus{Powered: p == 1, Level: v, Muted: m == 1}
	if len(raw) > 0 {
		z.Extra = raw
	}
	return nil
}

// MarshalJSON writes the zone back in device form, extras included.
func (z ZoneStatus) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(z.Extra)+3)
	for k, v := range z.Extra {
		out[k] = v
	}
	out["P"] = boolInt(z.Powered)
	out["V"] = z.Level
	out["M"] = boolInt(z.Muted)
	return json.Marshal(out)
}

// UnmarshalJSON decodes the status document and keeps unknown members.
func (s *DeviceStatus) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var zones []ZoneStatus
	if msg, ok := raw["Z"]; ok {
		if err := json.Unmarshal(msg, &zones); err != nil {
			return fmt.Errorf("member \"Z\": %w", err)
		}
		delete(raw, "Z")
	}

	*s = DeviceStatus{Zones: zones}
	if len(raw) > 0 {
		s.Extra = raw
	}
	return nil
}

// MainZone returns zone 0.
func (s *DeviceStatus) MainZone() (ZoneStatus, bool) {
	if s == nil || len(s.Zones) == 0 {
		return ZoneStatus{}, false
	}
	return s.Zones[0], true
}

// DecodeStatus parses a status document. The device emits trailing
// commas, which are removed first. A document without zones is rejected.
//
// Returns:
//   - error: wraps ErrProtocolMismatch
func DecodeStatus(body []byte) (*DeviceStatus, error) {
	var st DeviceStatus
	if err := json.Unmarshal(stripTrailingCommas(body), &st); err != nil {
		return nil, fmt.Errorf("%w: status document: %w", ErrProtocolMismatch, err)
	}
	if len(st.Zones) == 0 {
		return nil, fmt.Errorf("%w: status document has no zones", ErrProtocolMismatch)
	}
	return &st, nil
}

// stripTrailingCommas drops commas that directly precede '}' or ']',
// ignoring anything inside string literals.
func stripTrailingCommas(in []byte) []byte {
	out := make([]byte, 0, len(in))
	inString, escaped := false, false

	for i := 0; i < len(in); i++ {
		ch := in[i]
		if inString {
			out = append(out, ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		if ch == '"' {
			inString = true
		}
		if ch == ',' && closesNext(in[i+1:]) {
			continue
		}
		out = append(out, ch)
	}
	return out
}

func closesNext(rest []byte) bool {
	for _, ch := range rest {
		switch ch {
		case ' ', '\t', '\r', '\n':
			continue
		case '}', ']':
			return true
		default:
			return false
		}
	}
	return false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
