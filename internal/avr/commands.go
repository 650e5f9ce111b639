package avr

import (
	"fmt"
	"regexp"
	"strings"
)

// CommandID identifies an entry of the command catalog.
type CommandID int

// Catalog entries.
const (
	PowerStatus CommandID = iota
	PowerOn
	PowerOff
	VolumeUp
	VolumeDown
	VolumeSet
	VolumeGet
	MuteToggle
	MuteStatus

	// Refresh names the combined power, mute and volume read. It has no
	// catalog entry of its own.
	Refresh
)

var commandNames = [...]string{
	PowerStatus: "power_status",
	PowerOn:     "power_on",
	PowerOff:    "power_off",
	VolumeUp:    "volume_up",
	VolumeDown:  "volume_down",
	VolumeSet:   "volume_set",
	VolumeGet:   "volume_get",
	MuteToggle:  "mute_toggle",
	MuteStatus:  "mute_status",
	Refresh:     "refresh",
}

// String returns the snake_case name used in logs, history and topics.
func (id CommandID) String() string {
	if id < 0 || int(id) >= len(commandNames) {
		return fmt.Sprintf("command(%d)", int(id))
	}
	return commandNames[id]
}

// Placeholder marks the parameter slot of a parametric wire text.
const Placeholder = "***"

// Command is one immutable catalog entry.
type Command struct {
	ID CommandID

	// Wire is the text sent to the device, possibly with a Placeholder.
	Wire string

	// Pattern matches the reply. Captured groups are returned to the caller.
	Pattern *regexp.Regexp

	// FireAndForget commands are sent without reading a reply.
	FireAndForget bool
}

// Parametric reports whether Wire needs a substitution.
func (c Command) Parametric() bool {
	return strings.Contains(c.Wire, Placeholder)
}

// Render returns the wire text with sub substituted into the placeholder.
func (c Command) Render(sub string) (string, error) {
	if !c.Parametric() {
		if sub != "" {
			return "", fmt.Errorf("avr: %s takes no parameter", c.ID)
		}
		return c.Wire, nil
	}
	if sub == "" {
		return "", fmt.Errorf("avr: %s requires a parameter", c.ID)
	}
	return strings.Replace(c.Wire, Placeholder, sub, 1), nil
}

// Match applies the reply pattern and returns the captured groups.
func (c Command) Match(reply string) ([]string, bool) {
	if c.Pattern == nil {
		return nil, true
	}
	m := c.Pattern.FindStringSubmatch(reply)
	if m == nil {
		return nil, false
	}
	return m[1:], true
}

// catalog is built once and only read afterwards.
var catalog = map[CommandID]Command{
	PowerStatus: {ID: PowerStatus, Wire: "?P", Pattern: regexp.MustCompile(`PWR([0-1])`)},
	PowerOn:     {ID: PowerOn, Wire: "PO", Pattern: regexp.MustCompile(`PWR0`), FireAndForget: true},
	PowerOff:    {ID: PowerOff, Wire: "PF", Pattern: regexp.MustCompile(`PWR1`), FireAndForget: true},
	VolumeUp:    {ID: VolumeUp, Wire: "VU", Pattern: regexp.MustCompile(`VOL(\d{3})`)},
	VolumeDown:  {ID: VolumeDown, Wire: "VD", Pattern: regexp.MustCompile(`VOL(\d{3})`)},
	VolumeSet:   {ID: VolumeSet, Wire: Placeholder + "VL", Pattern: regexp.MustCompile(`VOL(\d{3})`)},
	VolumeGet:   {ID: VolumeGet, Wire: "?V", Pattern: regexp.MustCompile(`VOL(\d{3})`)},
	MuteToggle:  {ID: MuteToggle, Wire: "MZ", FireAndForget: true},
	MuteStatus:  {ID: MuteStatus, Wire: "?M", Pattern: regexp.MustCompile(`MUT([0-1])`)},
}

// Lookup returns the catalog entry for id.
func Lookup(id CommandID) (Command, bool) {
	c, ok := catalog[id]
	return c, ok
}

// ParseCommandID resolves a command name as returned by CommandID.String.
func ParseCommandID(name string) (CommandID, bool) {
	for id, n := range commandNames {
		if n == name {
			return CommandID(id), true
		}
	}
	return 0, false
}
