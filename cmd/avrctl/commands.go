package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Dlizzz/catspaw/internal/avr"
)

// errQuit ends the console loop.
var errQuit = errors.New("quit")

// errUsage marks input the console could not parse.
var errUsage = errors.New("usage")

// receiver is the controller surface the console drives.
// Satisfied by *avr.Controller.
type receiver interface {
	State() avr.State
	PowerOn(ctx context.Context) avr.Outcome
	PowerOff(ctx context.Context) avr.Outcome
	QueryPower(ctx context.Context) avr.Outcome
	VolumeSet(ctx context.Context, adj avr.Adjustment) avr.Outcome
	VolumeGet(ctx context.Context) avr.Outcome
	MuteToggle(ctx context.Context) avr.Outcome
	MuteStatus(ctx context.Context) avr.Outcome
	Refresh(ctx context.Context) avr.Outcome
}

const helpText = `commands:
  power on|off|status      switch or query the receiver
  volume up|down [N[%]]    step, move N dB, or move N percent
  volume                   read the volume
  mute                     toggle mute
  mute status              read the mute state
  refresh                  re-read power, volume and mute
  state                    print the cached state without a device call
  help                     this text
  quit                     leave the console`

// execute runs one console line against r and returns the text to print.
// Blank lines yield "" and no error.
func execute(ctx context.Context, r receiver, line string) (string, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return "", nil
	}

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "help", "?":
		return helpText, nil
	case "quit", "exit", "q":
		return "", errQuit
	case "state":
		return formatState(r.State()), nil
	case "refresh":
		return formatOutcome(r.Refresh(ctx)), nil
	case "power", "pwr":
		return power(ctx, r, args)
	case "volume", "vol":
		return volume(ctx, r, args)
	case "mute":
		switch {
		case len(args) == 0:
			return formatOutcome(r.MuteToggle(ctx)), nil
		case len(args) == 1 && args[0] == "status":
			return formatOutcome(r.MuteStatus(ctx)), nil
		}
		return "", fmt.Errorf("%w: mute [status]", errUsage)
	}
	return "", fmt.Errorf("%w: unknown command %q, try help", errUsage, cmd)
}

func power(ctx context.Context, r receiver, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: power on|off|status", errUsage)
	}
	switch args[0] {
	case "on":
		return formatOutcome(r.PowerOn(ctx)), nil
	case "off":
		return formatOutcome(r.PowerOff(ctx)), nil
	case "status", "?":
		return formatOutcome(r.QueryPower(ctx)), nil
	}
	return "", fmt.Errorf("%w: power on|off|status", errUsage)
}

func volume(ctx context.Context, r receiver, args []string) (string, error) {
	if len(args) == 0 {
		return formatOutcome(r.VolumeGet(ctx)), nil
	}
	if len(args) > 2 {
		return "", fmt.Errorf("%w: volume up|down [N[%%]]", errUsage)
	}

	dir, err := avr.ParseDirection(args[0])
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUsage, err)
	}
	adj := avr.Adjustment{Direction: dir}
	if len(args) == 2 {
		amount := args[1]
		if strings.HasSuffix(amount, "%") {
			adj.Ratio = true
			amount = strings.TrimSuffix(amount, "%")
		}
		amount = strings.TrimSuffix(amount, "db")
		adj.Amount, err = strconv.ParseFloat(amount, 64)
		if err != nil || adj.Amount < 0 {
			return "", fmt.Errorf("%w: amount %q must be a non-negative number", errUsage, args[1])
		}
	}
	return formatOutcome(r.VolumeSet(ctx, adj)), nil
}

func formatOutcome(o avr.Outcome) string {
	var b strings.Builder
	if o.OK {
		b.WriteString("ok")
	} else {
		fmt.Fprintf(&b, "failed (%s)", o.Kind)
	}
	if o.Message != "" {
		b.WriteString(": ")
		b.WriteString(o.Message)
	}
	b.WriteString("\n")
	b.WriteString(formatState(o.State))
	return b.String()
}

func formatState(s avr.State) string {
	return fmt.Sprintf("  power=%s volume=%q muted=%t", s.Power, s.Volume, s.Muted)
}
