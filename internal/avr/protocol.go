package avr

import (
	"context"
	"fmt"
	"time"
)

// Protocol binds the command catalog to a Transport.
type Protocol struct {
	transport Transport
	logger    Logger
}

// NewProtocol creates a Protocol over transport.
func NewProtocol(transport Transport, logger Logger) *Protocol {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Protocol{transport: transport, logger: logger}
}

// Execute runs a confirmed command and returns the groups captured from
// its reply.
//
// Parameters:
//   - ctx: Bounds the exchange
//   - id: Catalog entry; must not be fire-and-forget
//   - sub: Parameter for parametric commands (VolumeSet), else ""
//
// Returns:
//   - []string: captured groups, possibly empty
//   - error: transport errors unchanged, or ErrProtocolMismatch when the
//     reply does not match (the mismatch is also logged)
func (p *Protocol) Execute(ctx context.Context, id CommandID, sub string) ([]string, error) {
	cmd, wire, err := p.prepare(id, sub)
	if err != nil {
		return nil, err
	}
	if cmd.FireAndForget {
		return nil, fmt.Errorf("%w: %s is fire-and-forget", ErrCallShape, id)
	}

	start := time.Now()
	reply, err := p.transport.Exec(ctx, wire)
	if err != nil {
		return nil, err
	}

	groups, ok := cmd.Match(reply)
	if !ok {
		p.logger.Warn("avr reply mismatch",
			"command", id.String(),
			"wire", wire,
			"reply", reply,
			"elapsed", time.Since(start).String(),
		)
		return nil, fmt.Errorf("%w: %s: unexpected reply %q", ErrProtocolMismatch, id, reply)
	}
	return groups, nil
}

// Send runs a fire-and-forget command. No reply is read or validated.
func (p *Protocol) Send(ctx context.Context, id CommandID) error {
	cmd, wire, err := p.prepare(id, "")
	if err != nil {
		return err
	}
	if !cmd.FireAndForget {
		return fmt.Errorf("%w: %s expects a reply", ErrCallShape, id)
	}
	return p.transport.Send(ctx, wire)
}

func (p *Protocol) prepare(id CommandID, sub string) (Command, string, error) {
	cmd, ok := Lookup(id)
	if !ok {
		return Command{}, "", fmt.Errorf("%w: %d", ErrUnknownCommand, int(id))
	}
	wire, err := cmd.Render(sub)
	if err != nil {
		return Command{}, "", err
	}
	return cmd, wire, nil
}
