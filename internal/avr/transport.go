package avr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Dlizzz/catspaw/internal/infrastructure/config"
)

// Transport carries one command to the device.
//
// Send is for fire-and-forget commands and never reads a reply. Exec
// returns the single reply line. The two shapes are kept apart so
// commands the device never answers do not wait for a reply.
type Transport interface {
	Send(ctx context.Context, command string) error
	Exec(ctx context.Context, command string) (string, error)
}

// NewTransport builds the transport selected by cfg.Transport. An empty
// transport means tcp. gate may be nil when the network is assumed up.
func NewTransport(cfg config.AVRConfig, gate NetworkGate, log Logger) (Transport, error) {
	switch cfg.Transport {
	case config.TransportHTTP:
		client, err := NewHTTPClient(cfg.Host, HTTPOptions{
			Gate:           gate,
			NetworkTimeout: cfg.NetworkTimeout,
			Timeout:        cfg.HTTPTimeout,
			Logger:         log,
		})
		if err != nil {
			return nil, err
		}
		return NewHTTPTransport(client, cfg.HTTPSettle), nil
	case config.TransportTCP, "":
		return NewTCPTransport(Endpoint{Host: cfg.Host, Port: cfg.Port}, ConnectionOptions{
			Gate:           gate,
			NetworkTimeout: cfg.NetworkTimeout,
			ConnectTimeout: cfg.ConnectTimeout,
			RetryBackoff:   cfg.RetryBackoff,
			ReadTimeout:    cfg.ReadTimeout,
			Logger:         log,
		})
	default:
		return nil, fmt.Errorf("avr: unknown transport %q", cfg.Transport)
	}
}

// TCPTransport opens a fresh Connection for every call and always
// disconnects it before returning.
type TCPTransport struct {
	endpoint Endpoint
	opts     ConnectionOptions
}

// NewTCPTransport validates the endpoint and returns a transport.
func NewTCPTransport(endpoint Endpoint, opts ConnectionOptions) (*TCPTransport, error) {
	if err := endpoint.Validate(); err != nil {
		return nil, err
	}
	return &TCPTransport{endpoint: endpoint, opts: opts.withDefaults()}, nil
}

// Send connects, writes command and disconnects.
func (t *TCPTransport) Send(ctx context.Context, command string) error {
	return t.withConnection(ctx, func(c *Connection) error {
		return c.Send(ctx, command)
	})
}

// Exec connects, writes command, reads the reply and disconnects.
func (t *TCPTransport) Exec(ctx context.Context, command string) (string, error) {
	var reply string
	err := t.withConnection(ctx, func(c *Connection) error {
		var err error
		reply, err = c.Exec(ctx, command)
		return err
	})
	return reply, err
}

func (t *TCPTransport) withConnection(ctx context.Context, fn func(*Connection) error) error {
	c := NewConnection(t.endpoint, t.opts)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Disconnect(); err != nil {
			t.opts.Logger.Debug("avr disconnect failed", "error", err)
		}
	}()
	return fn(c)
}

// HTTPTransport adapts an HTTPClient to the line-oriented Transport.
//
// Queries ("?P", "?V", "?M") only fetch the status document; any other
// command is sent first and the status fetched afterwards. The reply is
// synthesised from zone 0 as "PWR<p> VOL<nnn> MUT<m>" using the device
// conventions (PWR0 = on, MUT0 = muted) so the catalog patterns apply.
//
// The device applies commands asynchronously, so the status fetch that
// follows a command waits settle first. A zero settle fetches at once.
type HTTPTransport struct {
	client *HTTPClient
	settle time.Duration
}

// DefaultHTTPSettle is the usual pause between a command and the status
// fetch reporting its effect.
const DefaultHTTPSettle = 1500 * time.Millisecond

// NewHTTPTransport wraps client. settle is the pause between a command
// and the status fetch; negative values are treated as zero.
func NewHTTPTransport(client *HTTPClient, settle time.Duration) *HTTPTransport {
	if settle < 0 {
		settle = 0
	}
	return &HTTPTransport{client: client, settle: settle}
}

// Send forwards command to the command endpoint.
func (t *HTTPTransport) Send(ctx context.Context, command string) error {
	return t.client.SendCommand(ctx, command)
}

// Exec sends command unless it is a query, then reports the fresh status.
func (t *HTTPTransport) Exec(ctx context.Context, command string) (string, error) {
	if !strings.HasPrefix(command, "?") {
		if err := t.client.SendCommand(ctx, command); err != nil {
			return "", err
		}
		if err := t.wait(ctx); err != nil {
			return "", err
		}
	}
	st, err := t.client.FetchStatus(ctx)
	if err != nil {
		return "", err
	}
	zone, _ := st.MainZone()
	return StatusReply(zone), nil
}

func (t *HTTPTransport) wait(ctx context.Context) error {
	if t.settle == 0 {
		return nil
	}
	timer := time.NewTimer(t.settle)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for device to apply command: %w", ErrNetworkTimeout, ctx.Err())
	}
}

// StatusReply renders a zone in line-protocol form.
func StatusReply(z ZoneStatus) string {
	return fmt.Sprintf("PWR%d VOL%03d MUT%d", boolInt(!z.Powered), ClampLevel(z.Level), boolInt(!z.Muted))
}
