package avr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Connection defaults.
const (
	DefaultNetworkTimeout = 5 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultRetryBackoff   = 500 * time.Millisecond
	DefaultReadTimeout    = 2 * time.Second

	lineTerminator = "\r\n"

	// echoPrefix marks a front-panel display line that precedes the reply.
	echoPrefix = "FL"
)

// ConnectionState is the lifecycle of a Connection.
type ConnectionState int

// Connection states.
const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Failed
)

// String returns the state name.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Endpoint is the receiver address. Immutable after construction.
type Endpoint struct {
	Host string
	Port int
}

// Validate checks the host is set and the port is in range.
func (e Endpoint) Validate() error {
	if e.Host == "" {
		return errors.New("avr: endpoint host is required")
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("avr: endpoint port %d out of range [1, 65535]", e.Port)
	}
	return nil
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// NetworkGate blocks until the host network is available.
// Satisfied by *netwatch.Gate.
type NetworkGate interface {
	WaitAvailable(ctx context.Context, timeout time.Duration) bool
}

// DialFunc opens a stream connection. Matches (*net.Dialer).DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Logger is the logging interface used by this package.
// Compatible with *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ConnectionOptions configures Connection and TCPTransport. Zero values
// select the package defaults.
type ConnectionOptions struct {
	// Gate is consulted before dialling. Nil means always available.
	Gate NetworkGate

	NetworkTimeout time.Duration
	ConnectTimeout time.Duration
	RetryBackoff   time.Duration
	ReadTimeout    time.Duration

	// Dial defaults to a net.Dialer.
	Dial DialFunc

	Logger Logger
}

func (o ConnectionOptions) withDefaults() ConnectionOptions {
	if o.Gate == nil {
		o.Gate = alwaysUp{}
	}
	if o.NetworkTimeout <= 0 {
		o.NetworkTimeout = DefaultNetworkTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.Dial == nil {
		o.Dial = (&net.Dialer{}).DialContext
	}
	if o.Logger == nil {
		o.Logger = nopLogger{}
	}
	return o
}

// Connection is one TCP session with the receiver.
//
// Thread Safety:
//   - Methods may be called from any goroutine; I/O is serialised.
//   - A Connection is meant for a single command exchange and then
//     discarded. TCPTransport manages that lifecycle.
type Connection struct {
	endpoint Endpoint
	opts     ConnectionOptions

	mu    sync.Mutex
	state ConnectionState
	conn  net.Conn
	r     *bufio.Reader
	w     *bufio.Writer
}

// NewConnection creates a disconnected Connection.
func NewConnection(endpoint Endpoint, opts ConnectionOptions) *Connection {
	return &Connection{
		endpoint: endpoint,
		opts:     opts.withDefaults(),
	}
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

type dialResult struct {
	conn     net.Conn
	attempts int
	err      error
}

// Connect waits for the network, then dials with retry until success or
// the connect timeout.
//
// Refused and unreachable errors are retried after RetryBackoff. The
// retry loop runs in its own goroutine and is always joined before
// Connect returns, so a cancelled attempt neither leaks a socket nor logs
// after the caller moved on.
//
// Parameters:
//   - ctx: Parent context; cancellation aborts the loop
//
// Returns:
//   - error: wraps ErrNetworkTimeout or ErrCommunication
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Connected {
		c.mu.Unlock()
		return nil
	}
	c.state = Connecting
	c.mu.Unlock()

	addr := c.endpoint.Address()

	if !c.opts.Gate.WaitAvailable(ctx, c.opts.NetworkTimeout) {
		c.setState(Failed)
		return fmt.Errorf("%w: network unavailable after %v", ErrNetworkTimeout, c.opts.NetworkTimeout)
	}

	start := time.Now()
	loopCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	done := make(chan dialResult, 1)
	go func() {
		done <- c.dialLoop(loopCtx, addr)
	}()

	var res dialResult
	select {
	case res = <-done:
	case <-loopCtx.Done():
		cancel()
		res = <-done
		if res.err == nil {
			// Dial won the race against the deadline; the caller has given up.
			res.conn.Close() //nolint:errcheck,gosec // discarding a late socket
			res = dialResult{attempts: res.attempts, err: loopCtx.Err()}
		}
	}

	if res.err != nil {
		c.setState(Failed)
		if loopCtx.Err() != nil {
			return fmt.Errorf("%w: connect %s: %d attempts in %v: %w",
				ErrNetworkTimeout, addr, res.attempts, time.Since(start).Round(time.Millisecond), res.err)
		}
		return fmt.Errorf("%w: connect %s: %w", ErrCommunication, addr, res.err)
	}

	c.mu.Lock()
	c.conn = res.conn
	c.r = bufio.NewReader(res.conn)
	c.w = bufio.NewWriter(res.conn)
	c.state = Connected
	c.mu.Unlock()

	c.opts.Logger.Debug("avr connected",
		"address", addr,
		"attempts", res.attempts,
		"elapsed", time.Since(start).String(),
	)
	return nil
}

func (c *Connection) dialLoop(ctx context.Context, addr string) dialResult {
	for attempt := 1; ; attempt++ {
		conn, err := c.opts.Dial(ctx, "tcp", addr)
		if err == nil {
			return dialResult{conn: conn, attempts: attempt}
		}
		if ctx.Err() != nil {
			return dialResult{attempts: attempt, err: ctx.Err()}
		}
		if !isTransient(err) {
			return dialResult{attempts: attempt, err: err}
		}

		c.opts.Logger.Debug("avr connect attempt failed, retrying",
			"address", addr,
			"attempt", attempt,
			"backoff", c.opts.RetryBackoff.String(),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return dialResult{attempts: attempt, err: ctx.Err()}
		case <-time.After(c.opts.RetryBackoff):
		}
	}
}

// isTransient reports whether a dial error is worth retrying.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ETIMEDOUT):
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Send writes one command line without waiting for a reply.
func (c *Connection) Send(ctx context.Context, command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writeLocked(ctx, command); err != nil {
		return err
	}
	c.opts.Logger.Debug("avr send", "command", command)
	return nil
}

// Exec writes one command line and returns the reply line. A reply
// starting with "FL" is a display echo; the following line is returned
// instead.
func (c *Connection) Exec(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writeLocked(ctx, command); err != nil {
		return "", err
	}

	reply, err := c.readLineLocked(ctx, command)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(reply, echoPrefix) {
		c.opts.Logger.Debug("avr skipping display echo", "command", command, "echo", reply)
		if reply, err = c.readLineLocked(ctx, command); err != nil {
			return "", err
		}
	}

	c.opts.Logger.Debug("avr exec", "command", command, "reply", reply)
	return reply, nil
}

func (c *Connection) writeLocked(ctx context.Context, command string) error {
	if c.state != Connected {
		return fmt.Errorf("%w: write %q: %w", ErrCommunication, command, ErrNotConnected)
	}
	if err := c.conn.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return fmt.Errorf("%w: set write deadline: %w", ErrCommunication, err)
	}
	if _, err := c.w.WriteString(command + lineTerminator); err != nil {
		return classifyIO("write", command, err)
	}
	if err := c.w.Flush(); err != nil {
		return classifyIO("write", command, err)
	}
	return nil
}

func (c *Connection) readLineLocked(ctx context.Context, command string) (string, error) {
	if err := c.conn.SetReadDeadline(c.deadline(ctx)); err != nil {
		return "", fmt.Errorf("%w: set read deadline: %w", ErrCommunication, err)
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", classifyIO("read reply to", command, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// deadline is now+ReadTimeout, or the context deadline if sooner.
func (c *Connection) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.opts.ReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

func classifyIO(op, command string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s %q: %w", ErrNetworkTimeout, op, command, err)
	}
	return fmt.Errorf("%w: %s %q: %w", ErrCommunication, op, command, err)
}

// Disconnect flushes and closes the session. Calling it again, or on a
// Connection that never connected, is a no-op.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn := c.conn
	if conn == nil {
		c.state = Disconnected
		return nil
	}

	var errs []error
	if c.w != nil {
		if err := c.w.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	c.r, c.w, c.conn = nil, nil, nil
	if err := conn.Close(); err != nil {
		errs = append(errs, err)
	}
	c.state = Disconnected

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("avr: disconnect: %w", err)
	}
	return nil
}

type alwaysUp struct{}

func (alwaysUp) WaitAvailable(context.Context, time.Duration) bool { return true }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
