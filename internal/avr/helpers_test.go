package avr

import (
	"bufio"
	"context"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

// fakeReceiver is a line-protocol device listening on loopback.
type fakeReceiver struct {
	ln      net.Listener
	respond func(cmd string) []string

	mu       sync.Mutex
	received []string
	wg       sync.WaitGroup
}

// startReceiver serves respond on 127.0.0.1. respond returns the reply
// lines for a command; nil sends nothing.
func startReceiver(t *testing.T, respond func(cmd string) []string) *fakeReceiver {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	r := &fakeReceiver{ln: ln, respond: respond}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			r.wg.Add(1)
			go r.serve(conn)
		}
	}()

	t.Cleanup(func() {
		ln.Close() //nolint:errcheck // test cleanup
		r.wg.Wait()
	})
	return r
}

func (r *fakeReceiver) serve(conn net.Conn) {
	defer r.wg.Done()
	defer conn.Close() //nolint:errcheck // test cleanup

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		cmd := strings.TrimRight(sc.Text(), "\r")
		r.mu.Lock()
		r.received = append(r.received, cmd)
		r.mu.Unlock()

		for _, line := range r.respond(cmd) {
			if _, err := conn.Write([]byte(line + "\r\n")); err != nil {
				return
			}
		}
	}
}

func (r *fakeReceiver) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.received...)
}

func (r *fakeReceiver) endpoint(t *testing.T) Endpoint {
	t.Helper()
	host, port, err := net.SplitHostPort(r.ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return Endpoint{Host: host, Port: p}
}

// countingDialer refuses the first n attempts, then dials for real and
// tracks how many sockets are open.
type countingDialer struct {
	refusals atomic.Int32
	attempts atomic.Int32
	open     atomic.Int32
	delay    time.Duration
}

func refusedErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
}

func (d *countingDialer) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	d.attempts.Add(1)
	if d.refusals.Add(-1) >= 0 {
		return nil, refusedErr()
	}
	if d.delay > 0 {
		// Ignores ctx on purpose: models a dial that completes late.
		time.Sleep(d.delay)
		ctx = context.Background()
	}
	conn, err := (&net.Dialer{}).DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	d.open.Add(1)
	return &trackedConn{Conn: conn, open: &d.open}, nil
}

type trackedConn struct {
	net.Conn
	open *atomic.Int32
	once sync.Once
}

func (c *trackedConn) Close() error {
	c.once.Do(func() { c.open.Add(-1) })
	return c.Conn.Close()
}

// scriptTransport is an in-memory Transport.
type scriptTransport struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	sent    []string
	delay   time.Duration

	active    atomic.Int32
	maxActive atomic.Int32
}

func newScript() *scriptTransport {
	return &scriptTransport{replies: map[string]string{}, errs: map[string]error{}}
}

func (s *scriptTransport) set(cmd, reply string) *scriptTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[cmd] = reply
	return s
}

func (s *scriptTransport) fail(cmd string, err error) *scriptTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[cmd] = err
	return s
}

func (s *scriptTransport) enter(ctx context.Context, cmd string) error {
	n := s.active.Add(1)
	for {
		m := s.maxActive.Load()
		if n <= m || s.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	s.mu.Lock()
	s.sent = append(s.sent, cmd)
	err := s.errs[cmd]
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *scriptTransport) Send(ctx context.Context, cmd string) error {
	defer s.active.Add(-1)
	return s.enter(ctx, cmd)
}

func (s *scriptTransport) Exec(ctx context.Context, cmd string) (string, error) {
	defer s.active.Add(-1)
	if err := s.enter(ctx, cmd); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replies[cmd], nil
}

func (s *scriptTransport) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}
