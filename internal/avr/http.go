package avr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTP variant paths.
const (
	StatusPath   = "/StatusHandler.asp"
	CommandPath  = "/EventHandler.asp"
	CommandParam = "WebToHostItem"

	// DefaultHTTPTimeout bounds every request.
	DefaultHTTPTimeout = time.Second

	maxStatusBytes = 64 << 10
)

// HTTPOptions configures an HTTPClient.
type HTTPOptions struct {
	// Gate is consulted before each request. Nil means always available.
	Gate           NetworkGate
	NetworkTimeout time.Duration

	// Timeout bounds each request. Default: DefaultHTTPTimeout.
	Timeout time.Duration

	// Transport overrides the HTTP round tripper (tests).
	Transport http.RoundTripper

	Logger Logger
}

// HTTPClient talks to receivers that expose a JSON status document and
// a command endpoint instead of the line protocol. It is long-lived and
// safe for concurrent use.
type HTTPClient struct {
	base           *url.URL
	client         *http.Client
	gate           NetworkGate
	networkTimeout time.Duration
	logger         Logger
}

// NewHTTPClient creates a client for the device at baseURL, e.g.
// "http://192.168.1.20". A bare host is accepted too.
func NewHTTPClient(baseURL string, opts HTTPOptions) (*HTTPClient, error) {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("avr: parsing device url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("avr: device url %q has no host", baseURL)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultHTTPTimeout
	}
	if opts.NetworkTimeout <= 0 {
		opts.NetworkTimeout = DefaultNetworkTimeout
	}
	if opts.Gate == nil {
		opts.Gate = alwaysUp{}
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}

	return &HTTPClient{
		base:           u,
		client:         &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		gate:           opts.Gate,
		networkTimeout: opts.NetworkTimeout,
		logger:         opts.Logger,
	}, nil
}

// FetchStatus retrieves and decodes the status document.
//
// Returns:
//   - *DeviceStatus: decoded document with at least one zone
//   - error: wraps ErrNetworkTimeout (gate), ErrCommunication (transport
//     failure or non-2xx) or ErrProtocolMismatch (undecodable body)
func (h *HTTPClient) FetchStatus(ctx context.Context) (*DeviceStatus, error) {
	body, err := h.get(ctx, h.endpoint(StatusPath, ""))
	if err != nil {
		return nil, err
	}
	st, err := DecodeStatus(body)
	if err != nil {
		h.logger.Warn("avr status decode failed", "error", err, "body", truncate(string(body), 256))
		return nil, err
	}
	return st, nil
}

// SendCommand asks the device to execute code. The response body is not
// interpreted; re-fetch the status to observe the effect.
func (h *HTTPClient) SendCommand(ctx context.Context, code string) error {
	if code == "" {
		return fmt.Errorf("%w: empty command code", ErrUnknownCommand)
	}
	_, err := h.get(ctx, h.endpoint(CommandPath, code))
	return err
}

func (h *HTTPClient) endpoint(path, code string) string {
	u := *h.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if code != "" {
		u.RawQuery = url.Values{CommandParam: {code}}.Encode()
	}
	return u.String()
}

func (h *HTTPClient) get(ctx context.Context, target string) ([]byte, error) {
	if !h.gate.WaitAvailable(ctx, h.networkTimeout) {
		return nil, fmt.Errorf("%w: network unavailable after %v", ErrNetworkTimeout, h.networkTimeout)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrCommunication, err)
	}
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrCommunication, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrCommunication, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrCommunication, req.URL.Path, resp.StatusCode)
	}

	h.logger.Debug("avr http request",
		"path", req.URL.Path,
		"query", req.URL.RawQuery,
		"status", resp.StatusCode,
		"elapsed", time.Since(start).String(),
	)
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
