package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/Dlizzz/catspaw/internal/avr"
	"github.com/Dlizzz/catspaw/internal/history"
	"github.com/Dlizzz/catspaw/internal/infrastructure/config"
	"github.com/Dlizzz/catspaw/internal/infrastructure/logging"
	"github.com/Dlizzz/catspaw/internal/power"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// fakeController answers every command from canned values.
type fakeController struct {
	mu    sync.Mutex
	calls []string
	adj   avr.Adjustment
	fail  bool
	state avr.State
}

func newFakeController() *fakeController {
	return &fakeController{state: avr.State{Volume: "-30.0 dB", Level: 101, Power: avr.PowerStateOn}}
}

func (f *fakeController) do(name string, id avr.CommandID, msg string) avr.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.fail {
		return avr.Outcome{
			Command: id,
			Kind:    avr.KindNetworkTimeout,
			Message: "Command " + id.String() + " not delivered: receiver did not answer in time",
			State:   f.state,
		}
	}
	out := avr.Outcome{Command: id, OK: true, Message: msg, State: f.state}
	if id == avr.PowerStatus || id == avr.Refresh {
		out.Power = avr.PowerStateOn
	}
	return out
}

func (f *fakeController) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) State() avr.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) PowerOn(context.Context) avr.Outcome {
	return f.do("power_on", avr.PowerOn, "Receiver power on sent")
}

func (f *fakeController) PowerOff(context.Context) avr.Outcome {
	return f.do("power_off", avr.PowerOff, "Receiver power off sent")
}

func (f *fakeController) QueryPower(context.Context) avr.Outcome {
	return f.do("power_status", avr.PowerStatus, "Receiver power is on")
}

func (f *fakeController) VolumeSet(_ context.Context, adj avr.Adjustment) avr.Outcome {
	f.mu.Lock()
	f.adj = adj
	f.mu.Unlock()
	return f.do("volume_set", avr.VolumeSet, "Volume: -30.0 dB")
}

func (f *fakeController) VolumeGet(context.Context) avr.Outcome {
	return f.do("volume_get", avr.VolumeGet, "Volume: -30.0 dB")
}

func (f *fakeController) MuteToggle(context.Context) avr.Outcome {
	return f.do("mute_toggle", avr.MuteToggle, "Mute toggled")
}

func (f *fakeController) MuteStatus(context.Context) avr.Outcome {
	return f.do("mute_status", avr.MuteStatus, "Mute is off")
}

func (f *fakeController) Refresh(context.Context) avr.Outcome {
	return f.do("refresh", avr.Refresh, "Receiver is on, volume -30.0 dB")
}

type fakeHistory struct {
	filter history.Filter
	err    error
}

func (f *fakeHistory) List(_ context.Context, filter history.Filter) (*history.ListResult, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return &history.ListResult{
		Entries: []history.Entry{{ID: "cmd-1", Command: "volume_up", Source: "api", OK: true}},
		Total:   1,
		Limit:   history.DefaultLimit,
	}, nil
}

type fakePower struct {
	mu        sync.Mutex
	events    []power.Event
	suspended int
	err       error
}

func (f *fakePower) Handle(_ context.Context, ev power.Event) (power.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return power.Result{Event: ev, OK: true, Receiver: "Receiver power on sent"}, nil
}

func (f *fakePower) Suspend(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.suspended++
	return nil
}

type checker struct{ err error }

func (c checker) HealthCheck(context.Context) error { return c.err }

type testDeps struct {
	controller *fakeController
	history    *fakeHistory
	power      *fakePower
}

// testServer builds a server around fakes. secret may be empty to
// disable auth.
func testServer(t *testing.T, secret string, opts ...func(*Deps)) (*Server, testDeps) {
	t.Helper()

	td := testDeps{
		controller: newFakeController(),
		history:    &fakeHistory{},
		power:      &fakePower{},
	}
	deps := Deps{
		Config: config.APIConfig{
			Host:    "127.0.0.1",
			Port:    0,
			Version: "v1",
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: secret},
		},
		Logger:     logging.Discard(),
		Controller: td.controller,
		History:    td.history,
		Power:      td.power,
		Version:    "test",
	}
	for _, o := range opts {
		o(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, td
}

func doRequest(t *testing.T, h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

var errBoom = errors.New("boom")

func newRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort(%q): %v", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		t.Fatalf("port %q: %v", p, err)
	}
	return host, port
}
