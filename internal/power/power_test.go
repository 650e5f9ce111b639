package power

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Dlizzz/catspaw/internal/avr"
)

// calls records the order in which devices were switched.
type calls struct {
	mu  sync.Mutex
	log []string
}

func (c *calls) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, s)
}

func (c *calls) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

type fakeTV struct {
	calls *calls
	err   error
}

func (f *fakeTV) PowerOn(context.Context) error {
	f.calls.add("tv on")
	return f.err
}

func (f *fakeTV) PowerOff(context.Context) error {
	f.calls.add("tv off")
	return f.err
}

type fakeReceiver struct {
	calls *calls
	fail  bool
}

func (f *fakeReceiver) outcome(id avr.CommandID) avr.Outcome {
	if f.fail {
		return avr.Outcome{Command: id, Kind: avr.KindNetworkTimeout, Message: "receiver unreachable"}
	}
	return avr.Outcome{Command: id, OK: true, Message: "ok"}
}

func (f *fakeReceiver) PowerOn(context.Context) avr.Outcome {
	f.calls.add("avr on")
	return f.outcome(avr.PowerOn)
}

func (f *fakeReceiver) PowerOff(context.Context) avr.Outcome {
	f.calls.add("avr off")
	return f.outcome(avr.PowerOff)
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		in      string
		want    Event
		wantErr bool
	}{
		{"suspend", EventSuspend, false},
		{" RESUME ", EventResume, false},
		{"reboot", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEvent(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEvent(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnknownEvent) {
				t.Errorf("error = %v, want ErrUnknownEvent", err)
			}
			if got != tt.want {
				t.Errorf("ParseEvent(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestManager_Handle(t *testing.T) {
	tests := []struct {
		name      string
		event     Event
		tvErr     error
		recvFail  bool
		noTV      bool
		wantCalls []string
		wantOK    bool
	}{
		{"resume", EventResume, nil, false, false, []string{"tv on", "avr on"}, true},
		{"suspend", EventSuspend, nil, false, false, []string{"tv off", "avr off"}, true},
		{"tv failure still switches receiver", EventResume, errors.New("bus busy"), false, false, []string{"tv on", "avr on"}, false},
		{"receiver failure reported", EventSuspend, nil, true, false, []string{"tv off", "avr off"}, false},
		{"without tv", EventResume, nil, false, true, []string{"avr on"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &calls{}
			var tv TV
			if !tt.noTV {
				tv = &fakeTV{calls: c, err: tt.tvErr}
			}
			m := NewManager(tv, &fakeReceiver{calls: c, fail: tt.recvFail}, Options{})

			res, err := m.Handle(context.Background(), tt.event)
			if err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if got := c.get(); !reflect.DeepEqual(got, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", got, tt.wantCalls)
			}
			if res.OK != tt.wantOK {
				t.Errorf("OK = %v, want %v", res.OK, tt.wantOK)
			}
			if tt.tvErr != nil && res.TVErr != tt.tvErr.Error() {
				t.Errorf("TVErr = %q", res.TVErr)
			}
		})
	}
}

func TestManager_HandleUnknown(t *testing.T) {
	c := &calls{}
	m := NewManager(&fakeTV{calls: c}, &fakeReceiver{calls: c}, Options{})
	if _, err := m.Handle(context.Background(), Event("hibernate")); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("Handle() error = %v, want ErrUnknownEvent", err)
	}
	if got := c.get(); len(got) != 0 {
		t.Errorf("devices touched on unknown event: %v", got)
	}
}

func TestManager_Suspend(t *testing.T) {
	var mu sync.Mutex
	var ran [][]string
	runner := func(_ context.Context, argv []string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		ran = append(ran, argv)
		return "", nil
	}

	m := NewManager(nil, &fakeReceiver{calls: &calls{}}, Options{
		SuspendCommand: []string{"systemctl", "suspend"},
		SuspendDelay:   20 * time.Millisecond,
		Runner:         runner,
	})

	if err := m.Suspend(context.Background()); err != nil {
		t.Fatalf("Suspend() error = %v", err)
	}
	if err := m.Suspend(context.Background()); !errors.Is(err, ErrSuspendPending) {
		t.Errorf("second Suspend() error = %v, want ErrSuspendPending", err)
	}
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	want := [][]string{{"systemctl", "suspend"}}
	if !reflect.DeepEqual(ran, want) {
		t.Errorf("ran = %v, want %v", ran, want)
	}
}

func TestManager_SuspendCancelled(t *testing.T) {
	called := false
	m := NewManager(nil, &fakeReceiver{calls: &calls{}}, Options{
		SuspendCommand: []string{"systemctl", "suspend"},
		SuspendDelay:   time.Minute,
		Runner: func(context.Context, []string) (string, error) {
			called = true
			return "", nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Suspend(ctx); err != nil {
		t.Fatalf("Suspend() error = %v", err)
	}
	cancel()
	m.Wait()
	if called {
		t.Error("suspend command ran after cancellation")
	}

	// The pending flag is released once the goroutine exits.
	if err := m.Suspend(ctx); err != nil {
		t.Errorf("Suspend() after cancellation error = %v", err)
	}
	m.Wait()
}

func TestManager_SuspendNotConfigured(t *testing.T) {
	m := NewManager(nil, &fakeReceiver{calls: &calls{}}, Options{})
	if err := m.Suspend(context.Background()); !errors.Is(err, ErrNoSuspendCommand) {
		t.Errorf("Suspend() error = %v, want ErrNoSuspendCommand", err)
	}
}
