package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestPublish_Validation(t *testing.T) {
	c := newWithClient(testConfig(), newFakePaho())

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		wantErr error
	}{
		{"empty topic", "", 1, nil, ErrInvalidTopic},
		{"qos too high", "catspaw/x", 3, nil, ErrInvalidQoS},
		{"payload too large", "catspaw/x", 1, make([]byte, maxPayloadSize+1), ErrPublishFailed},
		{"ok", "catspaw/x", 1, []byte("{}"), nil},
		{"nil payload", "catspaw/x", 0, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublish_Disconnected(t *testing.T) {
	fp := newFakePaho()
	c := newWithClient(testConfig(), fp)
	fp.Disconnect(0)

	if err := c.Publish("catspaw/x", nil, 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if err := c.Subscribe("catspaw/x", 1, func(string, []byte) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestPublishJSONAndRetained(t *testing.T) {
	fp := newFakePaho()
	c := newWithClient(testConfig(), fp)

	if err := c.PublishJSON(Topics{}.AVRState(), map[string]any{"volume": "-12.5 dB"}, true); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}
	if err := c.PublishRetained(Topics{}.UIVolumePopup(), []byte(`{"visible":true}`)); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}
	if err := c.PublishJSON("catspaw/x", make(chan int), false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON(chan) error = %v, want ErrPublishFailed", err)
	}

	sent := fp.sent()
	if len(sent) != 2 {
		t.Fatalf("published %d messages, want 2", len(sent))
	}
	if sent[0].topic != "catspaw/state/avr" || !sent[0].retained || sent[0].qos != 1 {
		t.Errorf("state message = %+v", sent[0])
	}
	if string(sent[0].payload) != `{"volume":"-12.5 dB"}` {
		t.Errorf("payload = %s", sent[0].payload)
	}
	if sent[1].topic != "catspaw/ui/volume_popup" || !sent[1].retained {
		t.Errorf("popup message = %+v", sent[1])
	}
}

func TestSubscribe_DeliversAndTracks(t *testing.T) {
	fp := newFakePaho()
	c := newWithClient(testConfig(), fp)

	got := make(chan string, 1)
	filter := Topics{}.AllAVRCommands()
	err := c.Subscribe(filter, 1, func(topic string, payload []byte) error {
		got <- LastSegment(topic) + ":" + string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !c.HasSubscription(filter) || c.SubscriptionCount() != 1 {
		t.Error("subscription not tracked")
	}

	fp.deliver(filter, "catspaw/command/avr/mute", []byte("{}"))
	if v := <-got; v != "mute:{}" {
		t.Errorf("handler got %q", v)
	}

	if err := c.Unsubscribe(filter); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.HasSubscription(filter) || fp.deliver(filter, "catspaw/command/avr/mute", nil) {
		t.Error("subscription still active after Unsubscribe")
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := newWithClient(testConfig(), newFakePaho())
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("a", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v", err)
	}
	if err := c.Subscribe("a", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v", err)
	}
}

func TestSubscribe_BrokerRejects(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		timeout bool
	}{
		{"error", errors.New("not authorised"), false},
		{"timeout", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := newFakePaho()
			fp.subErr, fp.subTimeout = tt.err, tt.timeout
			c := newWithClient(testConfig(), fp)

			err := c.Subscribe("catspaw/x", 1, func(string, []byte) error { return nil })
			if !errors.Is(err, ErrSubscribeFailed) {
				t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
			}
			if c.SubscriptionCount() != 0 {
				t.Error("failed subscription still tracked")
			}
		})
	}
}

func TestHandler_ErrorAndPanicAreLogged(t *testing.T) {
	fp := newFakePaho()
	c := newWithClient(testConfig(), fp)
	logger := &recordingLogger{}
	c.SetLogger(logger)

	_ = c.Subscribe("e", 1, func(string, []byte) error { return errors.New("bad payload") })
	_ = c.Subscribe("p", 1, func(string, []byte) error { panic("boom") })

	fp.deliver("e", "e", nil)
	fp.deliver("p", "p", nil)

	if len(logger.warns) != 1 || len(logger.errors) != 1 {
		t.Errorf("warns=%v errors=%v, want one of each", logger.warns, logger.errors)
	}
}

func TestReconnect_RestoresAndAnnounces(t *testing.T) {
	fp := newFakePaho()
	c := newWithClient(testConfig(), fp)
	_ = c.Subscribe("catspaw/command/avr/+", 1, func(string, []byte) error { return nil })

	var lost error
	reconnected := false
	c.SetOnDisconnect(func(err error) { lost = err })
	c.SetOnConnect(func() { reconnected = true })

	fp.Unsubscribe("catspaw/command/avr/+")
	c.handleDisconnect(errors.New("eof"))
	if c.IsConnected() || lost == nil {
		t.Fatal("disconnect not observed")
	}

	c.handleConnect()
	if !reconnected || !c.IsConnected() {
		t.Error("reconnect not observed")
	}
	if !fp.deliver("catspaw/command/avr/+", "catspaw/command/avr/refresh", nil) {
		t.Error("subscription not restored after reconnect")
	}

	sent := fp.sent()
	last := sent[len(sent)-1]
	var status StatusMessage
	if err := json.Unmarshal(last.payload, &status); err != nil {
		t.Fatalf("status payload: %v", err)
	}
	if last.topic != "catspaw/system/status" || !last.retained || status.Status != StatusOnline || status.ClientID != "catspaw-test" {
		t.Errorf("online announcement = %+v %+v", last, status)
	}
}

func TestClose(t *testing.T) {
	fp := newFakePaho()
	c := newWithClient(testConfig(), fp)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.IsConnected() || !fp.disconnected {
		t.Error("client still connected after Close")
	}
	sent := fp.sent()
	if len(sent) != 1 || !strings.Contains(string(sent[0].payload), "graceful_shutdown") {
		t.Errorf("offline announcement = %+v", sent)
	}

	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	c := newWithClient(testConfig(), newFakePaho())
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}
}

func TestTopics(t *testing.T) {
	tp := Topics{}
	tests := []struct {
		got, want string
	}{
		{tp.AVRCommand("volume"), "catspaw/command/avr/volume"},
		{tp.AVRAck("power"), "catspaw/ack/avr/power"},
		{tp.AVRState(), "catspaw/state/avr"},
		{tp.SystemPower(), "catspaw/command/system/power"},
		{tp.SystemStatus(), "catspaw/system/status"},
		{tp.UIVolumePopup(), "catspaw/ui/volume_popup"},
		{tp.AllAVRCommands(), "catspaw/command/avr/+"},
		{tp.AllTopics(), "catspaw/#"},
		{LastSegment("catspaw/command/avr/mute"), "mute"},
		{LastSegment("plain"), "plain"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "catspaw"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.Username != "catspaw" || opts.ClientID != "catspaw-test" {
		t.Errorf("identity = %q/%q", opts.Username, opts.ClientID)
	}
	if !opts.WillEnabled || opts.WillTopic != "catspaw/system/status" || !opts.WillRetained {
		t.Errorf("will = %v %q %v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	if opts.TLSConfig == nil {
		t.Error("TLS config not set")
	}
}
