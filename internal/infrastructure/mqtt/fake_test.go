package mqtt

import (
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Dlizzz/catspaw/internal/infrastructure/config"
)

// doneToken is a completed paho token.
type doneToken struct {
	err     error
	timeout bool
}

func (t doneToken) Wait() bool                     { return !t.timeout }
func (t doneToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.timeout {
		close(ch)
	}
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho is an in-memory broker connection. Methods not used by
// Client are left to the embedded nil interface.
type fakePaho struct {
	pahomqtt.Client

	mu           sync.Mutex
	connected    bool
	published    []published
	routes       map[string]pahomqtt.MessageHandler
	subErr       error
	subTimeout   bool
	disconnected bool
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, routes: map[string]pahomqtt.MessageHandler{}}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	f.mu.Lock()
	f.published = append(f.published, published{topic, qos, retained, b})
	f.mu.Unlock()
	return doneToken{}
}

func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil || f.subTimeout {
		return doneToken{err: f.subErr, timeout: f.subTimeout}
	}
	f.routes[topic] = cb
	return doneToken{}
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		delete(f.routes, t)
	}
	return doneToken{}
}

// deliver invokes the handler registered for filter.
func (f *fakePaho) deliver(filter, topic string, payload []byte) bool {
	f.mu.Lock()
	cb := f.routes[filter]
	f.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(f, fakeMessage{topic: topic, payload: payload})
	return true
}

func (f *fakePaho) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "catspaw-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}
