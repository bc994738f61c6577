package mqtt

import (
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MockToken implements mqtt.Token for testing
type MockToken struct {
	err  error
	done chan struct{}
}

func NewMockToken(err error) *MockToken {
	t := &MockToken{
		err:  err,
		done: make(chan struct{}),
	}
	close(t.done)
	return t
}

func (t *MockToken) Wait() bool                       { return true }
func (t *MockToken) WaitTimeout(d time.Duration) bool { return true }
func (t *MockToken) Error() error                     { return t.err }
func (t *MockToken) Done() <-chan struct{}            { return t.done }

// MockMessage implements mqtt.Message for testing
type MockMessage struct {
	topic    string
	payload  []byte
	retained bool
}

func (m *MockMessage) Duplicate() bool   { return false }
func (m *MockMessage) Qos() byte         { return 0 }
func (m *MockMessage) Retained() bool    { return m.retained }
func (m *MockMessage) Topic() string     { return m.topic }
func (m *MockMessage) MessageID() uint16 { return 0 }
func (m *MockMessage) Payload() []byte   { return m.payload }
func (m *MockMessage) Ack()              {}

// MockClient implements mqtt.Client for testing
type MockClient struct {
	connected    atomic.Bool
	connectErr   error
	failures     int32 // connect attempts that fail with connectErr, 0 means all
	subscribeErr map[string]error
	onConnect    mqtt.OnConnectHandler

	connects     atomic.Int32
	disconnects  atomic.Int32
	subscribed   []string
	subscribeQoS []byte
	callback     mqtt.MessageHandler
	mu           sync.Mutex
}

func NewMockClient() *MockClient {
	return &MockClient{subscribeErr: make(map[string]error)}
}

func (m *MockClient) Connect() mqtt.Token {
	n := m.connects.Add(1)
	if m.connectErr != nil && (m.failures == 0 || n <= m.failures) {
		return NewMockToken(m.connectErr)
	}
	m.connected.Store(true)
	if m.onConnect != nil {
		go m.onConnect(m)
	}
	return NewMockToken(nil)
}

func (m *MockClient) Disconnect(quiesce uint) {
	m.disconnects.Add(1)
	m.connected.Store(false)
}

func (m *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return NewMockToken(nil)
}

func (m *MockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.subscribeErr[topic]; err != nil {
		return NewMockToken(err)
	}
	m.subscribed = append(m.subscribed, topic)
	m.subscribeQoS = append(m.subscribeQoS, qos)
	m.callback = callback
	return NewMockToken(nil)
}

func (m *MockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return NewMockToken(nil)
}
func (m *MockClient) Unsubscribe(topics ...string) mqtt.Token          { return NewMockToken(nil) }
func (m *MockClient) AddRoute(topic string, callback mqtt.MessageHandler) {}
func (m *MockClient) IsConnected() bool                                 { return m.connected.Load() }
func (m *MockClient) IsConnectionOpen() bool                            { return m.connected.Load() }
func (m *MockClient) OptionsReader() mqtt.ClientOptionsReader           { return mqtt.ClientOptionsReader{} }

// deliver hands a message to the callback registered by the last Subscribe.
func (m *MockClient) deliver(topic, payload string, retained bool) {
	m.mu.Lock()
	cb := m.callback
	m.mu.Unlock()
	cb(m, &MockMessage{topic: topic, payload: []byte(payload), retained: retained})
}

func (m *MockClient) subscriptions() ([]string, []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscribed...), append([]byte(nil), m.subscribeQoS...)
}
