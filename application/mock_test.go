package application

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) Call(ctx context.Context, commands ...Command) (string, error) {
	args := m.Called(ctx, commands)
	return args.String(0), args.Error(1)
}

var _ GatewayClient = &MockGatewayClient{}

type MockRefreshRequester struct {
	mock.Mock
}

func (m *MockRefreshRequester) RequestRefresh() {
	m.Called()
}

var _ RefreshRequester = &MockRefreshRequester{}

type MockMQTTClient struct {
	mock.Mock
}

func (m *MockMQTTClient) Publish(topic string, qos byte, retained bool, msg any) error {
	args := m.Called(topic, qos, retained, msg)
	return args.Error(0)
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler func(msg MQTTMessage)) error {
	args := m.Called(topic, qos, handler)
	return args.Error(0)
}

func (m *MockMQTTClient) AddConnectHandler(fn func()) {
	m.Called(fn)
}

func (m *MockMQTTClient) Connect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockMQTTClient) Disconnect() {
	m.Called()
}

func (m *MockMQTTClient) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockMQTTClient) Status() MQTTStatus {
	args := m.Called()
	return args.Get(0).(MQTTStatus)
}

var _ MQTTClient = &MockMQTTClient{}

type testMessage struct {
	topic   string
	payload []byte
}

func (m testMessage) Topic() string   { return m.topic }
func (m testMessage) Payload() []byte { return m.payload }

// blockingGatewayClient answers current_state calls only once release is
// closed and counts how many calls it received.
type blockingGatewayClient struct {
	response string
	started  chan struct{}
	release  chan struct{}

	mu    sync.Mutex
	calls int
}

func newBlockingGatewayClient(response string) *blockingGatewayClient {
	return &blockingGatewayClient{
		response: response,
		started:  make(chan struct{}, 16),
		release:  make(chan struct{}),
	}
}

func (b *blockingGatewayClient) Call(ctx context.Context, commands ...Command) (string, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()

	b.started <- struct{}{}
	select {
	case <-b.release:
		return b.response, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *blockingGatewayClient) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}
