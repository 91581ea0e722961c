package adapters

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mobilus-to-mqtt/application"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	MQTTDefaultConnectTimeout    = 30 * time.Second
	MQTTDefaultPublishTimeout    = 5 * time.Second
	MQTTDefaultDisconnectQuiesce = 1000
)

var (
	ErrMQTTNotConnected     = fmt.Errorf("not connected")
	ErrMQTTConnectTimeout   = fmt.Errorf("connect timeout")
	ErrMQTTPublishTimeout   = fmt.Errorf("publish timeout")
	ErrMQTTSubscribeTimeout = fmt.Errorf("subscribe timeout")
)

type MQTTClientParams struct {
	ClientID string
	Username string
	Password string
	MQTTUrl  string

	// WillTopic receives WillPayload when the connection drops uncleanly.
	WillTopic   string
	WillPayload string

	ConnectTimeout time.Duration
	PublishTimeout time.Duration

	NewClientFunc func(options *mqtt.ClientOptions) mqtt.Client

	Log zerolog.Logger
}

func (m *MQTTClientParams) EnsureDefaults() {
	if m.ConnectTimeout == 0 {
		m.ConnectTimeout = MQTTDefaultConnectTimeout
	}

	if m.PublishTimeout == 0 {
		m.PublishTimeout = MQTTDefaultPublishTimeout
	}

	if m.NewClientFunc == nil {
		m.NewClientFunc = mqtt.NewClient
	}
}

type MQTTClient struct {
	params MQTTClientParams

	client mqtt.Client

	connected          atomic.Bool
	msgCount           atomic.Uint64
	msgCountUpdateTime atomic.Pointer[time.Time]

	mu              sync.Mutex
	connectHandlers []func()

	log zerolog.Logger
}

func NewMQTTClient(params MQTTClientParams) *MQTTClient {
	params.EnsureDefaults()

	m := &MQTTClient{params: params, log: params.Log}
	m.client = m.newMqttClient()

	t := time.Unix(0, 0)
	m.msgCountUpdateTime.Store(&t)

	return m
}

func (m *MQTTClient) Connect() error {
	if m.connected.Load() {
		return nil
	}

	token := m.client.Connect()
	if !token.WaitTimeout(m.params.ConnectTimeout) {
		return ErrMQTTConnectTimeout
	}
	if err := token.Error(); err != nil {
		return err
	}

	m.connected.Store(true)
	return nil
}

func (m *MQTTClient) Disconnect() {
	m.client.Disconnect(MQTTDefaultDisconnectQuiesce)
	m.connected.Store(false)
}

func (m *MQTTClient) IsConnected() bool {
	return m.connected.Load()
}

func (m *MQTTClient) Status() application.MQTTStatus {
	return application.MQTTStatus{
		MessageCount:      m.msgCount.Load(),
		LastTimePublished: *m.msgCountUpdateTime.Load(),
		Connected:         m.IsConnected(),
	}
}

func (m *MQTTClient) Publish(topic string, qos byte, retained bool, msg any) error {
	if !m.IsConnected() {
		return ErrMQTTNotConnected
	}

	token := m.client.Publish(topic, qos, retained, msg)
	if !token.WaitTimeout(m.params.PublishTimeout) {
		return ErrMQTTPublishTimeout
	}
	if err := token.Error(); err != nil {
		return err
	}

	t := time.Now()
	m.msgCountUpdateTime.Store(&t)
	m.msgCount.Add(1)
	return nil
}

func (m *MQTTClient) Subscribe(topic string, qos byte, handler func(msg application.MQTTMessage)) error {
	token := m.client.Subscribe(topic, qos, func(client mqtt.Client, msg mqtt.Message) {
		handler(msg)
	})

	if !token.WaitTimeout(m.params.PublishTimeout) {
		return ErrMQTTSubscribeTimeout
	}
	if err := token.Error(); err != nil {
		return err
	}
	return nil
}

// AddConnectHandler registers fn to run after every successful connect,
// including automatic reconnects.
func (m *MQTTClient) AddConnectHandler(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectHandlers = append(m.connectHandlers, fn)
}

func (m *MQTTClient) PublishHandler(client mqtt.Client, msg mqtt.Message) {
	m.log.Debug().Str("topic", msg.Topic()).Msg("unrouted message")
}

func (m *MQTTClient) OnConnect(client mqtt.Client) {
	m.log.Info().Msgf("connected")
	m.connected.Store(true)

	m.mu.Lock()
	handlers := append([]func(){}, m.connectHandlers...)
	m.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

func (m *MQTTClient) OnConnectionLost(client mqtt.Client, err error) {
	m.log.Info().Msgf("connect lost: %v", err)
	m.connected.Store(false)
}

func (m *MQTTClient) newMqttClient() mqtt.Client {
	opts := mqtt.NewClientOptions()

	opts.AddBroker(m.params.MQTTUrl)
	opts.SetClientID(m.params.ClientID)
	opts.SetUsername(m.params.Username)
	opts.SetPassword(m.params.Password)
	opts.SetAutoReconnect(true)
	// subscriptions survive reconnects only with a persistent session
	opts.SetCleanSession(false)

	if m.params.WillTopic != "" {
		opts.SetWill(m.params.WillTopic, m.params.WillPayload, 1, true)
	}

	opts.SetDefaultPublishHandler(m.PublishHandler)
	opts.OnConnect = m.OnConnect
	opts.OnConnectionLost = m.OnConnectionLost

	return m.params.NewClientFunc(opts)
}

var _ application.MQTTClient = &MQTTClient{}
