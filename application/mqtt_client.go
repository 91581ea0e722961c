package application

import "time"

type MQTTStatus struct {
	MessageCount      uint64
	LastTimePublished time.Time
	Connected         bool
}

type MQTTMessage interface {
	Topic() string
	Payload() []byte
}

type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, msg any) error
	Subscribe(topic string, qos byte, handler func(msg MQTTMessage)) error
	// AddConnectHandler registers fn to run after every connect, reconnects
	// included.
	AddConnectHandler(fn func())

	Connect() error
	Disconnect()
	IsConnected() bool
	Status() MQTTStatus
}
