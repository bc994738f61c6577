package mqtt

import (
	"context"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ConnectionManager handles MQTT connection lifecycle
type ConnectionManager interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	GetClient() mqtt.Client
	// Lost delivers the cause of a dropped connection when the client will
	// not reconnect on its own.
	Lost() <-chan error
}

// SubscriptionManager handles topic subscriptions and message reception
type SubscriptionManager interface {
	SubscribeAll() error
	HandleMessage(client mqtt.Client, msg mqtt.Message)
	GetSubscribedTopics() []string
	IsSubscribed() bool
	Reset()
}
