package nats

import (
	"context"

	"github.com/nats-io/nats.go"
)

// ConnectionManager handles NATS connection lifecycle
type ConnectionManager interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	Lost() <-chan error
}

// SubscriptionManager handles subject subscriptions and message reception
type SubscriptionManager interface {
	SubscribeAll(conn *nats.Conn) error
	UnsubscribeAll()
	Messages() <-chan *nats.Msg
	HandleMessage(msg *nats.Msg)
	GetSubscribedTopics() []string
}
