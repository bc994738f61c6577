// Package broker defines the transport-neutral listener contract: a single
// broker connection that subscribes to a set of topic filters and hands every
// received message to a handler.
package broker

import (
	"context"
	"errors"
	"time"
)

// ErrConnectionLost is returned by Listener.Run when an established
// connection drops and the client is not configured to reconnect.
var ErrConnectionLost = errors.New("broker connection lost")

// Message is one inbound publication.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
	Received time.Time
}

// MessageHandler is invoked once per received message, in delivery order.
type MessageHandler func(ctx context.Context, msg Message)

// Listener is a subscribe-only broker connection.
type Listener interface {
	// Connect establishes the connection. Subscriptions are (re)issued on
	// every successful handshake.
	Connect(ctx context.Context) error

	// Run blocks until ctx is cancelled (returns nil) or the connection is
	// irrecoverably lost (returns an error).
	Run(ctx context.Context) error

	// Close disconnects from the broker.
	Close()

	IsConnected() bool

	// Subscriptions returns the filters currently subscribed.
	Subscriptions() []string
}
