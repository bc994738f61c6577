package nats

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"mqtt-influx-bridge/internal/broker"
	"mqtt-influx-bridge/internal/metrics"
)

const messageBuffer = 1024

// SubscriptionManagerImpl implements SubscriptionManager for NATS. All
// subjects feed one channel so messages are handled in arrival order.
type SubscriptionManagerImpl struct {
	listener *Listener
	msgs     chan *nats.Msg
	topics   []string
	subs     map[string]*nats.Subscription
	mu       sync.RWMutex
}

// NewSubscriptionManager creates a new NATS subscription manager
func NewSubscriptionManager(l *Listener) *SubscriptionManagerImpl {
	return &SubscriptionManagerImpl{
		listener: l,
		msgs:     make(chan *nats.Msg, messageBuffer),
		topics:   make([]string, 0),
		subs:     make(map[string]*nats.Subscription),
	}
}

// SubscribeAll subscribes to every configured filter on conn
func (s *SubscriptionManagerImpl) SubscribeAll(conn *nats.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs = make(map[string]*nats.Subscription)
	s.topics = s.topics[:0]
	for _, topic := range s.listener.filters.Filters() {
		subject := ToNATSSubject(topic)
		sub, err := conn.ChanSubscribe(subject, s.msgs)
		if err != nil {
			s.listener.logger.Error("failed to subscribe to topic",
				"topic", topic,
				"error", err)
			return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
		}

		s.subs[topic] = sub
		s.topics = append(s.topics, topic)
		s.listener.logger.Info("nats subscribed", "topic", topic, "subject", subject)
	}

	s.listener.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetSubscriptionsActive(len(s.topics))
	})
	return nil
}

// UnsubscribeAll unsubscribes from all topics
func (s *SubscriptionManagerImpl) UnsubscribeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for topic, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.listener.logger.Debug("failed to unsubscribe from topic",
				"topic", topic,
				"error", err)
		}
	}

	s.subs = make(map[string]*nats.Subscription)
	s.topics = make([]string, 0)
	s.listener.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetSubscriptionsActive(0)
	})
}

func (s *SubscriptionManagerImpl) Messages() <-chan *nats.Msg {
	return s.msgs
}

// HandleMessage maps the subject back to an MQTT-style topic and passes the
// message on.
func (s *SubscriptionManagerImpl) HandleMessage(msg *nats.Msg) {
	topic := ToMQTTTopic(msg.Subject)

	s.listener.stats.IncReceived()
	s.listener.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncMessagesTotal("received")
	})

	s.listener.logger.Info("nats message",
		"topic", topic,
		"payload", string(msg.Data))

	if !s.listener.filters.Match(topic) {
		s.listener.stats.IncSkipped()
		s.listener.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncMessagesTotal("skipped")
		})
		s.listener.logger.Debug("dropping message outside active subscriptions", "subject", msg.Subject)
		return
	}

	s.listener.handler(s.listener.handlerContext(), broker.Message{
		Topic:    topic,
		Payload:  msg.Data,
		Received: time.Now(),
	})
}

// GetSubscribedTopics returns the list of currently subscribed topics
func (s *SubscriptionManagerImpl) GetSubscribedTopics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, len(s.topics))
	copy(topics, s.topics)
	return topics
}
