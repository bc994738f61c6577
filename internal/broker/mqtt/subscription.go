package mqtt

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-influx-bridge/internal/broker"
	"mqtt-influx-bridge/internal/metrics"
)

// SubscriptionManagerImpl implements the SubscriptionManager interface
type SubscriptionManagerImpl struct {
	listener   *Listener
	topics     []string
	subscribed bool
	mu         sync.RWMutex
}

// NewSubscriptionManager creates a new subscription manager
func NewSubscriptionManager(l *Listener) *SubscriptionManagerImpl {
	return &SubscriptionManagerImpl{
		listener: l,
		topics:   make([]string, 0),
	}
}

// SubscribeAll subscribes to every configured filter. It is called from the
// on-connect handler, so it runs again after each reconnect.
func (s *SubscriptionManagerImpl) SubscribeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client := s.listener.conn.GetClient()
	qos := byte(s.listener.config.QoS)
	filters := s.listener.filters.Filters()

	s.topics = s.topics[:0]
	s.subscribed = false
	for _, topic := range filters {
		if token := client.Subscribe(topic, qos, s.HandleMessage); token.Wait() && token.Error() != nil {
			s.listener.logger.Error("failed to subscribe to topic",
				"topic", topic,
				"error", token.Error())
			return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
		}
		s.topics = append(s.topics, topic)
		s.listener.logger.Info("mqtt subscribed", "topic", topic, "qos", qos)
	}

	s.subscribed = true
	s.listener.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetSubscriptionsActive(len(s.topics))
	})
	return nil
}

// HandleMessage processes received MQTT messages
func (s *SubscriptionManagerImpl) HandleMessage(client mqtt.Client, msg mqtt.Message) {
	s.listener.stats.IncReceived()
	s.listener.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncMessagesTotal("received")
	})

	s.listener.logger.Info("mqtt message",
		"topic", msg.Topic(),
		"payload", string(msg.Payload()))

	if !s.listener.filters.Match(msg.Topic()) {
		s.listener.stats.IncSkipped()
		s.listener.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncMessagesTotal("skipped")
		})
		s.listener.logger.Debug("dropping message outside active subscriptions", "topic", msg.Topic())
		return
	}

	s.listener.handler(s.listener.handlerContext(), broker.Message{
		Topic:    msg.Topic(),
		Payload:  msg.Payload(),
		Retained: msg.Retained(),
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

// IsSubscribed returns whether there are active subscriptions
func (s *SubscriptionManagerImpl) IsSubscribed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribed
}

// Reset forgets the active subscriptions after the connection went away.
func (s *SubscriptionManagerImpl) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = s.topics[:0]
	s.subscribed = false
}
