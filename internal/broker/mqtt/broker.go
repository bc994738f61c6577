package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-influx-bridge/config"
	"mqtt-influx-bridge/internal/broker"
	"mqtt-influx-bridge/internal/logger"
	"mqtt-influx-bridge/internal/metrics"
	"mqtt-influx-bridge/internal/retry"
	"mqtt-influx-bridge/internal/stats"
)

// Listener implements broker.Listener on top of the paho MQTT client.
type Listener struct {
	logger  *logger.Logger
	config  *config.MQTTConfig
	metrics *metrics.Metrics
	stats   *stats.StatsCollector
	handler broker.MessageHandler
	filters *broker.FilterSet

	// retryInterval is the first backoff delay between connect attempts.
	retryInterval time.Duration

	conn ConnectionManager
	sub  SubscriptionManager

	mu  sync.RWMutex
	ctx context.Context
}

var _ broker.Listener = (*Listener)(nil)

// NewListener creates a listener for the configured broker. The connection is
// not opened until Connect is called.
func NewListener(cfg *config.MQTTConfig, log *logger.Logger, m *metrics.Metrics, st *stats.StatsCollector, handler broker.MessageHandler) (*Listener, error) {
	l, err := newListener(cfg, log, m, st, handler)
	if err != nil {
		return nil, err
	}

	l.conn, err = NewConnectionManager(l)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}
	l.sub = NewSubscriptionManager(l)
	return l, nil
}

// NewListenerWithClient creates a listener around an existing client (for testing)
func NewListenerWithClient(cfg *config.MQTTConfig, log *logger.Logger, m *metrics.Metrics, st *stats.StatsCollector, handler broker.MessageHandler, client mqtt.Client) (*Listener, error) {
	l, err := newListener(cfg, log, m, st, handler)
	if err != nil {
		return nil, err
	}

	l.conn = NewConnectionManagerWithClient(l, client)
	l.sub = NewSubscriptionManager(l)
	return l, nil
}

func newListener(cfg *config.MQTTConfig, log *logger.Logger, m *metrics.Metrics, st *stats.StatsCollector, handler broker.MessageHandler) (*Listener, error) {
	if handler == nil {
		return nil, fmt.Errorf("message handler is required")
	}

	filters, err := broker.NewFilterSet(cfg.Topics...)
	if err != nil {
		return nil, err
	}

	if st == nil {
		st = stats.NewStatsCollector()
	}

	return &Listener{
		logger:  log,
		config:  cfg,
		metrics: m,
		stats:   st,
		handler: handler,
		filters: filters,
		ctx:     context.Background(),

		retryInterval: time.Second,
	}, nil
}

// Connect opens the connection, retrying with backoff up to
// config.ConnectRetries extra times.
func (l *Listener) Connect(ctx context.Context) error {
	l.setContext(ctx)

	l.logger.Info("connecting to mqtt broker",
		"broker", l.config.BrokerAddress(),
		"clientId", l.config.ClientID)

	return retry.Do(ctx, retry.Policy{
		Retries:         l.config.ConnectRetries,
		InitialInterval: l.retryInterval,
		MaxInterval:     30 * l.retryInterval,
	}, func() error {
		return l.conn.Connect(ctx)
	}, func(err error, next time.Duration) {
		l.logger.Warn("mqtt connect failed, retrying", "error", err, "retryIn", next)
	})
}

// Run blocks until ctx is cancelled or the connection is lost for good.
func (l *Listener) Run(ctx context.Context) error {
	l.setContext(ctx)

	select {
	case <-ctx.Done():
		return nil
	case err := <-l.conn.Lost():
		return fmt.Errorf("%w: %v", broker.ErrConnectionLost, err)
	}
}

// Close disconnects from the broker
func (l *Listener) Close() {
	l.logger.Info("shutting down mqtt listener")
	l.conn.Disconnect()
}

// IsConnected reports whether the session is up and every filter is
// subscribed.
func (l *Listener) IsConnected() bool {
	return l.conn.IsConnected() && l.sub.IsSubscribed()
}

func (l *Listener) Subscriptions() []string {
	return l.sub.GetSubscribedTopics()
}

func (l *Listener) setContext(ctx context.Context) {
	l.mu.Lock()
	l.ctx = ctx
	l.mu.Unlock()
}

func (l *Listener) handlerContext() context.Context {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ctx
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (l *Listener) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if l.metrics != nil {
		fn(l.metrics)
	}
}
