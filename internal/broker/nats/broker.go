package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mqtt-influx-bridge/config"
	"mqtt-influx-bridge/internal/broker"
	"mqtt-influx-bridge/internal/logger"
	"mqtt-influx-bridge/internal/metrics"
	"mqtt-influx-bridge/internal/retry"
	"mqtt-influx-bridge/internal/stats"
)

// Listener implements broker.Listener for NATS. Filters are written in MQTT
// syntax and translated to subjects.
type Listener struct {
	logger  *logger.Logger
	config  *config.NATSConfig
	metrics *metrics.Metrics
	stats   *stats.StatsCollector
	handler broker.MessageHandler
	filters *broker.FilterSet

	conn ConnectionManager
	sub  SubscriptionManager

	retryInterval time.Duration

	mu  sync.RWMutex
	ctx context.Context
}

var _ broker.Listener = (*Listener)(nil)

// NewListener creates a NATS listener. The connection is not opened until
// Connect is called.
func NewListener(cfg *config.NATSConfig, log *logger.Logger, m *metrics.Metrics, st *stats.StatsCollector, handler broker.MessageHandler) (*Listener, error) {
	if handler == nil {
		return nil, fmt.Errorf("message handler is required")
	}

	filters, err := broker.NewFilterSet(cfg.Topics...)
	if err != nil {
		return nil, err
	}
	for _, topic := range filters.Filters() {
		if !validSubjectFilter(ToNATSSubject(topic)) {
			return nil, fmt.Errorf("topic filter %q cannot be expressed as a nats subject", topic)
		}
	}

	if st == nil {
		st = stats.NewStatsCollector()
	}

	l := &Listener{
		logger:        log,
		config:        cfg,
		metrics:       m,
		stats:         st,
		handler:       handler,
		filters:       filters,
		retryInterval: time.Second,
		ctx:           context.Background(),
	}
	l.conn = NewConnectionManager(l)
	l.sub = NewSubscriptionManager(l)
	return l, nil
}

// Connect opens the connection and subscribes, retrying with backoff up to
// config.ConnectRetries extra times.
func (l *Listener) Connect(ctx context.Context) error {
	l.setContext(ctx)

	return retry.Do(ctx, retry.Policy{
		Retries:         l.config.ConnectRetries,
		InitialInterval: l.retryInterval,
		MaxInterval:     30 * l.retryInterval,
	}, func() error {
		return l.conn.Connect(ctx)
	}, func(err error, next time.Duration) {
		l.logger.Warn("nats connect failed, retrying", "error", err, "retryIn", next)
	})
}

// Run dispatches messages one at a time until ctx is cancelled or the
// connection is closed for good.
func (l *Listener) Run(ctx context.Context) error {
	l.setContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-l.conn.Lost():
			return fmt.Errorf("%w: %v", broker.ErrConnectionLost, err)
		case msg := <-l.sub.Messages():
			l.sub.HandleMessage(msg)
		}
	}
}

// Close disconnects from the server
func (l *Listener) Close() {
	l.logger.Info("shutting down nats listener")
	l.conn.Disconnect()
}

func (l *Listener) IsConnected() bool {
	return l.conn.IsConnected()
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
