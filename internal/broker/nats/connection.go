package nats

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"mqtt-influx-bridge/internal/metrics"
)

// ConnectionManagerImpl implements ConnectionManager for NATS
type ConnectionManagerImpl struct {
	listener  *Listener
	conn      *nats.Conn
	connected atomic.Bool
	closing   atomic.Bool
	lost      chan error
}

// NewConnectionManager creates a new NATS connection manager
func NewConnectionManager(l *Listener) *ConnectionManagerImpl {
	return &ConnectionManagerImpl{
		listener: l,
		lost:     make(chan error, 1),
	}
}

func (cm *ConnectionManagerImpl) options() []nats.Option {
	cfg := cm.listener.config

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(10 * time.Second),
		nats.DisconnectErrHandler(cm.handleDisconnect),
		nats.ReconnectHandler(cm.handleReconnect),
		nats.ClosedHandler(cm.handleClosed),
	}

	if cfg.AutoReconnect {
		opts = append(opts,
			nats.ReconnectWait(2*time.Second),
			nats.MaxReconnects(-1), // Unlimited reconnects
		)
	} else {
		opts = append(opts, nats.NoReconnect())
	}

	// Add authentication if configured
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	return opts
}

// Connect establishes connection to the NATS server and subscribes
func (cm *ConnectionManagerImpl) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cm.listener.logger.Info("connecting to nats server", "url", cm.listener.config.URL)

	conn, err := nats.Connect(cm.listener.config.URL, cm.options()...)
	if err != nil {
		return fmt.Errorf("failed to connect to nats server: %w", err)
	}

	if err := cm.listener.sub.SubscribeAll(conn); err != nil {
		conn.Close()
		return err
	}

	cm.conn = conn
	cm.connected.Store(true)
	cm.listener.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBrokerConnectionStatus(true)
	})
	cm.listener.logger.Info("nats client connected", "url", conn.ConnectedUrl())
	return nil
}

// Disconnect cleanly disconnects from the NATS server
func (cm *ConnectionManagerImpl) Disconnect() {
	cm.closing.Store(true)
	cm.listener.sub.UnsubscribeAll()
	if cm.conn != nil {
		cm.listener.logger.Info("disconnecting from nats server")
		cm.conn.Close()
	}
	cm.connected.Store(false)
	cm.listener.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBrokerConnectionStatus(false)
	})
}

// IsConnected returns the current connection status
func (cm *ConnectionManagerImpl) IsConnected() bool {
	return cm.connected.Load()
}

func (cm *ConnectionManagerImpl) Lost() <-chan error {
	return cm.lost
}

// NATS connection event handlers

func (cm *ConnectionManagerImpl) handleDisconnect(conn *nats.Conn, err error) {
	if cm.closing.Load() {
		return
	}
	cm.listener.logger.Error("nats connection lost", "error", err)
	cm.connected.Store(false)

	cm.listener.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBrokerConnectionStatus(false)
	})
}

// handleReconnect runs after nats.go restored the connection; it replays the
// subscriptions itself, so only state and metrics need updating.
func (cm *ConnectionManagerImpl) handleReconnect(conn *nats.Conn) {
	cm.listener.logger.Info("nats client reconnected",
		"url", conn.ConnectedUrl(),
		"topics", cm.listener.sub.GetSubscribedTopics())
	cm.connected.Store(true)

	cm.listener.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBrokerConnectionStatus(true)
		m.IncBrokerReconnects()
	})
}

// handleClosed fires once the connection is gone for good. Outside of an
// explicit Disconnect that is fatal for the listener.
func (cm *ConnectionManagerImpl) handleClosed(conn *nats.Conn) {
	cm.connected.Store(false)
	if cm.closing.Load() {
		return
	}

	var err error = nats.ErrConnectionClosed
	if conn != nil && conn.LastError() != nil {
		err = conn.LastError()
	}
	cm.listener.logger.Error("nats connection closed", "error", err)

	cm.listener.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBrokerConnectionStatus(false)
	})

	select {
	case cm.lost <- err:
	default:
	}
}
