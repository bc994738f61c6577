package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-influx-bridge/config"
	"mqtt-influx-bridge/internal/metrics"
)

const disconnectQuiesce = 250 // milliseconds

// ConnectionManagerImpl handles MQTT connection lifecycle
type ConnectionManagerImpl struct {
	listener  *Listener
	client    mqtt.Client
	connected atomic.Bool
	timeout   time.Duration
	lastUp    atomic.Int64

	// ready carries the subscription result of the latest handshake.
	ready chan error
	lost  chan error
}

// NewConnectionManager creates a new MQTT connection manager
func NewConnectionManager(l *Listener) (ConnectionManager, error) {
	cm := newConnectionManager(l)
	cfg := l.config

	keepAlive, err := time.ParseDuration(cfg.KeepAlive)
	if err != nil {
		keepAlive = 60 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerAddress()).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetConnectRetry(false).
		SetAutoReconnect(cfg.AutoReconnect).
		SetConnectTimeout(cm.timeout).
		SetKeepAlive(keepAlive).
		SetMaxReconnectInterval(time.Minute)

	// Messages that reach the client without a matching subscription route,
	// e.g. queued for a previous session, still go through the filter check.
	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		l.sub.HandleMessage(client, msg)
	})

	// Set up connection handlers
	opts.OnConnect = cm.handleConnect
	opts.OnConnectionLost = cm.handleDisconnect
	opts.OnReconnecting = cm.handleReconnecting

	if cfg.TLS.Enable {
		tlsConfig, err := newTLSConfig(&cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	cm.client = mqtt.NewClient(opts)
	return cm, nil
}

// NewConnectionManagerWithClient creates a connection manager with a provided client (for testing)
func NewConnectionManagerWithClient(l *Listener, client mqtt.Client) *ConnectionManagerImpl {
	cm := newConnectionManager(l)
	cm.client = client
	return cm
}

func newConnectionManager(l *Listener) *ConnectionManagerImpl {
	timeout, err := time.ParseDuration(l.config.ConnectTimeout)
	if err != nil || timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ConnectionManagerImpl{
		listener: l,
		timeout:  timeout,
		ready:    make(chan error, 1),
		lost:     make(chan error, 1),
	}
}

// Connect establishes the connection and waits until the handshake handler
// has subscribed to every filter.
func (cm *ConnectionManagerImpl) Connect(ctx context.Context) error {
	// Discard a result left over from an earlier handshake.
	select {
	case <-cm.ready:
	default:
	}

	token := cm.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to broker %s: %w", cm.listener.config.BrokerAddress(), err)
	}

	select {
	case err := <-cm.ready:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(cm.timeout):
		return fmt.Errorf("timed out waiting for subscriptions on %s", cm.listener.config.BrokerAddress())
	}
}

// Disconnect cleanly disconnects from the MQTT broker
func (cm *ConnectionManagerImpl) Disconnect() {
	cm.listener.logger.Info("disconnecting from mqtt broker")
	cm.client.Disconnect(disconnectQuiesce)
	cm.connected.Store(false)
	cm.listener.sub.Reset()

	cm.listener.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBrokerConnectionStatus(false)
		m.SetSubscriptionsActive(0)
	})
}

// IsConnected returns current connection status
func (cm *ConnectionManagerImpl) IsConnected() bool {
	return cm.connected.Load()
}

// GetClient returns the MQTT client instance
func (cm *ConnectionManagerImpl) GetClient() mqtt.Client {
	return cm.client
}

func (cm *ConnectionManagerImpl) Lost() <-chan error {
	return cm.lost
}

// handleConnect runs after every successful handshake and (re)subscribes.
func (cm *ConnectionManagerImpl) handleConnect(client mqtt.Client) {
	cm.listener.logger.Info("mqtt client connected", "broker", cm.listener.config.BrokerAddress())
	cm.connected.Store(true)
	cm.lastUp.Store(time.Now().UnixNano())

	cm.listener.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBrokerConnectionStatus(true)
	})

	err := cm.listener.sub.SubscribeAll()
	if err != nil {
		cm.listener.logger.Error("failed to subscribe after connect", "error", err)
	}

	select {
	case cm.ready <- err:
	default:
	}
}

// handleDisconnect processes connection loss
func (cm *ConnectionManagerImpl) handleDisconnect(client mqtt.Client, err error) {
	cm.listener.logger.Error("mqtt connection lost", "error", err)
	cm.connected.Store(false)
	cm.listener.sub.Reset()

	cm.listener.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBrokerConnectionStatus(false)
		m.SetSubscriptionsActive(0)
	})

	if cm.listener.config.AutoReconnect {
		return
	}

	select {
	case cm.lost <- err:
	default:
	}
}

// handleReconnecting processes reconnection attempts
func (cm *ConnectionManagerImpl) handleReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	var down time.Duration
	if last := cm.lastUp.Load(); last > 0 {
		down = time.Since(time.Unix(0, last))
	}
	cm.listener.logger.Info("mqtt client reconnecting",
		"broker", cm.listener.config.BrokerAddress(),
		"sinceLastConnect", down)

	cm.listener.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncBrokerReconnects()
	})
}

// newTLSConfig creates a new TLS configuration
func newTLSConfig(cfg *config.TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
	}

	return tlsConfig, nil
}
