package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. BRIDGE_MQTT_HOST.
const EnvPrefix = "BRIDGE"

const (
	TransportMQTT = "mqtt"
	TransportNATS = "nats"
)

type Config struct {
	Transport string          `json:"transport" yaml:"transport"`
	MQTT      MQTTConfig      `json:"mqtt" yaml:"mqtt" envconfig:"MQTT"`
	NATS      NATSConfig      `json:"nats" yaml:"nats" envconfig:"NATS"`
	InfluxDB  InfluxDBConfig  `json:"influxdb" yaml:"influxdb" envconfig:"INFLUXDB"`
	Forwarder ForwarderConfig `json:"forwarder" yaml:"forwarder" envconfig:"FORWARDER"`
	Logging   LogConfig       `json:"logging" yaml:"logging" envconfig:"LOG"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics" envconfig:"METRICS"`
}

type MQTTConfig struct {
	Host           string    `json:"host" yaml:"host"`
	Port           int       `json:"port" yaml:"port"`
	ClientID       string    `json:"clientId" yaml:"clientId" split_words:"true"`
	Username       string    `json:"username" yaml:"username"`
	Password       string    `json:"password" yaml:"password"`
	Topics         []string  `json:"topics" yaml:"topics"`
	QoS            int       `json:"qos" yaml:"qos"`
	AutoReconnect  bool      `json:"autoReconnect" yaml:"autoReconnect" split_words:"true"`
	ConnectTimeout string    `json:"connectTimeout" yaml:"connectTimeout" split_words:"true"` // Duration string
	ConnectRetries int       `json:"connectRetries" yaml:"connectRetries" split_words:"true"`
	KeepAlive      string    `json:"keepAlive" yaml:"keepAlive" split_words:"true"` // Duration string
	TLS            TLSConfig `json:"tls" yaml:"tls" envconfig:"TLS"`
}

type TLSConfig struct {
	Enable             bool   `json:"enable" yaml:"enable"`
	CertFile           string `json:"certFile" yaml:"certFile" split_words:"true"`
	KeyFile            string `json:"keyFile" yaml:"keyFile" split_words:"true"`
	CAFile             string `json:"caFile" yaml:"caFile" split_words:"true"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify" yaml:"insecureSkipVerify" split_words:"true"`
}

type NATSConfig struct {
	URL            string   `json:"url" yaml:"url"`
	Name           string   `json:"name" yaml:"name"`
	Username       string   `json:"username" yaml:"username"`
	Password       string   `json:"password" yaml:"password"`
	Topics         []string `json:"topics" yaml:"topics"` // MQTT-style filters
	AutoReconnect  bool     `json:"autoReconnect" yaml:"autoReconnect" split_words:"true"`
	ConnectRetries int      `json:"connectRetries" yaml:"connectRetries" split_words:"true"`
}

type InfluxDBConfig struct {
	Host            string `json:"host" yaml:"host"`
	Port            int    `json:"port" yaml:"port"`
	UseTLS          bool   `json:"useTls" yaml:"useTls" split_words:"true"`
	Username        string `json:"username" yaml:"username"`
	Password        string `json:"password" yaml:"password"`
	Database        string `json:"database" yaml:"database"`
	RetentionPolicy string `json:"retentionPolicy" yaml:"retentionPolicy" split_words:"true"`
	// Token, Org and Bucket select the InfluxDB 2.x API instead of 1.x compatibility.
	Token          string `json:"token" yaml:"token"`
	Org            string `json:"org" yaml:"org"`
	Bucket         string `json:"bucket" yaml:"bucket"`
	Timeout        string `json:"timeout" yaml:"timeout"` // Duration string
	ConnectRetries int    `json:"connectRetries" yaml:"connectRetries" split_words:"true"`
}

type ForwarderConfig struct {
	Prefix string `json:"prefix" yaml:"prefix"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`                              // debug, info, warn, error
	OutputPath string `json:"outputPath" yaml:"outputPath" split_words:"true"` // file path, "stdout" or "stderr"
	Encoding   string `json:"encoding" yaml:"encoding"`                        // json or console
	MaxSize    int    `json:"maxSize" yaml:"maxSize" split_words:"true"`       // megabytes
	MaxAge     int    `json:"maxAge" yaml:"maxAge" split_words:"true"`         // days
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups" split_words:"true"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

type MetricsConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Address        string `json:"address" yaml:"address"`
	Path           string `json:"path" yaml:"path"`
	UpdateInterval string `json:"updateInterval" yaml:"updateInterval" split_words:"true"` // Duration string
}

// Load reads the configuration file (JSON or YAML), applies environment
// overrides and defaults, and validates the result. An empty path skips the
// file and starts from defaults.
func Load(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(path, data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	config.setDefaults()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func decode(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	default:
		return json.Unmarshal(data, config)
	}
}

func (c *Config) setDefaults() {
	if c.Transport == "" {
		c.Transport = TransportMQTT
	}

	// Broker
	if c.MQTT.Host == "" {
		c.MQTT.Host = "localhost"
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "mqtt-influx-bridge-" + uuid.NewString()
	}
	if len(c.MQTT.Topics) == 0 {
		c.MQTT.Topics = []string{"pool/main/+", "pool/exchanger/+"}
	}
	if c.MQTT.ConnectTimeout == "" {
		c.MQTT.ConnectTimeout = "10s"
	}
	if c.MQTT.KeepAlive == "" {
		c.MQTT.KeepAlive = "60s"
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.NATS.Name == "" {
		c.NATS.Name = c.MQTT.ClientID
	}
	if len(c.NATS.Topics) == 0 {
		c.NATS.Topics = c.MQTT.Topics
	}

	// Store
	if c.InfluxDB.Host == "" {
		c.InfluxDB.Host = "localhost"
	}
	if c.InfluxDB.Port == 0 {
		c.InfluxDB.Port = 8086
	}
	if c.InfluxDB.Token == "" {
		if c.InfluxDB.Database == "" {
			c.InfluxDB.Database = "pool_db"
		}
		if c.InfluxDB.Username == "" {
			c.InfluxDB.Username = "pool"
		}
	}
	if c.InfluxDB.Timeout == "" {
		c.InfluxDB.Timeout = "5s"
	}

	if c.Forwarder.Prefix == "" {
		c.Forwarder.Prefix = "pool"
	}

	// Set defaults for logging
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.OutputPath == "" {
		c.Logging.OutputPath = "stdout"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "console"
	}
	if c.Logging.MaxSize <= 0 {
		c.Logging.MaxSize = 100
	}

	// Set defaults for metrics
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":2112"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.UpdateInterval == "" {
		c.Metrics.UpdateInterval = "15s"
	}
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	switch cfg.Transport {
	case TransportMQTT:
		if err := validateMQTTConfig(&cfg.MQTT); err != nil {
			return err
		}
	case TransportNATS:
		if cfg.NATS.URL == "" {
			return fmt.Errorf("nats url is required")
		}
		if cfg.NATS.ConnectRetries < 0 {
			return fmt.Errorf("nats connect retries cannot be negative")
		}
		if err := validateTopics(cfg.NATS.Topics); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid transport: %s", cfg.Transport)
	}

	if err := validateInfluxDBConfig(&cfg.InfluxDB); err != nil {
		return err
	}

	if cfg.Forwarder.Prefix == "" || strings.ContainsAny(cfg.Forwarder.Prefix, "/+#") {
		return fmt.Errorf("invalid forwarder prefix: %q", cfg.Forwarder.Prefix)
	}

	// Validate logging config
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", cfg.Logging.Encoding)
	}

	// Validate metrics config
	if cfg.Metrics.Enabled {
		if _, err := time.ParseDuration(cfg.Metrics.UpdateInterval); err != nil {
			return fmt.Errorf("invalid metrics update interval: %w", err)
		}
	}

	return nil
}

func validateMQTTConfig(cfg *MQTTConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("mqtt host is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid mqtt port: %d", cfg.Port)
	}
	if cfg.QoS < 0 || cfg.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos: %d", cfg.QoS)
	}
	if cfg.ConnectRetries < 0 {
		return fmt.Errorf("mqtt connect retries cannot be negative")
	}
	if _, err := time.ParseDuration(cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("invalid mqtt connect timeout: %w", err)
	}
	if _, err := time.ParseDuration(cfg.KeepAlive); err != nil {
		return fmt.Errorf("invalid mqtt keep alive: %w", err)
	}

	// Validate TLS config if enabled
	if cfg.TLS.Enable {
		if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
			return fmt.Errorf("tls cert file and key file must be set together")
		}
	}

	return validateTopics(cfg.Topics)
}

func validateInfluxDBConfig(cfg *InfluxDBConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("influxdb host is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid influxdb port: %d", cfg.Port)
	}
	if cfg.Token != "" {
		if cfg.Bucket == "" {
			return fmt.Errorf("influxdb bucket is required when token is set")
		}
	} else if cfg.Database == "" {
		return fmt.Errorf("influxdb database is required")
	}
	if cfg.ConnectRetries < 0 {
		return fmt.Errorf("influxdb connect retries cannot be negative")
	}
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return fmt.Errorf("invalid influxdb timeout: %w", err)
	}
	if timeout <= 0 {
		return fmt.Errorf("influxdb timeout must be positive: %s", cfg.Timeout)
	}
	return nil
}

func validateTopics(topics []string) error {
	if len(topics) == 0 {
		return fmt.Errorf("at least one topic filter is required")
	}
	for _, topic := range topics {
		if strings.TrimSpace(topic) == "" {
			return fmt.Errorf("topic filter cannot be empty")
		}
	}
	return nil
}

// BrokerAddress returns the paho broker URL for the configured host and port.
func (c *MQTTConfig) BrokerAddress() string {
	scheme := "tcp"
	if c.TLS.Enable {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// URL returns the HTTP endpoint of the InfluxDB server.
func (c *InfluxDBConfig) URL() string {
	scheme := "http"
	if c.UseTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(logLevel, metricsAddr string, metricsInterval time.Duration) error {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if metricsAddr != "" {
		c.Metrics.Enabled = true
		c.Metrics.Address = metricsAddr
	}
	if metricsInterval > 0 {
		c.Metrics.UpdateInterval = metricsInterval.String()
	}
	return validateConfig(c)
}
