// Package influxdb writes readings to InfluxDB, either a 2.x server or a 1.8+
// server through its 2.x compatibility endpoints.
package influxdb

import (
	"context"
	"fmt"
	"math"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"mqtt-influx-bridge/config"
	"mqtt-influx-bridge/internal/logger"
	"mqtt-influx-bridge/internal/model"
	"mqtt-influx-bridge/internal/retry"
)

const (
	tagKey   = "tag"
	fieldKey = "value"
)

type Store struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *logger.Logger
	config   *config.InfluxDBConfig
	timeout  time.Duration
	bucket   string

	// retryInterval is the first backoff delay between startup pings.
	retryInterval time.Duration
}

func NewStore(cfg *config.InfluxDBConfig, log *logger.Logger) (*Store, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid influxdb timeout: %w", err)
	}

	token, org, bucket := credentials(cfg)

	opts := influxdb2.DefaultOptions().
		SetHTTPRequestTimeout(requestTimeoutSeconds(timeout))
	client := influxdb2.NewClientWithOptions(cfg.URL(), token, opts)

	return &Store{
		client:        client,
		writeAPI:      client.WriteAPIBlocking(org, bucket),
		logger:        log,
		config:        cfg,
		timeout:       timeout,
		bucket:        bucket,
		retryInterval: time.Second,
	}, nil
}

// requestTimeoutSeconds rounds timeout up to the whole seconds the client
// accepts. Zero would disable the HTTP client timeout.
func requestTimeoutSeconds(timeout time.Duration) uint {
	seconds := uint(math.Ceil(timeout.Seconds()))
	if seconds == 0 {
		seconds = 1
	}
	return seconds
}

// credentials maps the configuration onto the token, org and bucket of the
// 2.x API. Without a token the 1.x compatibility form is used: the token is
// "username:password" and the bucket is "database[/retention-policy]".
func credentials(cfg *config.InfluxDBConfig) (token, org, bucket string) {
	if cfg.Token != "" {
		return cfg.Token, cfg.Org, cfg.Bucket
	}

	if cfg.Username != "" {
		token = cfg.Username + ":" + cfg.Password
	}
	bucket = cfg.Database
	if cfg.RetentionPolicy != "" {
		bucket += "/" + cfg.RetentionPolicy
	}
	return token, "", bucket
}

// Connect checks that the server is reachable, retrying with backoff up to
// config.ConnectRetries extra times.
func (s *Store) Connect(ctx context.Context) error {
	s.logger.Info("connecting to influxdb", "url", s.config.URL(), "bucket", s.bucket)

	err := retry.Do(ctx, retry.Policy{
		Retries:         s.config.ConnectRetries,
		InitialInterval: s.retryInterval,
		MaxInterval:     30 * s.retryInterval,
	}, func() error {
		return s.Ping(ctx)
	}, func(err error, next time.Duration) {
		s.logger.Warn("influxdb not reachable, retrying", "error", err, "retryIn", next)
	})
	if err != nil {
		return err
	}

	s.logger.Info("influxdb connected", "url", s.config.URL())
	return nil
}

// WriteReading writes one point: measurement from the reading, a single tag
// "tag" and a single float field "value". The timestamp is left to the server.
func (s *Store) WriteReading(ctx context.Context, r model.Reading) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	point := influxdb2.NewPointWithMeasurement(r.Measurement).
		AddTag(tagKey, r.Tag).
		AddField(fieldKey, r.Value)

	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("influxdb write failed: %w", err)
	}
	return nil
}

// Ping reports whether the server answers its health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb ping failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("influxdb ping failed: server at %s is not ready", s.config.URL())
	}
	return nil
}

func (s *Store) Close() {
	s.logger.Info("closing influxdb client")
	s.client.Close()
}
