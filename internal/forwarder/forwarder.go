// Package forwarder turns broker messages into readings and writes each one
// to the store.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mqtt-influx-bridge/config"
	"mqtt-influx-bridge/internal/broker"
	"mqtt-influx-bridge/internal/logger"
	"mqtt-influx-bridge/internal/metrics"
	"mqtt-influx-bridge/internal/model"
	"mqtt-influx-bridge/internal/stats"
)

var (
	// ErrTopicMismatch means the topic is not <prefix>/<measurement>/<tag>.
	ErrTopicMismatch = errors.New("topic does not match reading pattern")
	// ErrInvalidPayload means the payload is not a finite number.
	ErrInvalidPayload = errors.New("invalid reading payload")
)

// Store persists readings.
type Store interface {
	WriteReading(ctx context.Context, r model.Reading) error
}

type Forwarder struct {
	store   Store
	prefix  string
	logger  *logger.Logger
	metrics *metrics.Metrics
	stats   *stats.StatsCollector
}

func New(store Store, cfg *config.ForwarderConfig, log *logger.Logger, m *metrics.Metrics, st *stats.StatsCollector) *Forwarder {
	if st == nil {
		st = stats.NewStatsCollector()
	}
	return &Forwarder{
		store:   store,
		prefix:  cfg.Prefix,
		logger:  log,
		metrics: m,
		stats:   st,
	}
}

// Forward parses one message and writes the resulting reading. It performs
// at most one store write and never retries.
func (f *Forwarder) Forward(ctx context.Context, topic string, payload []byte) error {
	measurement, tag, ok := ParseTopic(f.prefix, topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTopicMismatch, topic)
	}

	value, err := ParsePayload(payload)
	if err != nil {
		return err
	}

	reading := model.Reading{
		Measurement: measurement,
		Tag:         tag,
		Value:       value,
	}

	start := time.Now()
	err = f.store.WriteReading(ctx, reading)
	f.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.ObserveWriteDuration(time.Since(start))
	})
	if err != nil {
		f.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncWritesTotal("error")
		})
		return fmt.Errorf("failed to write reading %s/%s: %w", measurement, tag, err)
	}

	f.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncWritesTotal("success")
	})
	f.logger.Debug("reading written",
		"measurement", measurement,
		"tag", tag,
		"value", value)
	return nil
}

// Handle forwards msg and records the outcome. Failures are logged and
// counted, never returned, so the listener keeps going.
func (f *Forwarder) Handle(ctx context.Context, msg broker.Message) {
	err := f.Forward(ctx, msg.Topic, msg.Payload)

	switch {
	case err == nil:
		f.stats.IncForwarded()
		f.countMessage("forwarded")

	case errors.Is(err, ErrTopicMismatch):
		f.stats.IncSkipped()
		f.countMessage("skipped")
		f.logger.Debug("skipping message", "topic", msg.Topic)

	case errors.Is(err, ErrInvalidPayload):
		f.stats.IncInvalid()
		f.countMessage("invalid")
		f.logger.Warn("dropping message with invalid payload",
			"topic", msg.Topic,
			"payload", string(msg.Payload),
			"error", err)

	default:
		f.stats.RecordWriteError(err)
		f.countMessage("error")
		f.logger.Error("failed to store reading",
			"topic", msg.Topic,
			"error", err)
	}
}

func (f *Forwarder) countMessage(status string) {
	f.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncMessagesTotal(status)
	})
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (f *Forwarder) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if f.metrics != nil {
		fn(f.metrics)
	}
}
