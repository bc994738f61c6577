package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bridge"

// Metrics holds the prometheus collectors exported by the bridge.
type Metrics struct {
	messagesTotal          *prometheus.CounterVec
	writesTotal            *prometheus.CounterVec
	writeDuration          prometheus.Histogram
	brokerConnectionStatus prometheus.Gauge
	brokerReconnects       prometheus.Counter
	subscriptionsActive    prometheus.Gauge
	goroutines             prometheus.Gauge
	memoryUsage            prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound broker messages by outcome",
		}, []string{"status"}),
		writesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Store writes by outcome",
		}, []string{"status"}),
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_duration_seconds",
			Help:      "Latency of a single store write",
			Buckets:   prometheus.DefBuckets,
		}),
		brokerConnectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_connection_status",
			Help:      "1 while the broker connection is up",
		}),
		brokerReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_reconnects_total",
			Help:      "Broker reconnect attempts",
		}),
		subscriptionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions_active",
			Help:      "Topic filters currently subscribed",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_goroutines",
			Help:      "Number of running goroutines",
		}),
		memoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_memory_bytes",
			Help:      "Heap bytes allocated",
		}),
	}

	collectors := []prometheus.Collector{
		m.messagesTotal,
		m.writesTotal,
		m.writeDuration,
		m.brokerConnectionStatus,
		m.brokerReconnects,
		m.subscriptionsActive,
		m.goroutines,
		m.memoryUsage,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

// IncMessagesTotal counts an inbound message. Status is one of received,
// forwarded, skipped, invalid or error.
func (m *Metrics) IncMessagesTotal(status string) {
	m.messagesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncWritesTotal(status string) {
	m.writesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveWriteDuration(d time.Duration) {
	m.writeDuration.Observe(d.Seconds())
}

func (m *Metrics) SetBrokerConnectionStatus(connected bool) {
	if connected {
		m.brokerConnectionStatus.Set(1)
	} else {
		m.brokerConnectionStatus.Set(0)
	}
}

func (m *Metrics) IncBrokerReconnects() {
	m.brokerReconnects.Inc()
}

func (m *Metrics) SetSubscriptionsActive(count int) {
	m.subscriptionsActive.Set(float64(count))
}

func (m *Metrics) SetGoroutines(count int) {
	m.goroutines.Set(float64(count))
}

func (m *Metrics) SetMemoryUsage(bytes uint64) {
	m.memoryUsage.Set(float64(bytes))
}
