// Package health serves liveness, readiness and counter endpoints for the
// bridge's optional HTTP side server.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"mqtt-influx-bridge/internal/stats"
)

// BrokerStatus is the part of a broker listener the health checks need.
type BrokerStatus interface {
	IsConnected() bool
	Subscriptions() []string
}

// Pinger checks the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

// Report is the JSON body of /healthz.
type Report struct {
	Status            string   `json:"status"`
	BrokerConnected   bool     `json:"broker_connected"`
	Subscriptions     []string `json:"subscriptions"`
	StoreOK           bool     `json:"store_ok"`
	StoreError        string   `json:"store_error,omitempty"`
	LastWriteErrorAge *float64 `json:"last_write_error_age_sec,omitempty"`
}

type Checker struct {
	broker BrokerStatus
	store  Pinger
	stats  *stats.StatsCollector

	pingTimeout time.Duration
	// A write error younger than this marks the bridge degraded.
	recentError time.Duration
}

func NewChecker(b BrokerStatus, p Pinger, st *stats.StatsCollector) *Checker {
	return &Checker{
		broker:      b,
		store:       p,
		stats:       st,
		pingTimeout: 2 * time.Second,
		recentError: 30 * time.Second,
	}
}

// Check builds a report from the broker state, a store ping and the age of
// the last write error.
func (c *Checker) Check(ctx context.Context) Report {
	report := Report{
		BrokerConnected: c.broker.IsConnected(),
		Subscriptions:   c.broker.Subscriptions(),
	}

	ctx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	defer cancel()
	if err := c.store.Ping(ctx); err != nil {
		report.StoreError = err.Error()
	} else {
		report.StoreOK = true
	}

	recentWriteError := false
	if c.stats != nil {
		if at, _ := c.stats.LastWriteError(); !at.IsZero() {
			age := time.Since(at)
			seconds := age.Seconds()
			report.LastWriteErrorAge = &seconds
			recentWriteError = age < c.recentError
		}
	}

	switch {
	case report.BrokerConnected && report.StoreOK && !recentWriteError:
		report.Status = StatusOK
	case report.BrokerConnected || report.StoreOK:
		report.Status = StatusDegraded
	default:
		report.Status = StatusDown
	}
	return report
}

// HealthHandler serves /healthz. It answers 503 when the bridge is down.
func (c *Checker) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := c.Check(r.Context())
		code := http.StatusOK
		if report.Status == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	})
}

// ReadyHandler serves /readyz: 200 only when both sides are reachable.
func (c *Checker) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := c.Check(r.Context())
		ready := report.BrokerConnected && report.StoreOK
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, struct {
			Ready bool `json:"ready"`
		}{Ready: ready})
	})
}

// StatsHandler serves /stats with the current counters.
func StatsHandler(st *stats.StatsCollector) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		data, err := st.GetStatsJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
