package metrics

import (
	"runtime"
	"sync"
	"time"
)

// MetricsCollector periodically samples runtime gauges.
type MetricsCollector struct {
	metrics  *Metrics
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewMetricsCollector(m *Metrics, interval time.Duration) *MetricsCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &MetricsCollector{
		metrics:  m,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (c *MetricsCollector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop halts collection and waits for the sampling goroutine to exit.
func (c *MetricsCollector) Stop() {
	c.once.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *MetricsCollector) collect() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	c.metrics.SetGoroutines(runtime.NumGoroutine())
	c.metrics.SetMemoryUsage(mem.Alloc)
}
