package stats

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// StatsCollector tracks bridge-wide message counters
type StatsCollector struct {
	StartTime time.Time

	messagesReceived  atomic.Uint64
	messagesForwarded atomic.Uint64
	messagesSkipped   atomic.Uint64
	messagesInvalid   atomic.Uint64
	writeErrors       atomic.Uint64

	mu             sync.RWMutex
	lastWrite      time.Time
	lastWriteError time.Time
	lastError      string
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Uptime            string    `json:"uptime"`
	MessagesReceived  uint64    `json:"messages_received"`
	MessagesForwarded uint64    `json:"messages_forwarded"`
	MessagesSkipped   uint64    `json:"messages_skipped"`
	MessagesInvalid   uint64    `json:"messages_invalid"`
	WriteErrors       uint64    `json:"write_errors"`
	ForwardRate       float64   `json:"forward_rate"`
	LastWrite         time.Time `json:"last_write,omitempty"`
	LastWriteError    time.Time `json:"last_write_error,omitempty"`
	LastError         string    `json:"last_error,omitempty"`
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{StartTime: time.Now()}
}

func (s *StatsCollector) IncReceived() {
	s.messagesReceived.Add(1)
}

func (s *StatsCollector) IncForwarded() {
	s.messagesForwarded.Add(1)
	s.mu.Lock()
	s.lastWrite = time.Now()
	s.mu.Unlock()
}

func (s *StatsCollector) IncSkipped() {
	s.messagesSkipped.Add(1)
}

func (s *StatsCollector) IncInvalid() {
	s.messagesInvalid.Add(1)
}

// RecordWriteError counts a failed store write and remembers the cause.
func (s *StatsCollector) RecordWriteError(err error) {
	s.writeErrors.Add(1)
	s.mu.Lock()
	s.lastWriteError = time.Now()
	if err != nil {
		s.lastError = err.Error()
	}
	s.mu.Unlock()
}

// LastWriteError returns when the most recent write failure happened and its
// message. The time is zero if no write has failed.
func (s *StatsCollector) LastWriteError() (time.Time, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastWriteError, s.lastError
}

// GetStats returns current statistics
func (s *StatsCollector) GetStats() Snapshot {
	s.mu.RLock()
	lastWrite, lastWriteError, lastError := s.lastWrite, s.lastWriteError, s.lastError
	s.mu.RUnlock()

	return Snapshot{
		Uptime:            time.Since(s.StartTime).Round(time.Second).String(),
		MessagesReceived:  s.messagesReceived.Load(),
		MessagesForwarded: s.messagesForwarded.Load(),
		MessagesSkipped:   s.messagesSkipped.Load(),
		MessagesInvalid:   s.messagesInvalid.Load(),
		WriteErrors:       s.writeErrors.Load(),
		ForwardRate:       s.CalculateRate(),
		LastWrite:         lastWrite,
		LastWriteError:    lastWriteError,
		LastError:         lastError,
	}
}

// GetStatsJSON returns stats as JSON
func (s *StatsCollector) GetStatsJSON() ([]byte, error) {
	return json.Marshal(s.GetStats())
}

// CalculateRate returns forwarded readings per second since start.
func (s *StatsCollector) CalculateRate() float64 {
	uptime := time.Since(s.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(s.messagesForwarded.Load()) / uptime
}
