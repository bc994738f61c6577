package stats

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewStatsCollector verifies the initialization of a new StatsCollector
func TestNewStatsCollector(t *testing.T) {
	collector := NewStatsCollector()

	assert.NotNil(t, collector, "StatsCollector should be created")
	assert.WithinDuration(t, time.Now(), collector.StartTime, 100*time.Millisecond, "StartTime should be close to current time")

	snapshot := collector.GetStats()
	assert.Zero(t, snapshot.MessagesReceived, "MessagesReceived should be zero")
	assert.Zero(t, snapshot.MessagesForwarded, "MessagesForwarded should be zero")
	assert.Zero(t, snapshot.MessagesSkipped, "MessagesSkipped should be zero")
	assert.Zero(t, snapshot.MessagesInvalid, "MessagesInvalid should be zero")
	assert.Zero(t, snapshot.WriteErrors, "WriteErrors should be zero")
	assert.True(t, snapshot.LastWrite.IsZero())
}

func TestCounters(t *testing.T) {
	collector := NewStatsCollector()

	for i := 0; i < 5; i++ {
		collector.IncReceived()
	}
	collector.IncForwarded()
	collector.IncForwarded()
	collector.IncSkipped()
	collector.IncInvalid()
	collector.RecordWriteError(errors.New("connection refused"))

	snapshot := collector.GetStats()
	assert.Equal(t, uint64(5), snapshot.MessagesReceived)
	assert.Equal(t, uint64(2), snapshot.MessagesForwarded)
	assert.Equal(t, uint64(1), snapshot.MessagesSkipped)
	assert.Equal(t, uint64(1), snapshot.MessagesInvalid)
	assert.Equal(t, uint64(1), snapshot.WriteErrors)
	assert.False(t, snapshot.LastWrite.IsZero())
	assert.Equal(t, "connection refused", snapshot.LastError)

	at, msg := collector.LastWriteError()
	assert.WithinDuration(t, time.Now(), at, time.Second)
	assert.Equal(t, "connection refused", msg)
}

func TestConcurrentUpdates(t *testing.T) {
	collector := NewStatsCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				collector.IncReceived()
				collector.IncForwarded()
			}
		}()
	}
	wg.Wait()

	snapshot := collector.GetStats()
	assert.Equal(t, uint64(1000), snapshot.MessagesReceived)
	assert.Equal(t, uint64(1000), snapshot.MessagesForwarded)
}

// TestGetStatsJSON verifies the JSON serialization of stats
func TestGetStatsJSON(t *testing.T) {
	collector := NewStatsCollector()
	collector.IncReceived()
	collector.IncInvalid()

	data, err := collector.GetStatsJSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(1), decoded["messages_received"])
	assert.Equal(t, float64(1), decoded["messages_invalid"])
	assert.Contains(t, decoded, "uptime")
	assert.Contains(t, decoded, "forward_rate")
}

// TestCalculateRate verifies the forward rate calculation
func TestCalculateRate(t *testing.T) {
	collector := NewStatsCollector()
	collector.StartTime = time.Now().Add(-10 * time.Second)

	for i := 0; i < 50; i++ {
		collector.IncForwarded()
	}

	assert.InDelta(t, 5.0, collector.CalculateRate(), 0.5)
}
