package broker

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicValidation(t *testing.T) {
	tests := []struct {
		name      string
		topic     string
		isFilter  bool
		wantError bool
	}{
		// Valid subscription filters
		{"Valid simple topic", "pool/main/temp", true, false},
		{"Valid single-level wildcard", "pool/main/+", true, false},
		{"Valid multi-level wildcard", "pool/#", true, false},
		{"Valid leading slash", "/pool/main", true, false},
		{"Valid trailing slash", "pool/main/", true, false},

		// Invalid subscription filters
		{"Empty topic", "", true, true},
		{"Partial + wildcard", "pool/+temp/value", true, true},
		{"Mid-topic #", "pool/#/temp", true, true},
		{"Partial # wildcard", "pool/main#", true, true},
		{"Empty middle segment", "pool//temp", true, true},

		// Valid topic names
		{"Valid topic name", "pool/main/temp", false, false},
		{"Empty level in name", "pool//temp", false, false},

		// Invalid topic names
		{"Empty topic name", "", false, true},
		{"Name with +", "pool/+/temp", false, true},
		{"Name with #", "pool/#", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.isFilter {
				err = ValidateTopicFilter(tt.topic)
			} else {
				err = ValidateTopicName(tt.topic)
			}

			if (err != nil) != tt.wantError {
				t.Errorf("validation error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestNewFilterSet(t *testing.T) {
	fs, err := NewFilterSet("pool/main/+", "pool/exchanger/+", "pool/main/+")
	require.NoError(t, err)
	assert.Equal(t, 2, fs.Len())
	assert.Equal(t, []string{"pool/exchanger/+", "pool/main/+"}, fs.Filters())

	_, err = NewFilterSet("pool/main/+", "pool/#/x")
	assert.Error(t, err)
}

func TestFilterSetMatch(t *testing.T) {
	fs, err := NewFilterSet(
		"pool/main/+",
		"pool/exchanger/+",
		"home/#",
		"exact/topic",
	)
	require.NoError(t, err)

	tests := []struct {
		topic string
		want  bool
	}{
		{"pool/main/temperature", true},
		{"pool/exchanger/state", true},
		{"pool/main/", true},
		{"pool/heater/temperature", false},
		{"pool/main/temperature/extra", false},
		{"pool/main", false},
		{"home", true},
		{"home/kitchen/light", true},
		{"exact/topic", true},
		{"exact/topic/more", false},
		{"exact", false},
		{"pool/main/+", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, fs.Match(tt.topic))
		})
	}
}

func TestFilterSetSystemTopics(t *testing.T) {
	fs, err := NewFilterSet("#", "+/uptime")
	require.NoError(t, err)

	assert.True(t, fs.Match("pool/main/temperature"))
	assert.False(t, fs.Match("$SYS/broker/uptime"))
	assert.False(t, fs.Match("$SYS/uptime"))
}

func TestFilterSetConcurrency(t *testing.T) {
	fs, err := NewFilterSet()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			filter := fmt.Sprintf("pool/component%d/+", n)
			assert.NoError(t, fs.Add(filter))
			for j := 0; j < 100; j++ {
				fs.Match(fmt.Sprintf("pool/component%d/value", n))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, fs.Len())
	assert.True(t, fs.Match("pool/component7/value"))
}
