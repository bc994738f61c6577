package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDo(t *testing.T) {
	errRefused := errors.New("connection refused")

	tests := []struct {
		name      string
		retries   int
		failures  int
		wantCalls int
		wantErr   bool
	}{
		{"single attempt succeeds", 0, 0, 1, false},
		{"single attempt fails", 0, 1, 1, true},
		{"succeeds after retries", 3, 2, 3, false},
		{"retries exhausted", 2, 10, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			notified := 0
			err := Do(context.Background(), Policy{
				Retries:         tt.retries,
				InitialInterval: time.Millisecond,
				MaxInterval:     2 * time.Millisecond,
			}, func() error {
				calls++
				if calls <= tt.failures {
					return errRefused
				}
				return nil
			}, func(err error, next time.Duration) {
				notified++
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.ErrorIs(t, err, errRefused)
			} else {
				assert.NoError(t, err)
			}
			if tt.retries > 0 {
				assert.Equal(t, calls-1, notified)
			}
		})
	}
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, Policy{Retries: 5, InitialInterval: time.Second}, func() error {
		calls++
		return errors.New("down")
	}, nil)

	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}
