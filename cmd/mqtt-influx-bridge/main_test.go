package main

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mqtt-influx-bridge/config"
	"mqtt-influx-bridge/internal/broker"
	"mqtt-influx-bridge/internal/broker/mqtt"
	"mqtt-influx-bridge/internal/broker/nats"
	"mqtt-influx-bridge/internal/logger"
)

func TestHandleSignalsCancels(t *testing.T) {
	tests := []struct {
		name string
		sig  os.Signal
	}{
		{"SIGINT", syscall.SIGINT},
		{"SIGTERM", syscall.SIGTERM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			done := make(chan struct{})
			go func() {
				handleSignals(sigChan, cancel, logger.NewNop())
				close(done)
			}()

			sigChan <- tt.sig

			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
				t.Fatal("context not cancelled after stop signal")
			}
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("signal handler did not return")
			}
		})
	}
}

func TestHandleSignalsHangupKeepsRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	go handleSignals(sigChan, cancel, logger.NewNop())

	sigChan <- syscall.SIGHUP
	require.Never(t, func() bool { return ctx.Err() != nil }, 100*time.Millisecond, 10*time.Millisecond)

	sigChan <- syscall.SIGINT
	assert.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, 10*time.Millisecond)
}

func TestNewListenerTransport(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	handler := func(context.Context, broker.Message) {}

	l, err := newListener(cfg, logger.NewNop(), nil, nil, handler)
	require.NoError(t, err)
	assert.IsType(t, &mqtt.Listener{}, l)

	cfg.Transport = config.TransportNATS
	l, err = newListener(cfg, logger.NewNop(), nil, nil, handler)
	require.NoError(t, err)
	assert.IsType(t, &nats.Listener{}, l)
}
