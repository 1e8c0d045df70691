package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTwice(t *testing.T) {
	a, err := New(validConfig())
	require.NoError(t, err)
	close(a.started)

	assert.Equal(t, errAgentStarted, a.Run(context.Background()))
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := validConfig()
	cfg.APIAddr = "127.0.0.1:0"

	a, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("agent did not stop on context cancellation")
	}
}
