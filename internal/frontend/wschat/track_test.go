package wschat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/rollbot/internal/config"
)

func TestStopWaitsForTrackedSession(t *testing.T) {
	s := NewServer(config.WebSocketConfig{Path: "/ws"}, nil, zaptest.NewLogger(t))

	require.True(t, s.track(nil))
	// Leave the session counted but drop it from the close list.
	s.untrack(nil)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a session was still running")
	case <-time.After(100 * time.Millisecond):
	}

	s.wg.Done()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the session ended")
	}

	assert.False(t, s.track(nil), "sessions are refused after Stop")
}
