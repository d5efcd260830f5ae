package reservation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startedTimer returns a timer with an interval long enough that only manual ticks count
func startedTimer(t *testing.T, total int, onExpire func()) *Timer {
	t.Helper()
	timer := NewTimer(time.Hour)
	timer.Start(context.Background(), total, onExpire)
	t.Cleanup(timer.Stop)
	return timer
}

func TestTimerCountsDownAndClamps(t *testing.T) {
	var fired int32
	timer := startedTimer(t, 3, func() { atomic.AddInt32(&fired, 1) })

	assert.Equal(t, 3, timer.Remaining())
	assert.False(t, timer.Expired())

	previous := timer.Remaining()
	for i := 0; i < 10; i++ {
		timer.tick()
		current := timer.Remaining()
		assert.LessOrEqual(t, current, previous)
		assert.GreaterOrEqual(t, current, 0)
		previous = current
	}

	assert.Equal(t, 0, timer.Remaining())
	assert.True(t, timer.Expired())
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestTimerDefaultWindow(t *testing.T) {
	timer := startedTimer(t, DefaultHoldSeconds, nil)

	window := timer.Window()
	assert.Equal(t, 900, window.TotalSeconds)
	assert.Equal(t, 900, window.RemainingSeconds)
	assert.Equal(t, 3600000, window.TickIntervalMs)

	timer.tick()
	assert.Equal(t, 899, timer.Remaining())
}

func TestTimerTicksInRealTime(t *testing.T) {
	expired := make(chan struct{})
	timer := NewTimer(5 * time.Millisecond)
	timer.Start(context.Background(), 3, func() { close(expired) })
	defer timer.Stop()

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never expired")
	}
	assert.Equal(t, 0, timer.Remaining())
	assert.True(t, timer.Expired())
}

func TestTimerStopFreezesCountdown(t *testing.T) {
	timer := NewTimer(5 * time.Millisecond)
	timer.Start(context.Background(), 1000, nil)
	time.Sleep(20 * time.Millisecond)
	timer.Stop()

	frozen := timer.Remaining()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozen, timer.Remaining())
	assert.False(t, timer.Expired())
}

func TestTimerContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	timer := NewTimer(5 * time.Millisecond)
	timer.Start(ctx, 1000, nil)

	cancel()
	timer.Stop() // returns once the goroutine has exited

	frozen := timer.Remaining()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozen, timer.Remaining())
}

func TestTimerExpireIsSticky(t *testing.T) {
	var fired int32
	timer := startedTimer(t, 600, func() { atomic.AddInt32(&fired, 1) })

	timer.Expire()
	timer.Expire()
	timer.tick()

	assert.True(t, timer.Expired())
	assert.Equal(t, 0, timer.Remaining())
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestTimerRestartResets(t *testing.T) {
	timer := startedTimer(t, 1, nil)
	timer.tick()
	require.True(t, timer.Expired())

	timer.Start(context.Background(), 900, nil)
	assert.False(t, timer.Expired())
	assert.Equal(t, 900, timer.Remaining())
}

func TestTimerZeroWindow(t *testing.T) {
	timer := startedTimer(t, 0, nil)
	assert.True(t, timer.Expired())
	assert.Equal(t, 0, timer.Remaining())
}
