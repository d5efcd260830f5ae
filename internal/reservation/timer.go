package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/edimy/tutoring-backend/internal/models"
)

// DefaultHoldSeconds is the reservation window when none is configured
const DefaultHoldSeconds = 900

// Timer counts a reservation window down once per tick. Remaining never goes
// below zero and once the window has expired it stays expired until the next Start.
type Timer struct {
	interval time.Duration

	mu        sync.Mutex
	total     int
	remaining int
	expired   bool
	onExpire  func()
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewTimer creates a stopped timer that ticks every interval
func NewTimer(interval time.Duration) *Timer {
	if interval <= 0 {
		interval = time.Second
	}
	return &Timer{interval: interval}
}

// Start (re)starts the countdown from totalSeconds. onExpire, if set, runs once
// when the window reaches zero. The countdown stops when ctx ends or Stop is called.
func (t *Timer) Start(ctx context.Context, totalSeconds int, onExpire func()) {
	t.Stop()

	if totalSeconds < 0 {
		totalSeconds = 0
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	t.mu.Lock()
	t.total = totalSeconds
	t.remaining = totalSeconds
	t.expired = false
	t.onExpire = onExpire
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	if totalSeconds == 0 {
		t.expire()
		close(done)
		return
	}

	go t.run(ctx, done)
}

func (t *Timer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.tick() {
				return
			}
		}
	}
}

// tick decrements the window; returns true once the window has expired
func (t *Timer) tick() bool {
	t.mu.Lock()
	if t.expired {
		t.mu.Unlock()
		return true
	}
	if t.remaining > 0 {
		t.remaining--
	}
	reachedZero := t.remaining == 0
	t.mu.Unlock()

	if reachedZero {
		t.expire()
	}
	return reachedZero
}

// Expire ends the window immediately, e.g. when the server-side hold is gone
func (t *Timer) Expire() {
	t.expire()
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (t *Timer) expire() {
	t.mu.Lock()
	if t.expired {
		t.mu.Unlock()
		return
	}
	t.expired = true
	t.remaining = 0
	onExpire := t.onExpire
	t.mu.Unlock()

	if onExpire != nil {
		onExpire()
	}
}

// Stop halts the countdown and waits for the ticking goroutine to exit
func (t *Timer) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Remaining returns whole seconds left in the window
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Expired reports whether the window has run out
func (t *Timer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expired
}

// Window snapshots the countdown for clients
func (t *Timer) Window() models.ReservationWindow {
	t.mu.Lock()
	defer t.mu.Unlock()
	return models.ReservationWindow{
		TotalSeconds:     t.total,
		RemainingSeconds: t.remaining,
		TickIntervalMs:   int(t.interval / time.Millisecond),
		Expired:          t.expired,
	}
}
