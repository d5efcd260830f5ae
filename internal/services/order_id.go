package services

import (
	"fmt"
	"sync"
	"time"
)

// OrderIDGenerator issues "<unix-millis>-<slotId>" order ids. The millisecond part
// is bumped when needed so no two ids from one process share it.
type OrderIDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewOrderIDGenerator creates a generator on the wall clock
func NewOrderIDGenerator() *OrderIDGenerator {
	return &OrderIDGenerator{now: time.Now}
}

// Next returns a fresh order id for a payment attempt on slotID
func (g *OrderIDGenerator) Next(slotID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms

	return fmt.Sprintf("%d-%s", ms, slotID)
}
