package server

import "sync"

// ContentSlot holds the latest rendered fragment and fans it out to subscribers.
// It is the overlay's render target.
type ContentSlot struct {
	mu          sync.RWMutex
	fragment    string
	subscribers map[chan string]struct{}
}

// NewContentSlot creates an empty slot
func NewContentSlot() *ContentSlot {
	return &ContentSlot{subscribers: make(map[chan string]struct{})}
}

// Replace stores fragment and notifies every subscriber.
// Slow subscribers only ever see the newest fragment.
func (c *ContentSlot) Replace(fragment string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fragment = fragment
	for ch := range c.subscribers {
		// Drop a stale pending fragment before queueing the new one
		select {
		case <-ch:
		default:
		}
		ch <- fragment
	}
	return nil
}

// Fragment returns the latest fragment
func (c *ContentSlot) Fragment() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fragment
}

// Subscribe returns a channel primed with the current fragment and a cancel func
func (c *ContentSlot) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 1)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	ch <- c.fragment
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		delete(c.subscribers, ch)
		c.mu.Unlock()
	}
}
