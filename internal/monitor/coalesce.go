package monitor

import (
	"sync"
	"time"

	"github.com/stackmesh/runboard/internal/runnerwire"
)

// defaultFlushInterval approximates one display frame. A fast runner
// can emit dozens of log lines per second; applying each one as its
// own state update causes visible jank, so messages are buffered and
// applied in one pass per tick.
const defaultFlushInterval = 16 * time.Millisecond

// coalescer buffers inbound messages and flushes them as one batch.
// Enqueue never drops or reorders: the flush callback receives every
// message in original arrival order.
type coalescer struct {
	mu        sync.Mutex
	interval  time.Duration
	flush     func([]runnerwire.Message)
	pending   []runnerwire.Message
	scheduled bool
}

func newCoalescer(interval time.Duration, flush func([]runnerwire.Message)) *coalescer {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	return &coalescer{interval: interval, flush: flush}
}

// Enqueue appends a message. The first enqueue of a window schedules
// exactly one flush; further enqueues before it fires are no-ops with
// respect to scheduling.
func (c *coalescer) Enqueue(msg runnerwire.Message) {
	c.mu.Lock()
	c.pending = append(c.pending, msg)
	if c.scheduled {
		c.mu.Unlock()
		return
	}
	c.scheduled = true
	c.mu.Unlock()

	time.AfterFunc(c.interval, c.fire)
}

func (c *coalescer) fire() {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.scheduled = false
	c.mu.Unlock()

	if len(batch) > 0 {
		c.flush(batch)
	}
}

// Drain flushes anything still pending. Used on teardown so queued
// messages are not lost.
func (c *coalescer) Drain() {
	c.fire()
}

// Len reports the number of buffered messages
func (c *coalescer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
