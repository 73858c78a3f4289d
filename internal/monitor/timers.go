package monitor

import (
	"sync"
	"time"
)

// Timer registry key names
const (
	timerElapsed   = "elapsed"
	timerCountdown = "countdown"
	timerReconnect = "reconnect"
	retainPrefix   = "retain:"
)

// timerRegistry owns every timer the monitor schedules. Scheduling
// under the same name replaces the previous timer; cancellation is
// idempotent; a cancelled timer's callback never runs. The registry
// survives CancelAll so the next run can reuse it, while Close shuts
// it down for good.
type timerRegistry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{timers: make(map[string]*time.Timer)}
}

// After schedules fn once after d
func (r *timerRegistry) After(name string, d time.Duration, fn func()) {
	r.schedule(name, d, fn, false)
}

// Every schedules fn repeatedly at interval d until cancelled
func (r *timerRegistry) Every(name string, d time.Duration, fn func()) {
	r.schedule(name, d, fn, true)
}

func (r *timerRegistry) schedule(name string, d time.Duration, fn func(), repeat bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if old, ok := r.timers[name]; ok {
		old.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		r.mu.Lock()
		// A cancelled or replaced timer must not invoke its callback,
		// even if it already fired into the runtime queue.
		if r.closed || r.timers[name] != t {
			r.mu.Unlock()
			return
		}
		if repeat {
			t.Reset(d)
		} else {
			delete(r.timers, name)
		}
		r.mu.Unlock()

		fn()
	})
	r.timers[name] = t
}

// Cancel stops the named timer. No-op if it does not exist.
func (r *timerRegistry) Cancel(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[name]; ok {
		t.Stop()
		delete(r.timers, name)
	}
}

// CancelAll stops every timer. The registry stays usable.
func (r *timerRegistry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
}

// Close cancels everything and refuses further scheduling
func (r *timerRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
}

// Active reports whether the named timer is scheduled
func (r *timerRegistry) Active(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[name]
	return ok
}

// Len returns the number of scheduled timers
func (r *timerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}
