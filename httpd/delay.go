package httpd

import (
	"sync"
	"time"
)

// delayScheduler holds at most one pending deferred-response timer per
// connection id. Firing and cancellation race through take, so exactly one
// side wins for any given entry.
type delayScheduler struct {
	mu     sync.Mutex
	timers map[uint64]*time.Timer
}

func newDelayScheduler() *delayScheduler {
	return &delayScheduler{timers: make(map[uint64]*time.Timer)}
}

// schedule arms a one-shot timer for id. An existing timer for the same id
// is cancelled first, preserving the one-timer-per-connection invariant.
func (d *delayScheduler) schedule(id uint64, delay time.Duration, onFire func()) {
	d.mu.Lock()
	if prev, ok := d.timers[id]; ok {
		prev.Stop()
		delete(d.timers, id)
	}
	d.timers[id] = time.AfterFunc(delay, func() {
		if !d.take(id) {
			return
		}
		onFire()
	})
	d.mu.Unlock()
}

// cancel removes a pending timer for id. It reports whether a timer was
// still pending; cancelling an absent id is a no-op.
func (d *delayScheduler) cancel(id uint64) bool {
	d.mu.Lock()
	t, ok := d.timers[id]
	if ok {
		delete(d.timers, id)
	}
	d.mu.Unlock()
	if ok {
		t.Stop()
	}
	return ok
}

// take claims the entry for id, returning false when it was already fired
// or cancelled.
func (d *delayScheduler) take(id uint64) bool {
	d.mu.Lock()
	_, ok := d.timers[id]
	if ok {
		delete(d.timers, id)
	}
	d.mu.Unlock()
	return ok
}

func (d *delayScheduler) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}
