package httpd

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelaySchedulerFiresOnceNeverEarly(t *testing.T) {
	d := newDelayScheduler()
	var fires atomic.Int32
	start := time.Now()
	fired := make(chan struct{})
	d.schedule(1, 30*time.Millisecond, func() {
		fires.Add(1)
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond, "fired early")
	assert.Equal(t, int32(1), fires.Load())
	assert.Equal(t, 0, d.pending(), "fired entry must be removed")
}

func TestDelaySchedulerCancelPreventsFire(t *testing.T) {
	d := newDelayScheduler()
	var fires atomic.Int32
	d.schedule(1, 20*time.Millisecond, func() { fires.Add(1) })
	require.True(t, d.cancel(1))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fires.Load(), "cancelled timer must not fire")
	assert.Equal(t, 0, d.pending())
}

func TestDelaySchedulerCancelIdempotent(t *testing.T) {
	d := newDelayScheduler()
	d.schedule(1, time.Hour, func() {})
	assert.True(t, d.cancel(1))
	assert.False(t, d.cancel(1), "second cancel must be a no-op")
	assert.False(t, d.cancel(42), "cancelling an unknown id must be a no-op")
}

func TestDelaySchedulerOneTimerPerConnection(t *testing.T) {
	d := newDelayScheduler()
	var first, second atomic.Int32
	d.schedule(1, time.Hour, func() { first.Add(1) })
	fired := make(chan struct{})
	d.schedule(1, 20*time.Millisecond, func() {
		second.Add(1)
		close(fired)
	})
	assert.Equal(t, 1, d.pending(), "rescheduling must replace the pending timer")

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement timer never fired")
	}
	assert.Equal(t, int32(0), first.Load(), "replaced timer must not fire")
	assert.Equal(t, int32(1), second.Load())
}
